// Package supervisor owns one tunnel from probe to teardown: it checks the
// target, binds the auth gateway, opens the relay and then watches health,
// TTL, signals and the relay until something stops it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/gateway"
	"localpub/internal/probe"
	"localpub/internal/relay"
	"localpub/internal/security"
	"localpub/internal/session"
	"localpub/internal/types"
	"localpub/internal/utils"
)

// ErrStopped is returned by Start when Stop won the race.
var ErrStopped = errors.New("supervisor: stopped during startup")

type Prober interface {
	CheckHealth(ctx context.Context, port int) bool
	DetectAppType(ctx context.Context, port int) types.AppProfile
}

type Options struct {
	Log    logrus.FieldLogger
	Prober Prober
	// Relay is built from the config when nil.
	Relay relay.Client
	// Store is only used with auth; built by session.NewStore when nil.
	Store session.Store
	Audit *security.AuditLogger

	HealthInterval time.Duration
	// RelayOpenTimeout bounds relay Open, registration retries included.
	RelayOpenTimeout time.Duration
	// Signals that stop the tunnel. nil means SIGINT and SIGTERM; use an
	// empty slice to install no handler.
	Signals []os.Signal

	SkipSelfTest       bool
	SelfTestClient     *http.Client
	SelfTestMaxElapsed time.Duration
}

// Supervisor is the handle of one running tunnel.
type Supervisor struct {
	cfg  *config.TunnelConfig
	opts Options
	log  logrus.FieldLogger

	state atomic.Int32

	mu       sync.Mutex
	released bool
	url      string
	profile  types.AppProfile
	gateway  *gateway.Gateway
	relay    relay.Client
	store    session.Store
	reason   Reason
	err      error
	ttlTimer *time.Timer
	sigCh    chan os.Signal

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopOnce  sync.Once
	done      chan struct{}
}

// New prepares a supervisor for a validated config. Nothing is allocated
// until Start.
func New(cfg *config.TunnelConfig, opts Options) *Supervisor {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Prober == nil {
		opts.Prober = probe.New()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = constants.HealthCheckInterval
	}
	if opts.RelayOpenTimeout <= 0 {
		opts.RelayOpenTimeout = constants.RelayOpenTimeout
	}
	if opts.Signals == nil {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.SelfTestClient == nil {
		opts.SelfTestClient = newSelfTestClient()
	}
	if opts.SelfTestMaxElapsed <= 0 {
		opts.SelfTestMaxElapsed = constants.SelfTestMaxElapsed
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:       cfg,
		opts:      opts,
		log:       opts.Log,
		profile:   types.AppUnknown,
		runCtx:    runCtx,
		cancelRun: cancel,
		done:      make(chan struct{}),
	}
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) transition(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.log.Debugf("Tunnel state %s -> %s", from, to)
	return true
}

// adopt hands a resource to the supervisor unless teardown already ran, in
// which case the caller still owns it.
func (s *Supervisor) adopt(assign func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	assign()
	return true
}

// Start brings the tunnel up and returns its public URL. Any failure leaves
// the supervisor Stopped with every resource released.
func (s *Supervisor) Start(ctx context.Context) (string, error) {
	if !s.transition(Idle, Probing) {
		return "", fmt.Errorf("supervisor: cannot start from state %s", s.State())
	}

	port := s.cfg.Port
	s.log.Infof("🚀 Creating tunnel for localhost:%d...", port)

	if !s.opts.Prober.CheckHealth(ctx, port) {
		return "", s.fail(types.E(types.TargetUnreachable, "probe", fmt.Sprintf(constants.MsgNoServer, port), nil))
	}

	profile := s.opts.Prober.DetectAppType(ctx, port)
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	s.log.Debugf("📱 Detected app type: %s", profile)

	relayPort := port
	if s.cfg.AuthEnabled() {
		if !s.transition(Probing, AuthBootstrap) {
			return "", s.interrupted()
		}
		gwPort, err := s.bootstrapAuth()
		if err != nil {
			return "", s.fail(err)
		}
		relayPort = gwPort
		if !s.transition(AuthBootstrap, RelayOpening) {
			return "", s.interrupted()
		}
	} else if !s.transition(Probing, RelayOpening) {
		return "", s.interrupted()
	}

	rc := s.opts.Relay
	if rc == nil {
		var err error
		rc, err = relay.New(relay.FromConfig(s.cfg, s.log))
		if err != nil {
			return "", s.fail(err)
		}
	}
	if !s.adopt(func() { s.relay = rc }) {
		rc.Close()
		return "", s.interrupted()
	}

	openCtx, cancelOpen := context.WithTimeout(ctx, s.opts.RelayOpenTimeout)
	publicURL, err := rc.Open(openCtx, relayPort)
	cancelOpen()
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			err = types.E(types.RelayFailure, "relay open", "failed to open tunnel", err).WithHint(constants.MsgRelayHint)
		}
		return "", s.fail(err)
	}

	s.mu.Lock()
	s.url = publicURL
	s.mu.Unlock()

	if !s.transition(RelayOpening, Running) {
		return "", s.interrupted()
	}

	s.opts.Audit.LogTunnelOpen(publicURL, port)
	s.log.WithField("url", publicURL).Info("✅ Tunnel created successfully!")

	s.armTTL()
	s.armSignals()
	go s.healthLoop()
	go s.watchRelay(rc)
	if !s.opts.SkipSelfTest {
		go s.selfTest(s.runCtx, publicURL)
	}

	return publicURL, nil
}

// bootstrapAuth binds the gateway and returns the port the relay should
// forward to.
func (s *Supervisor) bootstrapAuth() (int, error) {
	store := s.opts.Store
	if store == nil {
		store = session.NewStore(s.log)
	}
	if !s.adopt(func() { s.store = store }) {
		store.Close()
		return 0, ErrStopped
	}

	gw, err := gateway.New(s.cfg, store, gateway.Options{
		Log:     s.log,
		Audit:   s.opts.Audit,
		Verbose: s.cfg.Verbose,
	})
	if err != nil {
		return 0, err
	}
	if err := gw.Bind(); err != nil {
		return 0, err
	}
	if !s.adopt(func() { s.gateway = gw }) {
		gw.Close(context.Background())
		return 0, ErrStopped
	}
	if err := gw.Serve(); err != nil {
		return 0, err
	}

	s.log.Debugf("🔐 Auth gateway on localhost:%d", gw.Port())
	return gw.Port(), nil
}

func (s *Supervisor) fail(err error) error {
	if errors.Is(err, ErrStopped) {
		return s.interrupted()
	}
	s.shutdown(ReasonStartFailed, err)
	return err
}

func (s *Supervisor) interrupted() error {
	s.shutdown(ReasonManual, nil)
	return ErrStopped
}

func (s *Supervisor) armTTL() {
	timer := time.AfterFunc(s.cfg.TTL, func() {
		if s.State() != Running {
			return
		}
		s.log.Warn("🕒 Tunnel has expired. Stopping...")
		s.shutdown(ReasonExpired, nil)
	})
	if !s.adopt(func() { s.ttlTimer = timer }) {
		timer.Stop()
	}
}

func (s *Supervisor) armSignals() {
	if len(s.opts.Signals) == 0 {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.opts.Signals...)
	if !s.adopt(func() { s.sigCh = ch }) {
		signal.Stop(ch)
		return
	}

	go func() {
		select {
		case sig := <-ch:
			s.log.Debugf("Received %s", sig)
			s.shutdown(ReasonSignal, nil)
		case <-s.runCtx.Done():
		}
	}()
}

func (s *Supervisor) healthLoop() {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
		}

		if s.State() != Running {
			return
		}
		healthy := s.opts.Prober.CheckHealth(s.runCtx, s.cfg.Port)
		if healthy || s.State() != Running {
			continue
		}

		s.log.Error("❌ Server is not responding. Please check your app.")
		s.shutdown(ReasonHealth, types.E(types.HealthDegraded, "health check",
			fmt.Sprintf("localhost:%d stopped responding", s.cfg.Port), nil))
		return
	}
}

func (s *Supervisor) watchRelay(rc relay.Client) {
	for ev := range rc.Events() {
		switch ev.Kind {
		case relay.EventError:
			s.log.WithError(ev.Err).Warn("❌ Tunnel error")
		case relay.EventClosed:
			if s.State() != Running {
				return
			}
			s.log.Error("🔴 Tunnel closed")
			err := ev.Err
			if err == nil {
				err = types.E(types.RelayFailure, "relay", "tunnel closed by relay", nil)
			}
			s.shutdown(ReasonRelayClosed, err)
			return
		}
	}
	if s.State() == Running {
		s.shutdown(ReasonRelayClosed, types.E(types.RelayFailure, "relay", "tunnel closed by relay", nil))
	}
}

// Stop tears the tunnel down. Safe from any goroutine, any number of times.
func (s *Supervisor) Stop() {
	s.shutdown(ReasonManual, nil)
}

func (s *Supervisor) shutdown(reason Reason, err error) {
	s.stopOnce.Do(func() {
		s.state.Store(int32(Stopping))
		s.cancelRun()

		s.mu.Lock()
		s.released = true
		s.reason = reason
		s.err = err
		timer, sigCh := s.ttlTimer, s.sigCh
		rc, gw, store := s.relay, s.gateway, s.store
		s.mu.Unlock()

		if reason != ReasonStartFailed {
			s.log.Warn("🛑 Closing tunnel...")
		}
		if timer != nil {
			timer.Stop()
		}
		if sigCh != nil {
			signal.Stop(sigCh)
		}

		if rc != nil {
			if cerr := rc.Close(); cerr != nil {
				s.log.WithError(cerr).Debug("Relay close failed")
			}
		}
		if gw != nil {
			if cerr := gw.Close(context.Background()); cerr != nil {
				s.log.WithError(cerr).Debug("Gateway close failed")
			}
		}
		if store != nil {
			s.log.Infof("👥 %d unique visitor(s), %d active session(s)", store.UniqueVisitors(), store.ActiveSessions())
			if cerr := store.Close(); cerr != nil {
				s.log.WithError(cerr).Debug("Session store close failed")
			}
		}

		if rc != nil {
			s.opts.Audit.LogTunnelClose(string(reason))
			s.log.Info("✅ Tunnel closed")
		}

		s.state.Store(int32(Stopped))
		close(s.done)
	})
}

// Done is closed once the tunnel is Stopped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the tunnel stops and returns Err.
func (s *Supervisor) Wait() error {
	<-s.done
	return s.Err()
}

func (s *Supervisor) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// LocalURL is the address of the target being exposed.
func (s *Supervisor) LocalURL() string {
	return utils.LocalURL(s.cfg.Port)
}

func (s *Supervisor) AppProfile() types.AppProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Err is nil for a clean stop (manual, signal, TTL) and the failure
// otherwise.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// GatewayPort is the bound auth port, 0 without auth.
func (s *Supervisor) GatewayPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateway == nil {
		return 0
	}
	return s.gateway.Port()
}
