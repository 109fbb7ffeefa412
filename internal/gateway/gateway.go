// Package gateway is the login wall in front of a tunneled local service.
// Visitors authenticate once with the configured credentials and are then
// reverse-proxied, websockets included, to the target port.
package gateway

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/security"
	"localpub/internal/session"
	"localpub/internal/types"
	"localpub/internal/utils"
)

type Options struct {
	Log     logrus.FieldLogger
	Audit   *security.AuditLogger
	Verbose bool
	// ListenHost defaults to 127.0.0.1.
	ListenHost string
}

type Gateway struct {
	authPort   int
	targetPort int
	listenHost string

	store     session.Store
	signer    *session.Signer
	templates *TemplateManager
	log       logrus.FieldLogger
	audit     *security.AuditLogger

	userHash [32]byte
	passHash [32]byte

	target    *url.URL
	transport *http.Transport
	proxy     *httputil.ReverseProxy
	bridges   mapset.Set
	handler   http.Handler

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	closeOnce sync.Once
	closeErr  error
}

// New builds a gateway for cfg. cfg must have credentials and a session
// secret, which Validate guarantees.
func New(cfg *config.TunnelConfig, store session.Store, opts Options) (*Gateway, error) {
	if !cfg.AuthEnabled() {
		return nil, types.E(types.ConfigError, "gateway", "credentials are required", nil)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.ListenHost == "" {
		opts.ListenHost = "127.0.0.1"
	}

	log := opts.Log.WithField("component", "gateway")
	tm, err := NewTemplateManager(log)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	target, err := url.Parse(utils.LocalURL(cfg.Port))
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		authPort:   cfg.AuthPort,
		targetPort: cfg.Port,
		listenHost: opts.ListenHost,
		store:      store,
		signer:     session.NewSigner(cfg.SessionSecret),
		templates:  tm,
		log:        log,
		audit:      opts.Audit,
		userHash:   sha256.Sum256([]byte(cfg.Credentials.Username)),
		passHash:   sha256.Sum256([]byte(cfg.Credentials.Password)),
		target:     target,
		transport:  newTransport(),
		bridges:    mapset.NewSet(),
	}
	g.proxy = g.newReverseProxy(target)
	g.handler = g.routes(opts.Verbose)
	return g, nil
}

func (g *Gateway) routes(verbose bool) http.Handler {
	r := mux.NewRouter()

	page := func(h http.HandlerFunc) http.Handler {
		return security.SecurityHeaders(h)
	}

	r.Handle(constants.LoginPath, page(g.handleLoginPage)).Methods(http.MethodGet, http.MethodHead)
	r.Handle(constants.LoginPath, security.MaxBodySize(constants.MaxLoginBodySize)(page(g.handleLoginSubmit))).Methods(http.MethodPost)
	r.Handle(constants.LogoutPath, page(g.handleLogout)).Methods(http.MethodGet, http.MethodPost)
	r.PathPrefix("/").Handler(g.requireSession(g.proxyHandler()))

	var handler http.Handler = r
	handler = RecoveryMiddleware(g.log)(handler)
	handler = RequestLogMiddleware(verbose)(handler)
	return h2c.NewHandler(handler, &http2.Server{})
}

// Handler exposes the routed handler, mostly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Bind claims the auth port. A taken port is a BindConflict carrying a
// remediation hint.
func (g *Gateway) Bind() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(g.listenHost, strconv.Itoa(g.authPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return types.E(types.BindConflict, "gateway bind",
			fmt.Sprintf("auth port %d is unavailable", g.authPort), err).
			WithHint(constants.MsgBindConflictHint)
	}

	g.listener = ln
	g.server = &http.Server{
		Handler:           g.handler,
		IdleTimeout:       constants.IdleTimeout,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		MaxHeaderBytes:    constants.MaxHeaderBytes,
	}
	return nil
}

// Serve starts accepting in the background. Bind must have succeeded.
func (g *Gateway) Serve() error {
	g.mu.Lock()
	server, ln := g.server, g.listener
	g.mu.Unlock()

	if server == nil {
		return errors.New("gateway: Serve called before Bind")
	}

	g.log.Debugf("🔐 Auth gateway listening on %s -> %s", ln.Addr(), g.target)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.log.WithError(err).Error("Auth gateway stopped unexpectedly")
		}
	}()
	return nil
}

// Addr is the bound address, nil before Bind.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Port is the bound port, or the configured one before Bind.
func (g *Gateway) Port() int {
	if addr, ok := g.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return g.authPort
}

// Close shuts the server down and drops any live websocket bridges. Safe to
// call more than once; later calls return the first result.
func (g *Gateway) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		server, ln := g.server, g.listener
		g.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()

		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				g.log.WithError(err).Warn("Auth gateway forced to shutdown")
				server.Close()
				g.closeErr = err
			}
		}
		if ln != nil {
			// Shutdown only knows listeners passed to Serve.
			ln.Close()
		}

		for _, c := range g.bridges.ToSlice() {
			if conn, ok := c.(*websocket.Conn); ok {
				conn.Close()
			}
		}
		g.transport.CloseIdleConnections()
	})
	return g.closeErr
}
