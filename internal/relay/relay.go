// Package relay obtains a public URL for a local port from a tunnel relay
// and forwards the relay's connections to that port.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/types"
)

type EventKind int

const (
	// EventError is advisory; the relay may still be serving.
	EventError EventKind = iota
	// EventClosed means the relay will not forward anything else.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind EventKind
	Err  error
}

// Client is one relay connection. Open is called at most once.
type Client interface {
	Open(ctx context.Context, port int) (string, error)
	// Events is closed after EventClosed or Close.
	Events() <-chan Event
	Close() error
}

type Options struct {
	Provider  string
	Host      string
	Subdomain string
	E2EE      bool
	TTL       time.Duration
	Log       logrus.FieldLogger

	// RegisterMaxElapsed bounds ssrok registration retries.
	RegisterMaxElapsed time.Duration
}

// New returns the client for opts.Provider.
func New(opts Options) (Client, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Host == "" {
		opts.Host = constants.DefaultRelayHost
	}
	if opts.RegisterMaxElapsed == 0 {
		opts.RegisterMaxElapsed = constants.RegisterMaxElapsed
	}

	switch opts.Provider {
	case "", config.RelayLocaltunnel:
		return newLocaltunnel(opts), nil
	case config.RelaySSROK:
		return newSSROK(opts), nil
	default:
		return nil, types.E(types.ConfigError, "relay", fmt.Sprintf("unknown relay %q", opts.Provider), nil)
	}
}

// FromConfig maps a validated TunnelConfig onto relay Options.
func FromConfig(cfg *config.TunnelConfig, log logrus.FieldLogger) Options {
	return Options{
		Provider:  cfg.Relay,
		Host:      cfg.Host,
		Subdomain: cfg.Subdomain,
		E2EE:      cfg.E2EE,
		TTL:       cfg.TTL,
		Log:       log,
	}
}

// eventSink delivers events without ever blocking the relay goroutines.
type eventSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan Event, constants.RelayEventBuffer)}
}

func (s *eventSink) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// Slow consumer; advisory errors are dropped, closure is still
		// signalled by closing the channel.
	}
	if ev.Kind == EventClosed {
		s.closed = true
		close(s.ch)
	}
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func relayError(op, msg string, err error) *types.Error {
	return types.E(types.RelayFailure, op, msg, err).WithHint(constants.MsgRelayHint)
}
