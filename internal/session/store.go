package session

import (
	"time"

	"localpub/internal/constants"
)

// Session is an authenticated browser session on the gateway.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expired reports whether the fixed session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) >= constants.SessionDuration
}

// Store holds gateway sessions and the visitor ledger. Implementations are
// safe for concurrent use.
type Store interface {
	CreateSession(username string) (string, error)
	Validate(token string) bool
	Get(token string) (*Session, bool)
	Destroy(token string)
	RecordVisitor(fingerprint string) bool
	UniqueVisitors() int
	ActiveSessions() int
	Close() error
}

type Option func(*options)

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

func buildOptions(opts []Option) options {
	o := options{
		now:             time.Now,
		cleanupInterval: constants.CleanupInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
