package session

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
)

type MemoryStore struct {
	sessions sync.Map
	visitors mapset.Set
	now      func() time.Time
	log      logrus.FieldLogger
	stop     chan struct{}
	once     sync.Once
}

func NewMemoryStore(log logrus.FieldLogger, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	st := &MemoryStore{
		visitors: mapset.NewSet(),
		now:      o.now,
		log:      log,
		stop:     make(chan struct{}),
	}
	go st.cleanupLoop(o.cleanupInterval)
	return st
}

func (st *MemoryStore) CreateSession(username string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	st.sessions.Store(token, &Session{
		Authenticated: true,
		Username:      username,
		CreatedAt:     st.now(),
	})
	st.log.WithField("user", username).Debug("💾 Session created")
	return token, nil
}

func (st *MemoryStore) Get(token string) (*Session, bool) {
	val, ok := st.sessions.Load(token)
	if !ok {
		return nil, false
	}
	session := val.(*Session)
	if session.Expired(st.now()) {
		st.sessions.Delete(token)
		return nil, false
	}
	return session, true
}

func (st *MemoryStore) Validate(token string) bool {
	session, ok := st.Get(token)
	return ok && session.Authenticated
}

func (st *MemoryStore) Destroy(token string) {
	st.sessions.Delete(token)
}

func (st *MemoryStore) RecordVisitor(fingerprint string) bool {
	return st.visitors.Add(fingerprint)
}

func (st *MemoryStore) UniqueVisitors() int {
	return st.visitors.Cardinality()
}

func (st *MemoryStore) ActiveSessions() int {
	now := st.now()
	n := 0
	st.sessions.Range(func(_, value interface{}) bool {
		if !value.(*Session).Expired(now) {
			n++
		}
		return true
	})
	return n
}

func (st *MemoryStore) Close() error {
	st.once.Do(func() { close(st.stop) })
	return nil
}

func (st *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.cleanupExpired()
		}
	}
}

func (st *MemoryStore) cleanupExpired() {
	now := st.now()
	st.sessions.Range(func(key, value interface{}) bool {
		if value.(*Session).Expired(now) {
			st.sessions.Delete(key)
			st.log.Debug("🗑 Expired session cleaned up")
		}
		return true
	})
}
