package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"localpub/internal/constants"
)

const redisOpTimeout = 3 * time.Second

// RedisStore keeps sessions in Redis under a namespace unique to this
// process. Close deletes the namespace, so nothing outlives the tunnel.
type RedisStore struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
	log       logrus.FieldLogger
	ctx       context.Context
	cancel    func()
	wg        sync.WaitGroup
	once      sync.Once
}

func NewRedisStore(log logrus.FieldLogger, host, port, username, password string, opts ...Option) (*RedisStore, error) {
	o := buildOptions(opts)

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithCancel(context.Background())

	store := &RedisStore{
		client:    client,
		namespace: constants.RedisKeyPrefix + uuid.NewString() + ":",
		now:       o.now,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, redisOpTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, err
	}

	store.startCleanup(o.cleanupInterval)

	return store, nil
}

func (st *RedisStore) sessionKey(token string) string {
	return st.namespace + "session:" + token
}

func (st *RedisStore) visitorsKey() string {
	return st.namespace + "visitors"
}

func (st *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(st.ctx, redisOpTimeout)
}

func (st *RedisStore) CreateSession(username string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(&Session{
		Authenticated: true,
		Username:      username,
		CreatedAt:     st.now(),
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := st.opContext()
	defer cancel()
	if err := st.client.Set(ctx, st.sessionKey(token), data, constants.SessionDuration).Err(); err != nil {
		return "", err
	}
	st.log.WithField("user", username).Debug("💾 Session saved to Redis")
	return token, nil
}

func (st *RedisStore) Get(token string) (*Session, bool) {
	ctx, cancel := st.opContext()
	defer cancel()

	key := st.sessionKey(token)
	data, err := st.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		st.log.WithError(err).Warn("Failed to get session from Redis")
		return nil, false
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		st.log.WithError(err).Warn("Failed to unmarshal session")
		return nil, false
	}

	if s.Expired(st.now()) {
		st.client.Del(ctx, key)
		return nil, false
	}
	return &s, true
}

func (st *RedisStore) Validate(token string) bool {
	s, ok := st.Get(token)
	return ok && s.Authenticated
}

func (st *RedisStore) Destroy(token string) {
	ctx, cancel := st.opContext()
	defer cancel()
	if err := st.client.Del(ctx, st.sessionKey(token)).Err(); err != nil {
		st.log.WithError(err).Warn("Failed to delete session from Redis")
	}
}

func (st *RedisStore) RecordVisitor(fingerprint string) bool {
	ctx, cancel := st.opContext()
	defer cancel()
	added, err := st.client.SAdd(ctx, st.visitorsKey(), fingerprint).Result()
	if err != nil {
		st.log.WithError(err).Warn("Failed to record visitor in Redis")
		return false
	}
	return added == 1
}

func (st *RedisStore) UniqueVisitors() int {
	ctx, cancel := st.opContext()
	defer cancel()
	n, err := st.client.SCard(ctx, st.visitorsKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (st *RedisStore) ActiveSessions() int {
	n := 0
	st.scan(st.namespace+"session:*", func(string) { n++ })
	return n
}

func (st *RedisStore) Close() error {
	var err error
	st.once.Do(func() {
		st.cancel()
		st.wg.Wait()

		// The store context is gone; purge with a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		var keys []string
		iter := st.client.Scan(ctx, 0, st.namespace+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if len(keys) > 0 {
			if delErr := st.client.Del(ctx, keys...).Err(); delErr != nil {
				st.log.WithError(delErr).Warn("Failed to purge sessions from Redis")
			}
		}
		err = st.client.Close()
	})
	return err
}

func (st *RedisStore) scan(pattern string, fn func(key string)) {
	ctx, cancel := st.opContext()
	defer cancel()
	iter := st.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		fn(iter.Val())
	}
	if err := iter.Err(); err != nil && st.ctx.Err() == nil {
		st.log.WithError(err).Warn("Redis scan error")
	}
}

func (st *RedisStore) startCleanup(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.ctx.Done():
				return
			case <-ticker.C:
				st.cleanupExpired()
			}
		}
	}()
}

// cleanupExpired evicts sessions that outlived the clock even though Redis
// has not expired them yet.
func (st *RedisStore) cleanupExpired() {
	prefix := st.namespace + "session:"
	st.scan(prefix+"*", func(key string) {
		st.Get(strings.TrimPrefix(key, prefix))
	})
}
