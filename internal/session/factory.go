package session

import (
	"github.com/sirupsen/logrus"

	"localpub/internal/utils"
)

const (
	EnvRedisHost     = "REDIS_HOST"
	EnvRedisPort     = "REDIS_PORT"
	EnvRedisUser     = "REDIS_USERNAME"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// NewStore returns a Redis-backed store when REDIS_HOST is set and
// reachable, otherwise an in-memory one.
func NewStore(log logrus.FieldLogger, opts ...Option) Store {
	redisHost := utils.GetEnv(EnvRedisHost, "")

	if redisHost != "" {
		redisPort := utils.GetEnv(EnvRedisPort, "6379")
		redisUser := utils.GetEnv(EnvRedisUser, "")
		redisPassword := utils.GetEnv(EnvRedisPassword, "")

		store, err := NewRedisStore(log, redisHost, redisPort, redisUser, redisPassword, opts...)
		if err != nil {
			log.WithError(err).Warn("⚠️  Redis connection failed, falling back to in-memory session store")
			return NewMemoryStore(log, opts...)
		}
		log.Debugf("💾 Using Redis session store: %s:%s", redisHost, redisPort)
		return store
	}

	log.Debug("💾 Using in-memory session store")
	return NewMemoryStore(log, opts...)
}
