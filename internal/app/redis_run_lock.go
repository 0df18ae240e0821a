package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var runLockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements RunLock with a token-guarded Redis key.
type RedisRunLock struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRunLock(client redis.UniversalClient, prefix string) *RedisRunLock {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "taxform:lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRunLock{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (l *RedisRunLock) key(name string) string {
	return fmt.Sprintf("%s:%s", l.prefix, strings.TrimSpace(name))
}

// Acquire takes the lock for ttl. The returned token is needed to release it.
func (l *RedisRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still owns it.
func (l *RedisRunLock) Release(ctx context.Context, name, token string) error {
	if token == "" {
		return nil
	}
	if err := runLockReleaseScript.Run(ctx, l.client, []string{l.key(name)}, token).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
