package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActionLocker hands out exclusive per-entity locks for operator actions. Acquire returns
// ErrActionInFlight when the entity is already being acted on.
type ActionLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalActionLock is an in-process ActionLocker for single-instance deployments.
type LocalActionLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalActionLock() *LocalActionLock {
	return &LocalActionLock{held: make(map[string]struct{})}
}

func (l *LocalActionLock) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrActionInFlight, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

var releaseActionLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisActionLock implements ActionLocker across instances with SET NX PX. The lock
// expires on its own after ttl so a crashed holder cannot wedge an entity.
type RedisActionLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisActionLock(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisActionLock {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "admin:action_lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl < time.Second {
		ttl = 30 * time.Second
	}

	return &RedisActionLock{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

func (r *RedisActionLock) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := fmt.Sprintf("%s:%s", r.prefix, strings.TrimSpace(key))
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire action lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionInFlight, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release on a short fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// A failed release leaves the key to expire after ttl.
			_ = releaseActionLockScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err()
		})
	}, nil
}
