// Package store holds the relay's short-lived coordination state in Redis:
// webhook deliveries already processed and per-issue branch allocation locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "issue-pilot:"
	deliveryPrefix   = keyPrefix + "delivery:"
	lockPrefix       = keyPrefix + "lock:"
	lockPollInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned when a lock stays held by another owner for longer than the wait.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of the go-redis client the store uses.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Store is a Redis-backed delivery log and lock manager.
type Store struct {
	client RedisClient
}

// New connects to the Redis server at url (redis://host:port/db) and verifies it answers.
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	s := &Store{client: redis.NewClient(opts)}
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close() //nolint:errcheck // best effort
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	slog.InfoContext(ctx, "Connected to redis", "component", "store", "addr", opts.Addr)
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client RedisClient) *Store {
	return &Store{client: client}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// MarkDelivery records a webhook delivery id. It returns true the first time an id is seen
// within ttl and false for repeats.
func (s *Store) MarkDelivery(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return true, nil
	}
	first, err := s.client.SetNX(ctx, deliveryPrefix+id, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording delivery %s: %w", id, err)
	}
	return first, nil
}

// ForgetDelivery removes a delivery id so a redelivery with the same id is processed.
func (s *Store) ForgetDelivery(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, deliveryPrefix+id).Err(); err != nil {
		return fmt.Errorf("forgetting delivery %s: %w", id, err)
	}
	return nil
}

// Lock acquires an exclusive lock on key that expires after ttl. It waits up to ttl for a
// current holder to release. The returned function releases the lock if it is still owned.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := lockPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(ttl)

	for {
		ok, err := s.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	slog.DebugContext(ctx, "Acquired lock", "component", "store", "key", key)
	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, s.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("releasing lock %s: %w", key, err)
		}
		return nil
	}
	return unlock, nil
}
