// Package redis provides a Redis-backed txpipe.LockingKVStore, for
// applications that need nonce (and other pipeline) state to survive a
// process restart instead of living only in an InMemoryStore.
//
// Values are JSON-encoded with goccy/go-json and stored under one Redis
// key per store key, with a companion set indexing the known keys for
// Keys/Clear; Put and Delete update the value and the index in one
// MULTI/EXEC pipeline. Lock acquisition is a SET NX with a TTL on a
// companion lock key, retried with exponential backoff and jitter on
// contention.
package redis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/chainforge/txpipe"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreKeyPrefix sets a custom prefix for all Redis keys, for
// multi-tenant deployments sharing one Redis instance.
func WithStoreKeyPrefix(prefix string) StoreOption {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithLockTTL overrides the default lock-key expiry (15s), which bounds
// how long a lock survives a crashed holder even without a watchdog
// goroutine running locally.
func WithLockTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.lockTTL = d }
}

// WithLockAcquireTimeout overrides the default Lock wait budget (45s, to
// match InMemoryStore's default).
func WithLockAcquireTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.lockAcquireTimeout = d }
}

// Store is a Redis-backed txpipe.KVStore / txpipe.LockingKVStore. Safe for
// concurrent use from multiple processes, which is the point: unlike
// InMemoryStore, a Lock held by one process is visible to every other
// process pointed at the same Redis instance.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string

	lockTTL            time.Duration
	lockAcquireTimeout time.Duration
}

// NewStore creates a Redis-backed Store on top of client.
func NewStore(client redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{
		client:             client,
		lockTTL:            15 * time.Second,
		lockAcquireTimeout: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) dataKey(key string) string {
	return s.key("txpipe:kv:", key)
}

func (s *Store) lockKey(key string) string {
	return s.key("txpipe:lock:", key)
}

func (s *Store) indexKey() string {
	return s.key("txpipe:kv:index", "")
}

func (s *Store) key(prefix, key string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + ":" + prefix + key
	}
	return prefix + key
}

// Get decodes key's JSON value into a generic any, so it does not hand
// back the concrete type that was stored: numbers come back as float64 and
// slices as []any, the same shapes the standard library would produce.
func (s *Store) Get(key string) (any, bool) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Put replaces key's value and releases any lock held on key, matching
// InMemoryStore's Put semantics.
func (s *Store) Put(key string, value any) {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	_, _ = pipe.Exec(ctx)
	s.Release(key)
}

func (s *Store) Delete(key string) {
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(key))
	pipe.SRem(ctx, s.indexKey(), key)
	_, _ = pipe.Exec(ctx)
	s.Release(key)
}

func (s *Store) Keys() []string {
	ctx := context.Background()
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil
	}
	return keys
}

func (s *Store) Clear() {
	ctx := context.Background()
	keys := s.Keys()
	if len(keys) == 0 {
		return
	}
	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, s.dataKey(key))
		pipe.Del(ctx, s.lockKey(key))
	}
	pipe.Del(ctx, s.indexKey())
	_, _ = pipe.Exec(ctx)
}

// Lock acquires an exclusive lock on key via SET NX with a TTL, retrying
// with exponential backoff and jitter until lockAcquireTimeout elapses.
// The TTL is the Redis analogue of InMemoryStore's watchdog: a crashed
// holder's lock expires on its own instead of wedging every other
// process.
func (s *Store) Lock(ctx context.Context, key string) error {
	deadline := time.Now().Add(s.lockAcquireTimeout)
	lockKey := s.lockKey(key)

	for attempt := 0; ; attempt++ {
		ok, err := s.client.SetNX(ctx, lockKey, "1", s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquiring lock on %q: %w", key, err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return txpipe.ErrLockTimeout
		}

		backoff := time.Duration(1<<uint(min(attempt, 10))) * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(backoff/2 + 1)))
		wait := backoff + jitter
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release releases key's lock. Releasing an unlocked or already-expired
// key is a no-op.
func (s *Store) Release(key string) {
	ctx := context.Background()
	_ = s.client.Del(ctx, s.lockKey(key)).Err()
}

var _ txpipe.LockingKVStore = (*Store)(nil)
