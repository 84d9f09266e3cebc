package txpipe

import (
	"context"
	"sync"
	"time"

	"github.com/KyberNetwork/logger"
)

// KVStore is the per-key storage abstraction the nonce manager (and other
// components that need small pieces of durable-or-not state) are built on.
// Get must never block waiting on a write.
type KVStore interface {
	Get(key string) (value any, ok bool)
	Put(key string, value any)
	Delete(key string)
	Keys() []string
	Clear()
}

// LockingKVStore extends KVStore with an exclusive-lock primitive.
// Implementations that are shared across processes (e.g. the Redis-backed
// store in persistence/redis) need a real mutual-exclusion primitive, not
// just an in-process mutex.
type LockingKVStore interface {
	KVStore

	// Lock acquires an exclusive lock on key, blocking up to the store's
	// configured lockAcquireTimeout. On timeout it returns an error
	// matched by errors.Is(err, ErrLockTimeout). Every acquired lock
	// starts an auto-release watchdog; if neither Put nor Release happens
	// before the watchdog fires, the lock is released and a warning is
	// logged.
	Lock(ctx context.Context, key string) error

	// Release releases a held lock without writing a value.
	Release(key string)
}

// StoreOption configures an InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithStoreLockAcquireTimeout overrides the default Lock wait budget.
func WithStoreLockAcquireTimeout(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.lockAcquireTimeout = d }
}

// WithStoreLockTimeout overrides the default watchdog duration.
func WithStoreLockTimeout(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.lockTimeout = d }
}

// lockState tracks one key's lock state machine: Free -> Locked (watchdog
// armed) -> Free, via Put, Release, or watchdog expiry.
type lockState struct {
	mu       sync.Mutex
	held     bool
	waiters  chan struct{} // closed and replaced whenever the lock is released, to wake blocked Lock callers
	watchdog *time.Timer
}

// InMemoryStore is the default, non-durable KVStore/LockingKVStore
// implementation: a single process-local map guarded by per-key lock
// state. It supports both concurrency styles a caller might need — the
// nonce manager can use it either as a single-holder critical section (via
// its own mutex) or as the lock-based variant (via Lock/Release).
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]any

	locksMu sync.Mutex
	locks   map[string]*lockState

	lockAcquireTimeout time.Duration
	lockTimeout        time.Duration
}

// NewInMemoryStore creates an InMemoryStore with the default lock timings
// (45s acquire timeout, 5s watchdog), overridable via options.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		data:               make(map[string]any),
		locks:              make(map[string]*lockState),
		lockAcquireTimeout: 45 * time.Second,
		lockTimeout:        5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get never blocks on writes: it only takes the read lock, which is free
// whenever no Put/Delete/Clear is in flight.
func (s *InMemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Put replaces key's value and, if key is locked, releases the lock as a
// side effect.
func (s *InMemoryStore) Put(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	s.Release(key)
}

func (s *InMemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	s.Release(key)
}

func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.mu.Unlock()

	s.locksMu.Lock()
	for key, st := range s.locks {
		st.mu.Lock()
		if st.held {
			st.release()
		}
		st.mu.Unlock()
		delete(s.locks, key)
	}
	s.locksMu.Unlock()
}

func (s *InMemoryStore) stateFor(key string) *lockState {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	st, ok := s.locks[key]
	if !ok {
		st = &lockState{waiters: make(chan struct{})}
		s.locks[key] = st
	}
	return st
}

// release is called with st.mu held; it frees the lock, cancels the
// watchdog, and wakes any goroutine blocked in Lock.
func (st *lockState) release() {
	st.held = false
	if st.watchdog != nil {
		st.watchdog.Stop()
		st.watchdog = nil
	}
	close(st.waiters)
	st.waiters = make(chan struct{})
}

// Lock acquires an exclusive lock on key, blocking up to lockAcquireTimeout.
func (s *InMemoryStore) Lock(ctx context.Context, key string) error {
	deadline := time.Now().Add(s.lockAcquireTimeout)

	for {
		st := s.stateFor(key)
		st.mu.Lock()
		if !st.held {
			st.held = true
			st.watchdog = time.AfterFunc(s.lockTimeout, func() {
				st.mu.Lock()
				if st.held {
					logger.WithFields(logger.Fields{
						"key": key,
					}).Warn("txpipe: lock watchdog fired, auto-releasing")
					st.release()
				}
				st.mu.Unlock()
			})
			st.mu.Unlock()
			return nil
		}
		waiters := st.waiters
		st.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockTimeout
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-waiters:
			timer.Stop()
			// loop and retry acquisition
		case <-timer.C:
			return ErrLockTimeout
		}
	}
}

// Release releases key's lock without writing a value. Releasing a key that
// isn't locked is a no-op (mirrors the watchdog racing a caller's Release).
func (s *InMemoryStore) Release(key string) {
	s.locksMu.Lock()
	st, ok := s.locks[key]
	s.locksMu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	if st.held {
		st.release()
	}
	st.mu.Unlock()
}

var _ LockingKVStore = (*InMemoryStore)(nil)
