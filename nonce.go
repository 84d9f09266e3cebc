package txpipe

import (
	"context"
	"sort"
	"sync"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
)

const nonceKeyPrefix = "nonce:"

func nonceKey(address common.Address) string {
	return nonceKeyPrefix + address.Hex()
}

// NonceManager dispenses unique, gap-filling nonces per account, respecting
// the node's mempool and coexisting with concurrent callers.
//
// It is built on top of a KVStore: when the store also implements
// LockingKVStore, NonceManager uses the lock-based shared-store variant
// (safe across processes); otherwise it falls back to an in-process
// per-address mutex, which is the single-holder variant.
type NonceManager struct {
	store     KVStore
	inspector *AccountInspector

	addrLocksMu sync.Mutex
	addrLocks   map[common.Address]*sync.Mutex
}

// NewNonceManager builds a NonceManager backed by store for persistence and
// inspector for node reads.
func NewNonceManager(store KVStore, inspector *AccountInspector) *NonceManager {
	return &NonceManager{
		store:     store,
		inspector: inspector,
		addrLocks: make(map[common.Address]*sync.Mutex),
	}
}

func (n *NonceManager) localLock(address common.Address) *sync.Mutex {
	n.addrLocksMu.Lock()
	defer n.addrLocksMu.Unlock()
	l, ok := n.addrLocks[address]
	if !ok {
		l = &sync.Mutex{}
		n.addrLocks[address] = l
	}
	return l
}

// critical acquires the critical section for address (via the store's lock
// if it supports one, otherwise a local mutex) and runs fn. fn is
// responsible for calling store.Put itself to persist a change, which also
// releases the store's lock; critical only releases explicitly when fn
// errors out before reaching its own Put.
func (n *NonceManager) critical(ctx context.Context, address common.Address, fn func() error) error {
	key := nonceKey(address)

	if locking, ok := n.store.(LockingKVStore); ok {
		if err := locking.Lock(ctx, key); err != nil {
			return newTimeout(err)
		}
		err := fn()
		if err != nil {
			// fn didn't reach store.Put, so the lock is still ours to
			// release. On the success path Put already released it; the
			// lockState carries no ownership token, so releasing again
			// here would free whoever next acquired the key.
			locking.Release(key)
		}
		return err
	}

	mu := n.localLock(address)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// loadStored reads back the reserved-nonce set for key. The set is
// persisted as a []uint64 rather than a map, since that's the form every
// KVStore can round-trip: InMemoryStore hands the exact value back, while
// a JSON-backed store (persistence/redis.Store) decodes a generic slice
// into []any of float64 elements — both shapes are handled here.
func (n *NonceManager) loadStored(key string) map[uint64]bool {
	v, ok := n.store.Get(key)
	if !ok {
		return map[uint64]bool{}
	}

	out := map[uint64]bool{}
	switch vals := v.(type) {
	case []uint64:
		for _, nonce := range vals {
			out[nonce] = true
		}
	case []any:
		for _, raw := range vals {
			switch num := raw.(type) {
			case float64:
				out[uint64(num)] = true
			case uint64:
				out[num] = true
			case int:
				out[uint64(num)] = true
			}
		}
	}
	return out
}

// storedSlice converts the in-memory reservation set back into the
// JSON-portable []uint64 persisted form, sorted for deterministic output.
func storedSlice(stored map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(stored))
	for nonce := range stored {
		out = append(out, nonce)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Acquire returns a nonce reserved for address, implementing gap-first
// allocation: it fills the lowest unreserved hole between the confirmed
// count and the mempool's pending/queued nonces before extending past them.
func (n *NonceManager) Acquire(ctx context.Context, address common.Address) (uint64, error) {
	var result uint64
	key := nonceKey(address)

	err := n.critical(ctx, address, func() error {
		stored := n.loadStored(key)

		txCount, err := n.inspector.ConfirmedCount(ctx, address)
		if err != nil {
			return err
		}
		mempool, err := n.inspector.InspectMempool(ctx, address)
		if err != nil {
			return err
		}

		// 1. drop mined nonces
		var released []uint64
		for nonce := range stored {
			if nonce < txCount {
				delete(stored, nonce)
				released = append(released, nonce)
			}
		}
		if len(released) > 0 {
			sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
			logger.WithFields(logger.Fields{
				"address": address.Hex(),
				"nonces":  released,
			}).Debug("txpipe: releasing mined nonces before allocation")
		}

		// 2. known = stored ∪ pending ∪ queued
		known := make(map[uint64]bool, len(stored))
		for nonce := range stored {
			known[nonce] = true
		}
		for nonce := range mempool.Pending {
			known[nonce] = true
		}
		for nonce := range mempool.Queued {
			known[nonce] = true
		}

		// 3. maxKnown = max(known ∪ {txCount})
		maxKnown := txCount
		for nonce := range known {
			if nonce > maxKnown {
				maxKnown = nonce
			}
		}

		// 4. first hole wins, else maxKnown + 1
		next := txCount
		for known[next] && next <= maxKnown {
			next++
		}

		// 5. reserve and persist
		stored[next] = true
		n.store.Put(key, storedSlice(stored))
		result = next
		return nil
	})
	if err != nil {
		return 0, Classify(err)
	}
	return result, nil
}

// Release returns nonce to address's pool.
func (n *NonceManager) Release(ctx context.Context, address common.Address, nonce uint64) error {
	return n.ReleaseMany(ctx, address, []uint64{nonce})
}

// ReleaseMany atomically returns nonces to address's pool, in a single
// critical section (never a loop of unawaited releases).
func (n *NonceManager) ReleaseMany(ctx context.Context, address common.Address, nonces []uint64) error {
	key := nonceKey(address)
	return n.critical(ctx, address, func() error {
		stored := n.loadStored(key)
		for _, nonce := range nonces {
			delete(stored, nonce)
		}
		n.store.Put(key, storedSlice(stored))
		logger.WithFields(logger.Fields{
			"address": address.Hex(),
			"nonces":  nonces,
		}).Debug("txpipe: released nonces")
		return nil
	})
}

// ClearAccounts forgets all per-address nonce state. Safe to call
// concurrently with Acquire; a nonce already handed back to a caller
// remains valid for that caller regardless of what ClearAccounts does to
// the bookkeeping.
func (n *NonceManager) ClearAccounts() {
	for _, key := range n.store.Keys() {
		if len(key) >= len(nonceKeyPrefix) && key[:len(nonceKeyPrefix)] == nonceKeyPrefix {
			n.store.Delete(key)
		}
	}
	n.addrLocksMu.Lock()
	n.addrLocks = make(map[common.Address]*sync.Mutex)
	n.addrLocksMu.Unlock()
}
