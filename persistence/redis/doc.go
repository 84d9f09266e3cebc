// Package redis provides a Redis-based txpipe.LockingKVStore, so a
// pipeline's nonce bookkeeping survives a process restart instead of
// resetting to InMemoryStore's empty map.
//
// # Basic Usage
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	pipeline := txpipe.NewPipeline(node,
//		txpipe.WithStore(redisstore.NewStore(client)),
//	)
//
// # Multi-Tenant Usage
//
// Use a key prefix to isolate state for different applications or
// environments sharing one Redis instance:
//
//	prodStore := redisstore.NewStore(client, redisstore.WithStoreKeyPrefix("prod"))
//	testStore := redisstore.NewStore(client, redisstore.WithStoreKeyPrefix("test"))
//
// # Redis Key Structure
//
//   - txpipe:kv:{key} - a stored value (JSON)
//   - txpipe:kv:index - set of all known keys, for Keys()/Clear()
//   - txpipe:lock:{key} - the lock marker for key, with a TTL
//
// # Thread and Process Safety
//
// Store is safe for concurrent use, both within one process and across
// every process pointed at the same Redis instance: Lock is a real
// cross-process mutex (SET NX with a TTL), not just an in-process one.
package redis
