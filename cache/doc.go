// Package cache provides the result cache used by the data service and the
// derivation of cache keys from queries.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - Store: a capacity-bounded key/value cache whose entries expire after a TTL
//   - KeyDeriver: builds stable cache keys from a query and its parameters
//
// # Backends
//
// NewStore builds a Store from Config. The memory backend is exact: an entry
// stored at t is visible to a Get at t' while t'-t <= TTL, and a Set that finds
// the store full first purges expired entries, then applies the policy:
//
//   - EvictOldest (default): the entry with the oldest insertion is dropped
//   - RejectNew: Set fails with ErrCapacityConflict and the store is unchanged
//
// The sturdyc backend shards entries and evicts a percentage of a full shard at
// once. It suits large caches where approximate eviction is acceptable.
//
//	store, err := cache.NewStore[[]Row](cache.Config{
//		Backend: cache.BackendMemory,
//		TTL:     5 * time.Minute,
//		MaxSize: 1000,
//	})
//
// # Key Derivation
//
// The default deriver hashes the query text and the msgpack encoding of the
// params (map keys sorted) with xxhash:
//
//	deriver := cache.NewKeyDeriver()
//	key := deriver.DeriveKey("SELECT * FROM users WHERE id = :id", map[string]any{"id": 42})
//
// Params msgpack cannot encode, such as functions, fall back to a
// reflection-based text form. Function pointers in that form are stable only
// within a single process lifetime, so such keys must not be shared across
// processes.
package cache
