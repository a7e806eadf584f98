package cache

import "github.com/goliatone/go-dataservice/internal/cacheinfra"

// ErrCapacityConflict is returned by Set when the store is full and the
// RejectNew policy is in effect.
var ErrCapacityConflict = cacheinfra.ErrCapacityConflict

// EvictionPolicy decides what a full memory store does on Set.
type EvictionPolicy = cacheinfra.EvictionPolicy

const (
	EvictOldest = cacheinfra.EvictOldest
	RejectNew   = cacheinfra.RejectNew
)

// Store is a capacity-bounded key/value cache with expiring entries.
// Implementations are safe for concurrent use.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V) error
	Delete(key K)
	Len() int
}

var (
	_ Store[string, any] = (*cacheinfra.TTLCache[string, any])(nil)
	_ Store[string, any] = (*cacheinfra.SturdycStore[any])(nil)
)
