package cache

import (
	"fmt"
	"time"

	"github.com/goliatone/go-dataservice/internal/cacheinfra"
)

// Backend selects the Store implementation built by NewStore.
type Backend string

const (
	// BackendMemory is an exact TTL cache with a configurable eviction policy.
	BackendMemory Backend = "memory"
	// BackendSturdyc is a sharded cache with approximate, percentage-based eviction.
	BackendSturdyc Backend = "sturdyc"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            Backend
	TTL                time.Duration
	MaxSize            int
	Policy             EvictionPolicy
	NumShards          int
	EvictionPercentage int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	sturdy := cacheinfra.DefaultConfig()
	return Config{
		Backend:            BackendMemory,
		TTL:                sturdy.TTL,
		MaxSize:            1000,
		Policy:             EvictOldest,
		NumShards:          sturdy.NumShards,
		EvictionPercentage: sturdy.EvictionPercentage,
	}
}

// Validate checks whether the configuration values are valid for the selected backend.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
		return c.toTTL().Validate()
	case BackendSturdyc:
		if c.Policy == RejectNew {
			return &cacheinfra.ConfigError{Field: "Policy", Message: "reject_new is not supported by the sturdyc backend"}
		}
		return c.toSturdyc().Validate()
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
}

// StoreOption configures stores built by NewStore.
type StoreOption = cacheinfra.Option

// WithClock replaces time.Now in the memory backend.
func WithClock(now func() time.Time) StoreOption {
	return cacheinfra.WithClock(now)
}

// NewStore constructs the configured Store keyed by derived cache keys.
func NewStore[V any](cfg Config, opts ...StoreOption) (Store[string, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendSturdyc {
		store, err := cacheinfra.NewSturdycStore[V](cfg.toSturdyc())
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := cacheinfra.NewTTLCache[string, V](cfg.toTTL(), opts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toTTL() cacheinfra.TTLConfig {
	return cacheinfra.TTLConfig{
		TTL:     c.TTL,
		MaxSize: c.MaxSize,
		Policy:  c.Policy,
	}
}

func (c Config) toSturdyc() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.MaxSize,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
	}
}
