package dataservice

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/goliatone/go-dataservice/cache"
	"github.com/goliatone/go-dataservice/config"
	"github.com/goliatone/go-dataservice/internal/logging"
	"github.com/goliatone/go-dataservice/pool"
	"github.com/goliatone/go-dataservice/retry"
	"github.com/goliatone/go-dataservice/txscope"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Option configures optional Service collaborators.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	store       cache.Store[string, []Row]
	retry       *retry.Executor
	keys        cache.KeyDeriver
	storeOpts   []cache.StoreOption
	poolOptions []pool.Option
}

// WithLogger sets the logger shared by the service and its pool, retry and
// scope components.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore replaces the cache built from config.Cache.
func WithStore(store cache.Store[string, []Row]) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithStoreOptions passes options to the cache built from config.Cache.
func WithStoreOptions(opts ...cache.StoreOption) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithRetry replaces the retry executor built from config.Retry.
func WithRetry(exec *retry.Executor) Option {
	return func(o *options) {
		o.retry = exec
	}
}

// WithKeyDeriver replaces cache.NewKeyDeriver.
func WithKeyDeriver(keys cache.KeyDeriver) Option {
	return func(o *options) {
		o.keys = keys
	}
}

// WithPoolOptions passes options to the connection pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *options) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// Service is the data access façade: cached reads, batched writes and
// filtered search over pooled connections of type C.
//
// A read first checks the cache. On a miss it opens a transaction scope, which
// waits for a pooled connection, and runs the query under the retry executor
// inside that scope. Successful results are cached.
type Service[C any] struct {
	cfg    config.Config
	pool   *pool.Pool[C]
	exec   Executor[C]
	store  cache.Store[string, []Row]
	retry  *retry.Executor
	keys   cache.KeyDeriver
	tags   *tagRegistry
	flight singleflight.Group
	stats  *stats

	logger      zerolog.Logger
	scopeLogger zerolog.Logger
	closed      atomic.Bool
}

// New validates cfg and wires the pool, cache and retry executor around exec.
// Connections are created lazily on first use.
func New[C any](cfg config.Config, connector pool.Connector[C], exec Executor[C], opts ...Option) (*Service[C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dataservice: invalid config: %w", err)
	}
	if exec == nil {
		return nil, errors.New("dataservice: executor is required")
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	poolOpts := append([]pool.Option{pool.WithLogger(logging.Component(o.logger, "pool"))}, o.poolOptions...)
	p, err := pool.New(pool.Config{
		Capacity:       cfg.Connection.PoolSize,
		AcquireTimeout: cfg.Connection.AcquireTimeout,
	}, connector, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("dataservice: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = cache.NewStore[[]Row](cacheConfig(cfg.Cache), o.storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("dataservice: cache: %w", err)
		}
	}

	exe := o.retry
	if exe == nil {
		exe, err = retry.New(retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			Exponential:  cfg.Retry.Exponential,
			MaxDelay:     cfg.Retry.MaxDelay,
		}, retry.WithLogger(logging.Component(o.logger, "retry")))
		if err != nil {
			return nil, fmt.Errorf("dataservice: %w", err)
		}
	}

	keys := o.keys
	if keys == nil {
		keys = cache.NewKeyDeriver()
	}

	return &Service[C]{
		cfg:         cfg,
		pool:        p,
		exec:        exec,
		store:       store,
		retry:       exe,
		keys:        keys,
		tags:        newTagRegistry(),
		stats:       newStats(),
		logger:      logging.Component(o.logger, "dataservice"),
		scopeLogger: logging.Component(o.logger, "txscope"),
	}, nil
}

func cacheConfig(c config.Cache) cache.Config {
	return cache.Config{
		Backend:            cache.Backend(c.Backend),
		TTL:                c.TTL,
		MaxSize:            c.MaxSize,
		Policy:             cache.EvictionPolicy(c.Policy),
		NumShards:          c.NumShards,
		EvictionPercentage: c.EvictionPercentage,
	}
}

// FetchData returns the rows for query and params, from the cache when a
// fresh entry exists. Tags attached with WithCacheTags are registered for the
// cached result.
func (s *Service[C]) FetchData(ctx context.Context, query string, params Params) (rows []Row, err error) {
	done := s.monitor("FetchData")
	defer func() { done(err) }()

	if s.closed.Load() {
		return nil, ErrServiceClosed
	}

	key := s.keys.DeriveKey(query, params)
	if cached, ok := s.store.Get(key); ok {
		s.stats.hits.Inc()
		return cloneRows(cached), nil
	}
	s.stats.misses.Inc()

	tags := cacheTagsFromContext(ctx)
	if !s.cfg.Service.CollapseMisses {
		return s.load(ctx, key, tags, query, params)
	}

	// Concurrent misses of one key share the first caller's execution and context.
	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.load(ctx, key, tags, query, params)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		return cloneRows(v.([]Row)), nil
	}
	return v.([]Row), nil
}

func (s *Service[C]) load(ctx context.Context, key string, tags []string, query string, params Params) ([]Row, error) {
	attempts := 0
	rows, err := txscope.Run(ctx, s.pool, func(ctx context.Context, sc *txscope.Scope[C]) ([]Row, error) {
		return retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) ([]Row, error) {
			attempts = attempt
			return s.exec.Query(ctx, sc.Conn(), query, params)
		})
	}, txscope.WithLogger(s.scopeLogger), txscope.WithName("fetch_data"))
	if err != nil {
		return nil, s.fail("FetchData", attempts, err)
	}

	s.stats.queries.Inc()
	if err := s.store.Set(key, cloneRows(rows)); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("result not cached")
		return rows, nil
	}
	s.tags.register(key, tags)
	return rows, nil
}

// fail records a terminal error and wraps it. A pool closed by Close reports
// ErrServiceClosed instead.
func (s *Service[C]) fail(op string, attempts int, err error) error {
	if errors.Is(err, pool.ErrPoolClosed) && s.pool.Closed() {
		return ErrServiceClosed
	}
	s.stats.errors.Inc()
	opErr := &OperationError{Op: toSnake(op), Attempts: attempts, Err: err}
	s.logger.Error().Err(err).Str("op", opErr.Op).Int("attempts", attempts).Msg("operation failed")
	return opErr
}

// BatchInsert inserts records into table in batches of config.Service.BatchSize.
// Each batch runs in its own scope under the retry executor. A batch that still
// fails is logged, counted and skipped. The count of inserted records is
// returned; cached reads tagged with table are invalidated when it is non-zero.
func (s *Service[C]) BatchInsert(ctx context.Context, table string, records []Row) (inserted int, err error) {
	done := s.monitor("BatchInsert")
	defer func() { done(err) }()

	if s.closed.Load() {
		return 0, ErrServiceClosed
	}
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}

	defer func() {
		if inserted > 0 {
			s.Invalidate(table)
		}
	}()

	size := s.cfg.Service.BatchSize
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Err(err).Int("batch_start", start).Int("inserted", inserted).Msg("batch insert interrupted")
			return inserted, err
		}

		end := min(start+size, len(records))
		n, err := s.insertBatch(ctx, table, records[start:end])
		if err != nil {
			if errors.Is(err, ErrServiceClosed) {
				return inserted, err
			}
			s.stats.batchesFailed.Inc()
			s.logger.Error().Err(err).
				Str("table", table).
				Int("batch_start", start).
				Int("batch_size", end-start).
				Msg("batch insert failed, skipping batch")
			continue
		}

		inserted += n
		s.stats.inserted.Add(int64(n))
	}

	return inserted, nil
}

func (s *Service[C]) insertBatch(ctx context.Context, table string, batch []Row) (int, error) {
	attempts := 0
	n, err := txscope.Run(ctx, s.pool, func(ctx context.Context, sc *txscope.Scope[C]) (int, error) {
		return retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (int, error) {
			attempts = attempt
			return s.exec.Insert(ctx, sc.Conn(), table, batch)
		})
	}, txscope.WithLogger(s.scopeLogger), txscope.WithName("batch_insert"))
	if err != nil {
		return 0, s.fail("BatchInsert", attempts, err)
	}
	return n, nil
}

// SearchWithFilters queries config.Service.SearchTable with equality filters
// through FetchData. limit <= 0 uses config.Service.DefaultLimit. Results are
// tagged with the table name.
func (s *Service[C]) SearchWithFilters(ctx context.Context, filters Filters, sortBy string, limit int) (rows []Row, err error) {
	done := s.monitor("SearchWithFilters")
	defer func() { done(err) }()

	if s.closed.Load() {
		return nil, ErrServiceClosed
	}
	if limit <= 0 {
		limit = s.cfg.Service.DefaultLimit
	}

	table := s.cfg.Service.SearchTable
	query, params, err := BuildSearchQuery(table, filters, sortBy, limit)
	if err != nil {
		return nil, err
	}
	return s.FetchData(WithCacheTags(ctx, table), query, params)
}

// Invalidate drops every cached result registered under any of tags and
// returns how many entries were dropped.
func (s *Service[C]) Invalidate(tags ...string) int {
	keys := s.tags.take(dedupeStrings(tags)...)
	for _, key := range keys {
		s.store.Delete(key)
	}
	if len(keys) > 0 {
		s.logger.Debug().Strs("tags", tags).Int("keys", len(keys)).Msg("cache invalidated")
	}
	return len(keys)
}

// GetStatistics returns a snapshot of the counters. It keeps working after Close.
func (s *Service[C]) GetStatistics() Statistics {
	return s.stats.snapshot()
}

// PoolStat returns a snapshot of the connection pool.
func (s *Service[C]) PoolStat() pool.Stat {
	return s.pool.Stat()
}

// Config returns the configuration the service was built with.
func (s *Service[C]) Config() config.Config {
	return s.cfg
}

// Close closes every pooled connection, including checked-out ones, and fails
// callers waiting for a connection. Only the first call does any work; later
// calls return ErrServiceClosed.
func (s *Service[C]) Close(_ context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrServiceClosed
	}

	err := s.pool.CloseAll()

	st := s.GetStatistics()
	s.logger.Info().
		Int64("queries_executed", st.QueriesExecuted).
		Int64("cache_hits", st.CacheHits).
		Int64("cache_misses", st.CacheMisses).
		Int64("errors", st.Errors).
		Int64("records_inserted", st.RecordsInserted).
		Int64("batches_failed", st.BatchesFailed).
		Float64("hit_rate_percent", st.HitRatePercent).
		Msg("data service closed")

	if err != nil {
		return fmt.Errorf("dataservice: close: %w", err)
	}
	return nil
}
