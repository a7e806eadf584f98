package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrPoolClosed is returned by Acquire and Release once CloseAll has run.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrInvalidHandle is returned when releasing a handle that is not checked out.
	ErrInvalidHandle = errors.New("pool: handle is not checked out")

	// ErrAcquireTimeout is returned when a bounded wait for a handle expires.
	ErrAcquireTimeout = errors.New("pool: timed out waiting for a connection")
)

// Config controls the size and wait behaviour of a Pool.
type Config struct {
	// Capacity is the maximum number of connections the pool creates. Must be >= 1.
	Capacity int

	// AcquireTimeout bounds Acquire when the caller's context has no deadline.
	// Zero waits until the context is done.
	AcquireTimeout time.Duration
}

// Connector creates and disposes of the connections a Pool hands out.
// Connect may block; the pool never holds its lock while it runs.
type Connector[C any] interface {
	Connect(ctx context.Context) (C, error)
	Disconnect(conn C) error
}

// Dialer adapts plain functions to Connector. A nil DisconnectFunc is a no-op.
type Dialer[C any] struct {
	ConnectFunc    func(ctx context.Context) (C, error)
	DisconnectFunc func(conn C) error
}

func (d Dialer[C]) Connect(ctx context.Context) (C, error) {
	return d.ConnectFunc(ctx)
}

func (d Dialer[C]) Disconnect(conn C) error {
	if d.DisconnectFunc == nil {
		return nil
	}
	return d.DisconnectFunc(conn)
}

// Option configures optional Pool collaborators.
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Stat is a point-in-time snapshot of pool bookkeeping.
type Stat struct {
	Capacity  int
	Created   int
	Available int
	InUse     int
	Pending   int
	Waiting   int
}

// waiter is a parked Acquire call. A nil handle on ch means a slot was freed
// and the waiter should try again; a closed ch means the pool shut down.
type waiter[C any] struct {
	ch chan *Handle[C]
}

// Pool is a bounded set of reusable connections with checkout/return semantics.
//
// Invariant: created == len(available) + len(inUse) and created+pending <= capacity.
// Handles handed directly from Release to a waiter stay in inUse throughout.
type Pool[C any] struct {
	cfg       Config
	connector Connector[C]
	logger    zerolog.Logger

	mu        sync.Mutex
	available []*Handle[C]
	inUse     map[*Handle[C]]struct{}
	created   int
	pending   int
	waiters   []*waiter[C]
	nextID    int64
	closed    bool
}

// New creates an empty pool. Connections are created lazily by Acquire.
func New[C any](cfg Config, connector Connector[C], opts ...Option) (*Pool[C], error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("pool: capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.AcquireTimeout < 0 {
		return nil, fmt.Errorf("pool: acquire timeout must be non-negative, got %s", cfg.AcquireTimeout)
	}
	if connector == nil {
		return nil, errors.New("pool: connector is required")
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return &Pool[C]{
		cfg:       cfg,
		connector: connector,
		logger:    o.logger,
		inUse:     make(map[*Handle[C]]struct{}, cfg.Capacity),
	}, nil
}

// Acquire returns an idle handle, creates one while under capacity, or waits
// for another caller to Release. Waiters are served in FIFO order.
func (p *Pool[C]) Acquire(ctx context.Context) (*Handle[C], error) {
	if _, ok := ctx.Deadline(); !ok && p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.available); n > 0 {
			h := p.available[n-1]
			p.available[n-1] = nil
			p.available = p.available[:n-1]
			p.inUse[h] = struct{}{}
			p.mu.Unlock()
			return h, nil
		}

		if p.created+p.pending < p.cfg.Capacity {
			p.pending++
			p.nextID++
			id := p.nextID
			p.mu.Unlock()
			return p.connect(ctx, id)
		}

		w := &waiter[C]{ch: make(chan *Handle[C], 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		select {
		case h, ok := <-w.ch:
			if !ok {
				return nil, ErrPoolClosed
			}
			if h == nil {
				continue
			}
			if !h.Alive() {
				return nil, ErrPoolClosed
			}
			return h, nil
		case <-ctx.Done():
			p.abandon(w)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}
}

// connect runs the Connector outside the lock for a slot reserved in pending.
func (p *Pool[C]) connect(ctx context.Context, id int64) (*Handle[C], error) {
	conn, err := p.connector.Connect(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.wakeOneLocked(nil)
		p.mu.Unlock()
		p.logger.Warn().Err(err).Int64("conn_id", id).Msg("connection create failed")
		return nil, fmt.Errorf("pool: connect: %w", err)
	}
	if p.closed {
		p.mu.Unlock()
		if derr := p.connector.Disconnect(conn); derr != nil {
			p.logger.Warn().Err(derr).Int64("conn_id", id).Msg("disconnect after close failed")
		}
		return nil, ErrPoolClosed
	}

	h := newHandle(id, conn)
	p.created++
	p.inUse[h] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug().Int64("conn_id", id).Msg("connection created")
	return h, nil
}

// abandon removes a waiter that gave up. If Release already handed it a
// handle (or a retry signal), the hand-off is passed on so no slot leaks.
func (p *Pool[C]) abandon(w *waiter[C]) {
	p.mu.Lock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	h, ok := <-w.ch
	if !ok {
		return
	}
	if h == nil {
		p.mu.Lock()
		p.wakeOneLocked(nil)
		p.mu.Unlock()
		return
	}
	if err := p.Release(h); err != nil && !errors.Is(err, ErrPoolClosed) {
		p.logger.Error().Err(err).Int64("conn_id", h.ID()).Msg("release of abandoned hand-off failed")
	}
}

// wakeOneLocked hands h to the oldest waiter. It reports false when nobody waits.
func (p *Pool[C]) wakeOneLocked(h *Handle[C]) bool {
	if len(p.waiters) == 0 {
		return false
	}
	w := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	w.ch <- h
	return true
}

// Release returns a checked-out handle. The handle goes straight to the oldest
// waiter when there is one.
func (p *Pool[C]) Release(h *Handle[C]) error {
	if h == nil {
		return ErrInvalidHandle
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.inUse[h]; !ok {
		return ErrInvalidHandle
	}

	if p.wakeOneLocked(h) {
		return nil
	}

	delete(p.inUse, h)
	p.available = append(p.available, h)
	return nil
}

// CloseAll disconnects every connection, including checked-out ones, and fails
// all current and future waiters with ErrPoolClosed. Calling it again is a no-op.
func (p *Pool[C]) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	handles := make([]*Handle[C], 0, p.created)
	handles = append(handles, p.available...)
	for h := range p.inUse {
		handles = append(handles, h)
	}
	for _, w := range p.waiters {
		close(w.ch)
	}
	p.waiters = nil
	p.available = nil
	p.inUse = make(map[*Handle[C]]struct{})
	p.created = 0
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		h.alive.Store(false)
		if err := p.connector.Disconnect(h.conn); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %d: %w", h.id, err))
		}
	}

	p.logger.Info().Int("closed", len(handles)).Msg("connection pool closed")
	return errors.Join(errs...)
}

// Stat returns a snapshot of the pool counters.
func (p *Pool[C]) Stat() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stat{
		Capacity:  p.cfg.Capacity,
		Created:   p.created,
		Available: len(p.available),
		InUse:     len(p.inUse),
		Pending:   p.pending,
		Waiting:   len(p.waiters),
	}
}

// Closed reports whether CloseAll has been called.
func (p *Pool[C]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
