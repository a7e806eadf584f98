package pool

import "sync/atomic"

// Handle is one pooled connection. While checked out the borrower has
// exclusive use of Conn until it hands the Handle back with Release.
type Handle[C any] struct {
	id    int64
	conn  C
	alive atomic.Bool
}

func newHandle[C any](id int64, conn C) *Handle[C] {
	h := &Handle[C]{id: id, conn: conn}
	h.alive.Store(true)
	return h
}

// ID is unique per pool for the lifetime of the pool.
func (h *Handle[C]) ID() int64 { return h.id }

// Conn returns the underlying connection.
func (h *Handle[C]) Conn() C { return h.conn }

// Alive reports false once the pool has disconnected the handle.
func (h *Handle[C]) Alive() bool { return h.alive.Load() }
