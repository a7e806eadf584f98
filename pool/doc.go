// Package pool provides a bounded, generic connection pool.
//
// A Pool creates connections lazily through a Connector until it reaches its
// capacity. Once every connection is checked out, Acquire parks the caller in a
// FIFO queue until Release hands a connection over. Waiting callers honour
// their context: a caller that gives up is removed from the queue, and a
// connection already handed to it is released again, so abandoned waits never
// leak a slot.
//
//	p, err := pool.New(pool.Config{Capacity: 10}, connector)
//	h, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer p.Release(h)
//	use(h.Conn())
//
// Connection creation runs outside the pool lock; only bookkeeping is serialised.
package pool
