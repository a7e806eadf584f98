package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     int64
	closed atomic.Bool
}

type fakeConnector struct {
	mu          sync.Mutex
	created     []*fakeConn
	connectErr  error
	connectWait chan struct{}
}

func (f *fakeConnector) Connect(ctx context.Context) (*fakeConn, error) {
	if f.connectWait != nil {
		select {
		case <-f.connectWait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := &fakeConn{id: int64(len(f.created) + 1)}
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeConnector) Disconnect(c *fakeConn) error {
	c.closed.Store(true)
	return nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestPool(t *testing.T, capacity int) (*Pool[*fakeConn], *fakeConnector) {
	t.Helper()
	connector := &fakeConnector{}
	p, err := New[*fakeConn](Config{Capacity: capacity}, connector)
	require.NoError(t, err)
	return p, connector
}

func assertInvariant(t *testing.T, p *Pool[*fakeConn]) {
	t.Helper()
	st := p.Stat()
	assert.Equal(t, st.Created, st.Available+st.InUse, "created must equal available+in_use")
	assert.LessOrEqual(t, st.Created+st.Pending, st.Capacity)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		connector Connector[*fakeConn]
		wantErr   bool
	}{
		{name: "valid", cfg: Config{Capacity: 1}, connector: &fakeConnector{}},
		{name: "zero capacity", cfg: Config{Capacity: 0}, connector: &fakeConnector{}, wantErr: true},
		{name: "negative timeout", cfg: Config{Capacity: 1, AcquireTimeout: -time.Second}, connector: &fakeConnector{}, wantErr: true},
		{name: "nil connector", cfg: Config{Capacity: 1}, connector: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, tt.connector)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestPool_ReusesReleasedHandles(t *testing.T) {
	p, connector := newTestPool(t, 3)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, h1.Alive())
	assertInvariant(t, p)

	require.NoError(t, p.Release(h1))
	assertInvariant(t, p)

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, connector.count())
	assertInvariant(t, p)
}

func TestPool_InvariantAcrossSequence(t *testing.T) {
	p, _ := newTestPool(t, 4)
	ctx := context.Background()

	var held []*Handle[*fakeConn]
	ops := []bool{true, true, false, true, true, true, false, false, true, false, false, false}
	for _, acquire := range ops {
		if acquire {
			h, err := p.Acquire(ctx)
			require.NoError(t, err)
			held = append(held, h)
		} else {
			h := held[0]
			held = held[1:]
			require.NoError(t, p.Release(h))
		}
		assertInvariant(t, p)
	}
	assert.LessOrEqual(t, p.Stat().Created, 4)
}

func TestPool_ThirdAcquireWaitsForRelease(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *Handle[*fakeConn], 1)
	go func() {
		h, err := p.Acquire(ctx)
		if err == nil {
			got <- h
		}
	}()

	require.Eventually(t, func() bool { return p.Stat().Waiting == 1 }, time.Second, time.Millisecond)
	select {
	case <-got:
		t.Fatal("third acquire should be suspended while the pool is exhausted")
	default:
	}

	require.NoError(t, p.Release(h2))

	select {
	case h3 := <-got:
		assert.Same(t, h2, h3)
	case <-time.After(time.Second):
		t.Fatal("third acquire was not woken by release")
	}

	assert.Equal(t, 2, p.Stat().Created)
	assertInvariant(t, p)
	require.NoError(t, p.Release(h1))
}

func TestPool_ReleaseErrors(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(h))

	assert.ErrorIs(t, p.Release(h), ErrInvalidHandle, "double release")
	assert.ErrorIs(t, p.Release(nil), ErrInvalidHandle)
	assert.ErrorIs(t, p.Release(newHandle[*fakeConn](99, &fakeConn{})), ErrInvalidHandle, "foreign handle")
	assertInvariant(t, p)
}

func TestPool_AbandonedWaitDoesNotLeak(t *testing.T) {
	p, _ := newTestPool(t, 1)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.Stat().Waiting)

	require.NoError(t, p.Release(h))

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, h2)
	assertInvariant(t, p)
}

func TestPool_CanceledWaitReturnsContextError(t *testing.T) {
	p, _ := newTestPool(t, 1)
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return p.Stat().Waiting == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrAcquireTimeout)
	case <-time.After(time.Second):
		t.Fatal("canceled acquire did not return")
	}
}

func TestPool_AcquireTimeoutFromConfig(t *testing.T) {
	p, err := New[*fakeConn](Config{Capacity: 1, AcquireTimeout: 10 * time.Millisecond}, &fakeConnector{})
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPool_ConnectFailureFreesSlot(t *testing.T) {
	connector := &fakeConnector{connectErr: errors.New("dial refused")}
	p, err := New[*fakeConn](Config{Capacity: 1}, connector)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.ErrorContains(t, err, "dial refused")
	assert.Equal(t, Stat{Capacity: 1}, p.Stat())

	connector.mu.Lock()
	connector.connectErr = nil
	connector.mu.Unlock()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestPool_CloseAllWakesWaiters(t *testing.T) {
	p, connector := newTestPool(t, 1)
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return p.Stat().Waiting == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.CloseAll())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by CloseAll")
	}

	assert.False(t, h.Alive())
	assert.True(t, connector.created[0].closed.Load())
	assert.ErrorIs(t, p.Release(h), ErrPoolClosed)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, p.CloseAll(), "second close is a no-op")
	assert.True(t, p.Closed())
}

func TestPool_ConnectDoesNotHoldLock(t *testing.T) {
	connector := &fakeConnector{connectWait: make(chan struct{})}
	p, err := New[*fakeConn](Config{Capacity: 2}, connector)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Acquire(context.Background())
	}()

	require.Eventually(t, func() bool { return p.Stat().Pending == 1 }, time.Second, time.Millisecond)
	// Stat takes the pool lock; it must not block behind the slow connect.
	assert.Equal(t, 0, p.Stat().Created)

	close(connector.connectWait)
	<-done
	assert.Equal(t, 1, p.Stat().Created)
}

func TestPool_ConcurrentStress(t *testing.T) {
	p, connector := newTestPool(t, 3)

	var wg sync.WaitGroup
	var maxInUse atomic.Int64
	var inUse atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inUse.Add(1)
			for {
				m := maxInUse.Load()
				if n <= m || maxInUse.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			assert.NoError(t, p.Release(h))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInUse.Load(), int64(3))
	assert.LessOrEqual(t, connector.count(), 3)
	assertInvariant(t, p)
	assert.Equal(t, 0, p.Stat().InUse)
}

func TestDialer(t *testing.T) {
	var disconnected bool
	d := Dialer[string]{
		ConnectFunc:    func(ctx context.Context) (string, error) { return "conn", nil },
		DisconnectFunc: func(c string) error { disconnected = true; return nil },
	}

	p, err := New[string](Config{Capacity: 1}, d)
	require.NoError(t, err)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn", h.Conn())
	assert.Equal(t, int64(1), h.ID())

	require.NoError(t, p.CloseAll())
	assert.True(t, disconnected)

	assert.NoError(t, Dialer[string]{}.Disconnect("x"))
}
