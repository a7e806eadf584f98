package testsupport

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-dataservice/dataservice"
	"github.com/goliatone/go-dataservice/pool"
)

// ErrTransient is the error FakeExecutor returns for scripted failures.
var ErrTransient = errors.New("testsupport: transient failure")

// FakeConn is the connection type handed out by CountingConnector.
type FakeConn struct {
	ID int64
}

// CountingConnector creates FakeConns and counts connects and disconnects.
type CountingConnector struct {
	next        atomic.Int64
	Connects    atomic.Int64
	Disconnects atomic.Int64

	// Err, when set, fails every Connect.
	Err error
}

var _ pool.Connector[*FakeConn] = (*CountingConnector)(nil)

func (c *CountingConnector) Connect(ctx context.Context) (*FakeConn, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.Connects.Add(1)
	return &FakeConn{ID: c.next.Add(1)}, nil
}

func (c *CountingConnector) Disconnect(*FakeConn) error {
	c.Disconnects.Add(1)
	return nil
}

// FakeExecutor is a scriptable dataservice.Executor over FakeConn.
type FakeExecutor struct {
	mu sync.Mutex

	// Rows is copied into the result of every successful Query.
	Rows []dataservice.Row

	// QueryFailures makes the next N Query calls fail with ErrTransient.
	QueryFailures int

	// QueryErr, when set, fails every Query.
	QueryErr error

	// FailInsert decides whether an Insert of batch fails. Nil never fails.
	FailInsert func(batch []dataservice.Row) error

	// Delay is slept (context aware) before each call returns.
	Delay time.Duration

	queries  []string
	params   []dataservice.Params
	inserts  int
	inserted []dataservice.Row
	conns    map[int64]int
}

var _ dataservice.Executor[*FakeConn] = (*FakeExecutor)(nil)

func (f *FakeExecutor) Query(ctx context.Context, conn *FakeConn, query string, params dataservice.Params) ([]dataservice.Row, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	f.trackConn(conn)

	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if f.QueryFailures > 0 {
		f.QueryFailures--
		return nil, ErrTransient
	}
	if f.Rows == nil {
		return nil, nil
	}
	rows := make([]dataservice.Row, len(f.Rows))
	for i, row := range f.Rows {
		rows[i] = maps.Clone(row)
	}
	return rows, nil
}

func (f *FakeExecutor) Insert(ctx context.Context, conn *FakeConn, table string, records []dataservice.Row) (int, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inserts++
	f.trackConn(conn)

	if f.FailInsert != nil {
		if err := f.FailInsert(records); err != nil {
			return 0, err
		}
	}
	f.inserted = append(f.inserted, records...)
	return len(records), nil
}

// QueryCalls returns how many times Query ran, failures included.
func (f *FakeExecutor) QueryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// Queries returns the query texts and params in call order.
func (f *FakeExecutor) Queries() ([]string, []dataservice.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...), append([]dataservice.Params(nil), f.params...)
}

// InsertCalls returns how many times Insert ran, failures included.
func (f *FakeExecutor) InsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

// Inserted returns every record from successful Insert calls.
func (f *FakeExecutor) Inserted() []dataservice.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dataservice.Row(nil), f.inserted...)
}

// ConnUses returns how many calls ran on each connection ID.
func (f *FakeExecutor) ConnUses() map[int64]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]int, len(f.conns))
	for id, n := range f.conns {
		out[id] = n
	}
	return out
}

func (f *FakeExecutor) trackConn(conn *FakeConn) {
	if conn == nil {
		return
	}
	if f.conns == nil {
		f.conns = make(map[int64]int)
	}
	f.conns[conn.ID]++
}

func (f *FakeExecutor) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.Delay
	f.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
