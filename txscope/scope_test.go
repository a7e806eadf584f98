package txscope

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-dataservice/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, capacity int) *pool.Pool[int] {
	t.Helper()
	n := 0
	p, err := pool.New[int](pool.Config{Capacity: capacity}, pool.Dialer[int]{
		ConnectFunc: func(ctx context.Context) (int, error) {
			n++
			return n, nil
		},
	})
	require.NoError(t, err)
	return p
}

func TestRun_ReleasesOnSuccess(t *testing.T) {
	p := newTestPool(t, 1)

	got, err := Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (string, error) {
		assert.Equal(t, 1, p.Stat().InUse)
		assert.Equal(t, 1, s.Conn())

		token, ok := TokenFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, s.Token, token)
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 0, p.Stat().InUse)
	assert.Equal(t, 1, p.Stat().Available)
}

func TestRun_ReleasesOnError(t *testing.T) {
	p := newTestPool(t, 1)
	boom := errors.New("boom")

	_, err := Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Stat().InUse)
}

func TestRun_ReleasesOnPanic(t *testing.T) {
	p := newTestPool(t, 1)

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, p.Stat().InUse)

	_, err := Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
		return 1, nil
	})
	assert.NoError(t, err, "connection must be reusable after a panic")
}

func TestRun_AcquireFailure(t *testing.T) {
	p := newTestPool(t, 1)
	require.NoError(t, p.CloseAll())

	called := false
	_, err := Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
		called = true
		return 0, nil
	})

	assert.ErrorIs(t, err, pool.ErrPoolClosed)
	assert.False(t, called)
}

func TestRun_TokensAreUnique(t *testing.T) {
	p := newTestPool(t, 2)
	seen := make(map[string]bool)

	for i := 0; i < 20; i++ {
		token, err := Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (string, error) {
			return s.Token, nil
		})
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true

		require.True(t, strings.HasPrefix(token, TokenPrefix))
		id, err := uuid.Parse(strings.TrimPrefix(token, TokenPrefix))
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	}
}

func TestRun_LogsLifecycle(t *testing.T) {
	p := newTestPool(t, 1)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	_, _ = Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
		return 0, nil
	}, WithLogger(logger), WithName("fetch"))
	_, _ = Run(context.Background(), p, func(ctx context.Context, s *Scope[int]) (int, error) {
		return 0, errors.New("failed")
	}, WithLogger(logger))

	out := buf.String()
	assert.Contains(t, out, `"message":"transaction scope begin"`)
	assert.Contains(t, out, `"message":"transaction scope commit"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"message":"transaction scope rollback"`)
	assert.Contains(t, out, `"scope":"fetch"`)
}

func TestTokenFromContext_Missing(t *testing.T) {
	_, ok := TokenFromContext(context.Background())
	assert.False(t, ok)
}
