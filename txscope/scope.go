// Package txscope scopes one pooled connection to a unit of work and
// guarantees it is returned to the pool on every exit path.
package txscope

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-dataservice/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenPrefix starts every scope token.
const TokenPrefix = "txn_"

// Acquirer is the part of a pool a Scope needs.
type Acquirer[C any] interface {
	Acquire(ctx context.Context) (*pool.Handle[C], error)
	Release(h *pool.Handle[C]) error
}

// Scope is one checked-out connection plus an identifier used in logs.
// It is only valid inside the function passed to Run.
type Scope[C any] struct {
	Token  string
	Handle *pool.Handle[C]
	Start  time.Time
}

// Conn returns the connection held by the scope.
func (s *Scope[C]) Conn() C {
	return s.Handle.Conn()
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	name   string
}

// WithLogger sets the logger for begin/commit/rollback events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName labels the scope in logs, usually with the operation it serves.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

type tokenKey struct{}

// TokenFromContext returns the token of the scope running on ctx, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}

// NewToken returns "txn_" followed by a time-ordered UUID.
func NewToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return TokenPrefix + id.String()
}

// Run acquires one connection, calls fn with it and releases it on every exit
// path. A panic in fn is re-raised after the release. Scopes do not nest:
// each Run holds its own connection.
func Run[C, T any](ctx context.Context, acquirer Acquirer[C], fn func(ctx context.Context, s *Scope[C]) (T, error), opts ...Option) (result T, err error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	h, err := acquirer.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("txscope: acquire: %w", err)
	}

	s := &Scope[C]{
		Token:  NewToken(),
		Handle: h,
		Start:  time.Now(),
	}
	logger := o.logger.With().Str("txn", s.Token).Int64("conn_id", h.ID()).Logger()
	if o.name != "" {
		logger = logger.With().Str("scope", o.name).Logger()
	}
	logger.Debug().Msg("transaction scope begin")

	defer func() {
		p := recover()

		if rerr := acquirer.Release(h); rerr != nil {
			logger.Warn().Err(rerr).Msg("transaction scope release failed")
		}

		switch {
		case p != nil:
			logger.Error().Interface("panic", p).Dur("elapsed", time.Since(s.Start)).Msg("transaction scope rollback")
			panic(p)
		case err != nil:
			logger.Error().Err(err).Dur("elapsed", time.Since(s.Start)).Msg("transaction scope rollback")
		default:
			logger.Debug().Dur("elapsed", time.Since(s.Start)).Msg("transaction scope commit")
		}
	}()

	return fn(context.WithValue(ctx, tokenKey{}, s.Token), s)
}
