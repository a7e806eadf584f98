package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-dataservice/pool"
	"github.com/rs/zerolog"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first. 1 disables retry.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Exponential doubles the delay after each failed attempt.
	Exponential bool

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns 3 attempts starting at 100ms with exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Exponential:  true,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("retry: initial delay must be non-negative, got %s", p.InitialDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("retry: max delay must be non-negative, got %s", p.MaxDelay)
	}
	return nil
}

// Delay returns the wait after the n-th failed attempt (n starts at 1):
// InitialDelay*2^(n-1) when exponential, InitialDelay otherwise.
func (p Policy) Delay(n int) time.Duration {
	d := p.InitialDelay
	if p.Exponential {
		for i := 1; i < n; i++ {
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
			// stop doubling before the duration overflows
			if d > time.Duration(1<<62) {
				break
			}
			d *= 2
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Classifier reports whether err must not be retried.
type Classifier func(err error) bool

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultClassifier treats a closed pool and context errors as permanent.
func DefaultClassifier(err error) bool {
	return errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Permanent wraps err so the default classifier stops retrying on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for attempt failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClassifier replaces DefaultClassifier. Errors wrapped with Permanent are
// never retried regardless of the classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithSleep replaces the timer-based wait.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// Executor runs operations under a retry Policy. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	policy   Policy
	classify Classifier
	sleep    SleepFunc
	logger   zerolog.Logger
}

// New validates policy and returns an Executor.
func New(policy Policy, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		policy:   policy,
		classify: DefaultClassifier,
		sleep:    sleepContext,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do calls op until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts is reached. attempt starts at 1. On exhaustion the last
// error is returned unchanged; when the context ends first it is wrapped
// together with the context error.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, aborted(lastErr, err)
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) || e.classify(err) {
			e.logger.Debug().Err(err).Int("attempt", attempt).Msg("permanent error, not retrying")
			return zero, err
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		e.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", e.policy.MaxAttempts).
			Dur("delay", delay).
			Msg("attempt failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return zero, aborted(lastErr, err)
		}
	}

	return zero, lastErr
}

// aborted keeps both the operation's last error and the context error
// matchable with errors.Is.
func aborted(lastErr, ctxErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (retry aborted: %w)", lastErr, ctxErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
