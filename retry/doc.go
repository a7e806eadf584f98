// Package retry runs an operation repeatedly with constant or exponential
// backoff until it succeeds or a bound is reached.
//
//	exec, err := retry.New(retry.Policy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, Exponential: true})
//	rows, err := retry.Do(ctx, exec, func(ctx context.Context, attempt int) ([]Row, error) {
//		return query(ctx)
//	})
//
// Waits between attempts park only the calling goroutine and end early when
// the context is done.
package retry
