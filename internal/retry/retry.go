// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped into the error returned once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds an operation to Attempts tries spaced Delay apart.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// Do calls op until it succeeds or the policy's attempts are used up. Every
// failed attempt is logged at error level, followed by one final message when
// Do gives up. Cancelling ctx stops retrying immediately.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, what string, op func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		zero    T
		attempt int
		lastErr error
	)
	limit := p.attempts()

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(limit-1)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Error(what, "attempt", attempt, "max_attempts", limit, "err", err)
		return err
	}, b)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}

	logger.Error("giving up", "op", what, "attempts", attempt, "err", lastErr)
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", what, ErrExhausted, attempt, lastErr)
}
