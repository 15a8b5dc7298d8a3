// Package acquire bounds single location fetches with a deadline.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/fieldpresence/internal/domain"
)

// ErrTimeout is returned by Race when the deadline fires before the operation completes.
var ErrTimeout = errors.New("deadline elapsed before operation completed")

// Clock abstracts timer creation so races can be driven by a fake clock in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

type result[T any] struct {
	value T
	err   error
}

// Race runs op and a deadline timer concurrently and returns whichever finishes first.
// The operation is not cancelled when the deadline wins; its late result is dropped.
func Race[T any](ctx context.Context, clock Clock, deadline time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if clock == nil {
		clock = SystemClock
	}
	if deadline <= 0 {
		return zero, ErrTimeout
	}

	done := make(chan result[T], 1)
	timer := clock.After(deadline)
	go func() {
		value, err := op(ctx)
		done <- result[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Fetcher performs a one-shot location fetch.
type Fetcher interface {
	Current(ctx context.Context) (domain.LocationSample, error)
}

// Fix obtains a single location sample from fetcher within deadline.
// A deadline miss is reported as domain.ErrAcquisitionTimeout.
func Fix(ctx context.Context, fetcher Fetcher, clock Clock, deadline time.Duration) (domain.LocationSample, error) {
	start := time.Now()
	sample, err := Race(ctx, clock, deadline, fetcher.Current)
	switch {
	case err == nil:
		recordOutcome("fix", time.Since(start))
		return sample, nil
	case errors.Is(err, ErrTimeout):
		recordOutcome("timeout", time.Since(start))
		return domain.LocationSample{}, fmt.Errorf("%w after %s: %w", domain.ErrAcquisitionTimeout, deadline, err)
	default:
		recordOutcome("error", time.Since(start))
		return domain.LocationSample{}, err
	}
}
