// Package optimistic provides the shared bounded retry loop for optimistic
// read-modify-write cycles against the document store. Every compare-and-swap
// path (counter adjustment, batch claim, guarded replace) runs through Do so
// the backoff policy lives in exactly one place.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAttempts bounds how many times a conflicting cycle is retried before
// the conflict is surfaced to the caller.
const DefaultAttempts = 5

// DefaultBaseDelay is the pre-jitter delay between attempts.
const DefaultBaseDelay = 50 * time.Millisecond

// ErrExhausted reports that every attempt ended in a precondition conflict.
var ErrExhausted = errors.New("optimistic retry attempts exhausted")

// Policy parameterizes the retry loop.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultPolicy returns the policy used across the store.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, BaseDelay: DefaultBaseDelay}
}

// Do runs one read-decide-write cycle up to p.Attempts times. The cycle
// returns retryable=true for a precondition conflict that warrants a re-read;
// any other error aborts immediately. Delay between attempts is the base
// delay scaled by attempt number with +/-50% randomization.
func Do(ctx context.Context, p Policy, cycle func(ctx context.Context) (retryable bool, err error)) error {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}

	bo := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0.5,
		Multiplier:          1.5,
		MaxInterval:         time.Second,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
	bo.Reset()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		retryable, err := cycle(ctx)
		attempts = attempt
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err

		if attempt == p.Attempts {
			break
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			// The context-aware backoff returns Stop once ctx is done.
			if err := ctx.Err(); err != nil {
				return err
			}
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
