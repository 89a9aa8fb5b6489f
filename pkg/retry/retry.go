// Package retry provides bounded retry with exponential backoff for
// transient failures on external calls.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Permanent wraps an error to signal that the operation must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks err as permanent so Do returns it without further attempts.
func Stop(err error) error {
	return &Permanent{Err: err}
}

// Options configures retry behavior.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds up to this fraction of the computed delay as random slack.
	Jitter float64
}

// Defaults fills zero-valued fields with conservative defaults.
func (o Options) Defaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Multiplier <= 1 {
		o.Multiplier = 2.0
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	return o
}

// Do runs fn up to MaxAttempts times, sleeping with exponential backoff
// between attempts. It stops early when fn succeeds, fn returns a Permanent
// error, or ctx is cancelled. The last error is returned on exhaustion.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.Defaults()

	var lastErr error
	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}

		if attempt == opts.MaxAttempts {
			break
		}

		sleep := delay
		if opts.Jitter > 0 {
			sleep += time.Duration(rand.Float64() * opts.Jitter * float64(delay))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return lastErr
}
