package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Restarter restarts the browser process between attempts. Implemented by
// automation.Controller.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Attempt records one try of a wrapped operation for observability.
type Attempt struct {
	Number int       `json:"number"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// RetryPolicy wraps navigation operations with failure classification,
// browser restarts, and linear backoff.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	restarter   Restarter
	log         zerolog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// NewRetryPolicy creates a policy. Non-positive maxAttempts or baseDelay
// fall back to the defaults.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration, restarter Restarter, log zerolog.Logger) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		restarter:   restarter,
		log:         log.With().Str("component", "retry").Logger(),
		sleep:       sleepCtx,
	}
}

// Do runs op up to maxAttempts times. Browser faults trigger a restart
// before the next attempt; network faults back off linearly
// (attempt * baseDelay); fatal errors propagate immediately. The returned
// attempts describe every failed try.
func (p *RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) ([]Attempt, error) {
	var attempts []Attempt

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}

		kind := Classify(err)
		attempts = append(attempts, Attempt{
			Number: attempt,
			Kind:   kind,
			Error:  err.Error(),
			At:     time.Now(),
		})
		p.log.Warn().
			Str("op", name).
			Int("attempt", attempt).
			Str("kind", string(kind)).
			Err(err).
			Msg("attempt failed")

		if kind == KindFatal {
			return attempts, err
		}
		if attempt == p.maxAttempts {
			return attempts, fmt.Errorf("%s failed after %d attempts: %w", name, p.maxAttempts, err)
		}

		if kind == KindTransientBrowser {
			if restartErr := p.restarter.Restart(ctx); restartErr != nil {
				p.log.Error().Err(restartErr).Msg("restart between attempts failed")
			}
		}

		if sleepErr := p.sleep(ctx, time.Duration(attempt)*p.baseDelay); sleepErr != nil {
			return attempts, sleepErr
		}
	}

	// Unreachable: the loop always returns from its last iteration.
	return attempts, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
