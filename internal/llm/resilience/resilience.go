// Package resilience wraps providers with retry and circuit-breaker behavior.
// Dispatch itself never retries; callers opt in by stacking these decorators.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"rana/internal/llm/core"
)

// Retry decorates a provider with bounded exponential-backoff retries.
// Only errors marked retryable (429, 5xx, network) are retried, and only for
// Complete and stream establishment; an already-open stream is never replayed.
type Retry struct {
	next   core.Provider
	policy core.RetryPolicy
}

// WithRetry wraps next with the normalized policy.
func WithRetry(next core.Provider, policy core.RetryPolicy) *Retry {
	return &Retry{next: next, policy: core.NormalizeRetryPolicy(policy)}
}

// Name implements core.Provider.
func (r *Retry) Name() string { return r.next.Name() }

// Complete retries the wrapped call on retryable failures.
func (r *Retry) Complete(ctx context.Context, req *core.Request) (*core.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !core.IsRetryableError(err) || attempt >= r.policy.MaxRetries {
			return nil, err
		}
		lastErr = err

		delay := core.ComputeBackoffDelay(r.policy, attempt)
		slog.Debug("retrying provider call",
			slog.String("provider", r.next.Name()),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))
		if err := core.SleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Stream retries stream establishment only.
func (r *Retry) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	for attempt := 0; ; attempt++ {
		stream, err := r.next.Stream(ctx, req)
		if err == nil {
			return stream, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !core.IsRetryableError(err) || attempt >= r.policy.MaxRetries {
			return nil, err
		}
		if err := core.SleepContext(ctx, core.ComputeBackoffDelay(r.policy, attempt)); err != nil {
			return nil, err
		}
	}
}

// ErrCircuitOpen indicates the breaker is rejecting calls without dialing out.
var ErrCircuitOpen = errors.New("provider circuit open")

// Breaker decorates a provider with a circuit breaker. Consecutive transport
// failures trip the circuit; while open, calls fail fast with ErrCircuitOpen.
type Breaker struct {
	next core.Provider
	cb   *gobreaker.CircuitBreaker
}

// BreakerConfig tunes trip behavior.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// WithBreaker wraps next with a named circuit breaker.
func WithBreaker(next core.Provider, cfg BreakerConfig) *Breaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    next.Name(),
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit state change",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name implements core.Provider.
func (b *Breaker) Name() string { return b.next.Name() }

// Complete routes the call through the breaker.
func (b *Breaker) Complete(ctx context.Context, req *core.Request) (*core.Response, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(*core.Response), nil
}

// Stream routes stream establishment through the breaker. Mid-stream failures
// do not count against the circuit; only failed dials do.
func (b *Breaker) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.next.Stream(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(<-chan core.Event), nil
}
