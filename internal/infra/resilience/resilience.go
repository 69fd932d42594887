// Package resilience provides fault-tolerance patterns for the upstream
// clients: retry with exponential backoff, circuit breaker, and a serial
// pacer for rate-limited batch work.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	BatchDelay     time.Duration
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation. Only idempotent upstream calls should
// be wrapped: the provider login steps must never be retried because a
// replayed SMS submission consumes the code.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			wait := backoff + jitter

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// Pacer serializes a batch of calls with a fixed delay between items, so
// the utility provider's throttling is never triggered by bulk operations
// such as the multi-invoice download. Callers create one pacer per batch;
// Wait is safe for concurrent use regardless.
type Pacer struct {
	delay time.Duration

	mu    sync.Mutex
	first bool
}

// NewPacer creates a pacer with the given inter-item delay.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, first: true}
}

// Wait blocks for the configured delay before every item except the first.
// It returns early when the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.first {
		p.first = false
		p.mu.Unlock()
		return ctx.Err()
	}
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
		return nil
	}
}
