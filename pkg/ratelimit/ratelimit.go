// Package ratelimit provides a token bucket limiter keyed by tenant,
// bounding inference-call fan-out per organization.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const pollInterval = 100 * time.Millisecond

// Limiter is a token bucket limiter with per-key buckets.
// Each key refills independently at the configured rate.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// New creates a Limiter allowing requestsPerMinute operations per key.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	return &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   requestsPerMinute,
		refillRate: time.Minute / time.Duration(requestsPerMinute),
	}
}

// Wait blocks until a token is available for key or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if l.TryAcquire(key) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryAcquire attempts to take a token for key without blocking.
func (l *Limiter) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: time.Now()}
		l.buckets[key] = b
	}

	l.refill(b)

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) refill(b *bucket) {
	elapsed := time.Since(b.lastRefill)
	if elapsed < l.refillRate {
		return
	}

	refilled := int(elapsed / l.refillRate)
	b.tokens = min(b.tokens+refilled, l.capacity)
	b.lastRefill = b.lastRefill.Add(time.Duration(refilled) * l.refillRate)
}
