// Package ratelimit implements fixed-window request limits for the
// verification API, in process or shared through Redis.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"rekorcheck/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

type memoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*memoryBucket
	maxKeys int
}

type memoryBucket struct {
	count     int
	windowEnd time.Time
}

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) domain.RateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &memoryLimiter{
		now:     cfg.Now,
		buckets: make(map[string]*memoryBucket),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok || !now.Before(bucket.windowEnd) {
		if !ok && len(m.buckets) >= m.maxKeys {
			m.gc(now)
			if len(m.buckets) >= m.maxKeys {
				return domain.RateLimitDecision{}, ErrCapacityExceeded
			}
		}
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.buckets[key] = bucket
	}

	decision := domain.RateLimitDecision{
		Limit:   limit,
		ResetAt: bucket.windowEnd,
	}
	if bucket.count < limit {
		bucket.count++
		decision.Allowed = true
		decision.Remaining = limit - bucket.count
	}
	return decision, nil
}

func (m *memoryLimiter) gc(now time.Time) {
	for key, bucket := range m.buckets {
		if !now.Before(bucket.windowEnd) {
			delete(m.buckets, key)
		}
	}
}
