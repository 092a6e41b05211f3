package domain

import (
	"context"
	"time"
)

// RateLimitDecision reports the outcome of one Allow call for a client key.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter throttles callers of the verification API by key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

