package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rekorcheck/internal/domain"
)

// Monitor periodically proves that the log only grows append-only from the
// last checkpoint it recorded.
type Monitor struct {
	Rekor       RekorClient
	Store       CheckpointStore
	Consistency *VerifyConsistency
	Interval    time.Duration
	Logger      *slog.Logger
}

// Run checks once immediately and then on every tick until ctx is done.
// Failed checks are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", m.Interval)
	}
	logger := loggerOrDiscard(m.Logger)
	logger.InfoContext(ctx, "monitor started", "interval", m.Interval)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "monitor check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce records the latest checkpoint when the store is empty, otherwise
// verifies the stored checkpoint against it. The receipt is nil on the first
// run.
func (m *Monitor) RunOnce(ctx context.Context) (*domain.ConsistencyReceipt, error) {
	if m.Rekor == nil || m.Store == nil || m.Consistency == nil {
		return nil, errors.New("monitor: missing dependency")
	}
	prev, err := m.Store.Latest(ctx, "")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		latest, err := m.Rekor.GetLatestCheckpoint(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.Store.Save(ctx, latest); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
		loggerOrDiscard(m.Logger).InfoContext(ctx, "recorded initial checkpoint",
			"tree_id", latest.TreeID,
			"tree_size", latest.TreeSize,
		)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return m.Consistency.Execute(ctx, VerifyConsistencyRequest{Previous: prev})
}
