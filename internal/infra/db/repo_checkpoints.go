package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/usecase"
)

type CheckpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Save(ctx context.Context, cp domain.Checkpoint) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if cp.TreeSize > math.MaxInt64 {
		return fmt.Errorf("tree size %d does not fit the checkpoints table", cp.TreeSize)
	}
	observedAt := cp.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	model := CheckpointModel{
		ID:         uuid.NewString(),
		TreeID:     cp.TreeID,
		TreeSize:   int64(cp.TreeSize),
		RootHash:   copyBytes(cp.RootHash),
		Origin:     cp.Origin,
		SignedNote: cp.SignedNote,
		ObservedAt: observedAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *CheckpointRepository) Latest(ctx context.Context, treeID string) (*domain.Checkpoint, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Model(&CheckpointModel{})
	if treeID != "" {
		query = query.Where("tree_id = ?", treeID)
	}
	var model CheckpointModel
	err := query.Order("observed_at DESC").Order("tree_size DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cp := checkpointFromModel(model)
	return &cp, nil
}

func checkpointFromModel(m CheckpointModel) domain.Checkpoint {
	return domain.Checkpoint{
		Origin:     m.Origin,
		TreeID:     m.TreeID,
		TreeSize:   uint64(m.TreeSize),
		RootHash:   copyBytes(m.RootHash),
		SignedNote: m.SignedNote,
		ObservedAt: m.ObservedAt.UTC(),
	}
}

var _ usecase.CheckpointStore = (*CheckpointRepository)(nil)
