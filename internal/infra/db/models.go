package db

import "time"

type CheckpointModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	TreeID     string    `gorm:"index:idx_checkpoints_tree_observed,priority:1;not null"`
	TreeSize   int64     `gorm:"not null"`
	RootHash   []byte    `gorm:"type:bytea;not null"`
	Origin     string    `gorm:"not null;default:''"`
	SignedNote string    `gorm:"type:text;not null;default:''"`
	ObservedAt time.Time `gorm:"index:idx_checkpoints_tree_observed,priority:2;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (CheckpointModel) TableName() string {
	return "checkpoints"
}
