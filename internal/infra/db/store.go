package db

import (
	"context"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// NewStore connects to Postgres. An empty DSN yields a store in no-db mode
// whose repositories report errDBUnavailable.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		log.Printf("POSTGRES_DSN not set; checkpoints will not be persisted to postgres")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

// Migrate creates or updates the tables this service owns.
func (s *Store) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(&CheckpointModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Checkpoints() *CheckpointRepository {
	if s == nil {
		return NewCheckpointRepository(nil)
	}
	return NewCheckpointRepository(s.DB)
}
