// Package checkpointfile keeps the latest verified checkpoint per tree in a
// JSON file, for CLI use without a database.
package checkpointfile

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/usecase"
)

type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("checkpoint file path is required")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// fileRecord mirrors the Rekor log info shape so the file can be edited by
// hand or produced with curl.
type fileRecord struct {
	TreeID         string    `json:"treeID"`
	TreeSize       uint64    `json:"treeSize"`
	RootHash       string    `json:"rootHash"`
	SignedTreeHead string    `json:"signedTreeHead,omitempty"`
	Origin         string    `json:"origin,omitempty"`
	ObservedAt     time.Time `json:"observedAt"`
}

type fileContents struct {
	Latest string                `json:"latest"`
	Trees  map[string]fileRecord `json:"trees"`
}

func (s *Store) Latest(ctx context.Context, treeID string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}
	if treeID == "" {
		treeID = contents.Latest
	}
	record, ok := contents.Trees[treeID]
	if !ok {
		return nil, fmt.Errorf("%w: no checkpoint stored for tree %q", domain.ErrNotFound, treeID)
	}
	root, err := hex.DecodeString(record.RootHash)
	if err != nil {
		return nil, fmt.Errorf("checkpoint file %s: root hash: %w", s.path, err)
	}
	return &domain.Checkpoint{
		Origin:     record.Origin,
		TreeID:     record.TreeID,
		TreeSize:   record.TreeSize,
		RootHash:   root,
		SignedNote: record.SignedTreeHead,
		ObservedAt: record.ObservedAt,
	}, nil
}

func (s *Store) Save(ctx context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}
	observedAt := cp.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	contents.Trees[cp.TreeID] = fileRecord{
		TreeID:         cp.TreeID,
		TreeSize:       cp.TreeSize,
		RootHash:       hex.EncodeToString(cp.RootHash),
		SignedTreeHead: cp.SignedNote,
		Origin:         cp.Origin,
		ObservedAt:     observedAt,
	}
	contents.Latest = cp.TreeID
	return s.write(contents)
}

func (s *Store) load() (fileContents, error) {
	contents := fileContents{Trees: map[string]fileRecord{}}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return contents, nil
	}
	if err != nil {
		return contents, fmt.Errorf("read checkpoint file: %w", err)
	}
	if err := json.Unmarshal(raw, &contents); err != nil {
		return contents, fmt.Errorf("decode checkpoint file %s: %w", s.path, err)
	}
	if contents.Trees == nil {
		contents.Trees = map[string]fileRecord{}
	}
	return contents, nil
}

// write replaces the file atomically so a crash never leaves a partial
// checkpoint behind.
func (s *Store) write(contents fileContents) error {
	raw, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create temp checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint file: %w", err)
	}
	return nil
}

var _ usecase.CheckpointStore = (*Store)(nil)
