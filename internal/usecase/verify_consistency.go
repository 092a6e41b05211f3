package usecase

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rekorcheck/internal/domain"
)

type VerifyConsistencyRequest struct {
	// Previous is the checkpoint to extend. When nil the most recent checkpoint
	// in Store is used.
	Previous *domain.Checkpoint
}

// VerifyConsistency proves that a previously observed checkpoint is a prefix
// of what the log publishes now. On success the latest checkpoint is saved to
// Store, when one is configured. A caller supplied checkpoint never replaces
// the stored one unless the latest checkpoint also extends the stored one.
type VerifyConsistency struct {
	Rekor  RekorClient
	Store  CheckpointStore
	Merkle MerkleService
	Logger *slog.Logger
	Now    func() time.Time
}

func (uc *VerifyConsistency) Execute(ctx context.Context, req VerifyConsistencyRequest) (*domain.ConsistencyReceipt, error) {
	if uc.Rekor == nil || uc.Merkle == nil {
		return nil, errors.New("verify consistency: missing dependency")
	}
	logger := loggerOrDiscard(uc.Logger)

	prev := req.Previous
	if prev == nil {
		if uc.Store == nil {
			return nil, fmt.Errorf("%w: no previous checkpoint given and no store configured", domain.ErrInvalidRequest)
		}
		stored, err := uc.Store.Latest(ctx, "")
		if err != nil {
			return nil, err
		}
		prev = stored
	}

	latest, err := uc.Rekor.GetLatestCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	target, hashes, err := uc.check(ctx, logger, *prev, latest)
	if err != nil {
		return nil, err
	}

	if err := uc.persist(ctx, logger, req.Previous != nil, *prev, latest); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "consistency verified",
		"tree_id", target.TreeID,
		"from_size", prev.TreeSize,
		"to_size", target.TreeSize,
		"proof_size", len(hashes),
	)
	return &domain.ConsistencyReceipt{
		TreeID:     target.TreeID,
		FromSize:   prev.TreeSize,
		ToSize:     target.TreeSize,
		FromRoot:   hex.EncodeToString(prev.RootHash),
		ToRoot:     hex.EncodeToString(target.RootHash),
		ProofSize:  len(hashes),
		Consistent: true,
		VerifiedAt: nowOrDefault(uc.Now)().UTC(),
	}, nil
}

// check verifies prev against the shard of latest it belongs to and returns
// that shard with the proof used.
func (uc *VerifyConsistency) check(ctx context.Context, logger *slog.Logger, prev, latest domain.Checkpoint) (domain.Shard, [][]byte, error) {
	target, err := targetShard(latest, prev.TreeID)
	if err != nil {
		return domain.Shard{}, nil, err
	}

	var hashes [][]byte
	if prev.TreeSize != 0 && prev.TreeSize < target.TreeSize {
		proof, err := uc.Rekor.GetConsistencyProof(ctx, prev.TreeSize, target.TreeSize, target.TreeID)
		if err != nil {
			return domain.Shard{}, nil, err
		}
		hashes = proof.Hashes
	}
	if err := uc.Merkle.VerifyConsistency(prev.TreeSize, target.TreeSize, hashes, prev.RootHash, target.RootHash); err != nil {
		logger.ErrorContext(ctx, "consistency check failed",
			"tree_id", target.TreeID,
			"from_size", prev.TreeSize,
			"to_size", target.TreeSize,
			"error", err,
		)
		return domain.Shard{}, nil, err
	}
	return target, hashes, nil
}

// persist saves latest as the trusted head. A checkpoint the caller supplied
// only vouches for itself, so latest must also extend whatever Store already
// trusts.
func (uc *VerifyConsistency) persist(ctx context.Context, logger *slog.Logger, explicit bool, prev, latest domain.Checkpoint) error {
	if uc.Store == nil {
		return nil
	}
	if explicit {
		stored, err := uc.Store.Latest(ctx, "")
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return fmt.Errorf("load stored checkpoint: %w", err)
		case !sameHead(*stored, prev):
			if _, _, err := uc.check(ctx, logger, *stored, latest); err != nil {
				return fmt.Errorf("stored checkpoint size %d: %w", stored.TreeSize, err)
			}
		}
	}
	if err := uc.Store.Save(ctx, latest); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func sameHead(a, b domain.Checkpoint) bool {
	return a.TreeID == b.TreeID && a.TreeSize == b.TreeSize && bytes.Equal(a.RootHash, b.RootHash)
}

// targetShard picks the tree the previous checkpoint belongs to. A checkpoint
// of a retired shard is compared against that shard's final tree head.
func targetShard(latest domain.Checkpoint, treeID string) (domain.Shard, error) {
	active := domain.Shard{
		TreeID:     latest.TreeID,
		TreeSize:   latest.TreeSize,
		RootHash:   latest.RootHash,
		SignedNote: latest.SignedNote,
	}
	if treeID == "" || treeID == latest.TreeID {
		return active, nil
	}
	for _, shard := range latest.InactiveShards {
		if shard.TreeID == treeID {
			return shard, nil
		}
	}
	return domain.Shard{}, fmt.Errorf("%w: tree %s is not served by the log", domain.ErrNotFound, treeID)
}
