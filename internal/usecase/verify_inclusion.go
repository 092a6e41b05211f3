package usecase

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"rekorcheck/internal/domain"
)

type VerifyInclusionRequest struct {
	LogIndex uint64
	Artifact io.Reader
}

// VerifyInclusion checks that an artifact was signed by the key recorded in a
// log entry and that the entry is included in the log's Merkle tree.
type VerifyInclusion struct {
	Rekor      RekorClient
	Cache      EntryCache
	Decoder    EntryDecoder
	Signatures SignatureVerifier
	Merkle     MerkleService
	Logger     *slog.Logger
	Now        func() time.Time
}

func (uc *VerifyInclusion) Execute(ctx context.Context, req VerifyInclusionRequest) (*domain.InclusionReceipt, error) {
	if uc.Rekor == nil || uc.Decoder == nil || uc.Signatures == nil || uc.Merkle == nil {
		return nil, errors.New("verify inclusion: missing dependency")
	}
	if req.Artifact == nil {
		return nil, fmt.Errorf("%w: artifact is required", domain.ErrInvalidRequest)
	}
	logger := loggerOrDiscard(uc.Logger)

	entry, err := uc.fetchEntry(ctx, logger, req.LogIndex)
	if err != nil {
		return nil, err
	}
	if entry.Proof == nil {
		return nil, fmt.Errorf("%w: entry %d", domain.ErrProofMissing, entry.LogIndex)
	}
	proof := entry.Proof

	sig, err := uc.Decoder.ParseEntryBody(entry.Body)
	if err != nil {
		return nil, err
	}
	identity, digest, err := uc.Signatures.VerifyEntrySignature(sig, req.Artifact)
	if err != nil {
		return nil, err
	}
	if len(sig.DataHash) > 0 && !bytes.Equal(digest, sig.DataHash) {
		return nil, fmt.Errorf("%w: artifact digest %x, entry records %x", domain.ErrArtifactHashMismatch, digest, sig.DataHash)
	}

	leafHash := uc.Merkle.ComputeLeafHash(entry.Body)
	if entry.UUID != "" && !strings.HasSuffix(strings.ToLower(entry.UUID), hex.EncodeToString(leafHash)) {
		return nil, fmt.Errorf("%w: uuid %s, leaf hash %x", domain.ErrEntryMismatch, entry.UUID, leafHash)
	}
	// Proof indexes are relative to the shard, not the global log index.
	if err := uc.Merkle.VerifyInclusion(proof.LogIndex, proof.TreeSize, leafHash, proof.Hashes, proof.RootHash); err != nil {
		return nil, err
	}
	if proof.Checkpoint != "" {
		if _, err := uc.Decoder.CheckNoteMatches(proof.Checkpoint, proof.TreeSize, proof.RootHash); err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "inclusion verified",
		"log_index", entry.LogIndex,
		"proof_log_index", proof.LogIndex,
		"tree_size", proof.TreeSize,
		"signer", identity,
	)
	receipt := &domain.InclusionReceipt{
		UUID:           entry.UUID,
		LogIndex:       entry.LogIndex,
		ProofLogIndex:  proof.LogIndex,
		TreeSize:       proof.TreeSize,
		RootHash:       hex.EncodeToString(proof.RootHash),
		LeafHash:       hex.EncodeToString(leafHash),
		IntegratedTime: entry.IntegratedTime,
		SignatureValid: true,
		Included:       true,
		SignerSubject:  identity,
		VerifiedAt:     nowOrDefault(uc.Now)().UTC(),
	}
	if sig.DataHashAlgorithm == "" || sig.DataHashAlgorithm == "sha256" {
		receipt.ArtifactSHA256 = hex.EncodeToString(digest)
	}
	return receipt, nil
}

// fetchEntry reads through the cache. Cache failures are logged and never
// fail the verification.
func (uc *VerifyInclusion) fetchEntry(ctx context.Context, logger *slog.Logger, logIndex uint64) (domain.LogEntry, error) {
	if uc.Cache != nil {
		cached, ok, err := uc.Cache.Get(ctx, logIndex)
		if err != nil {
			logger.WarnContext(ctx, "entry cache read failed", "log_index", logIndex, "error", err)
		} else if ok {
			logger.DebugContext(ctx, "entry cache hit", "log_index", logIndex)
			return *cached, nil
		}
	}

	entry, err := uc.Rekor.GetLogEntryByIndex(ctx, logIndex)
	if err != nil {
		return domain.LogEntry{}, err
	}
	if uc.Cache != nil {
		if err := uc.Cache.Put(ctx, entry); err != nil {
			logger.WarnContext(ctx, "entry cache write failed", "log_index", logIndex, "error", err)
		}
	}
	return entry, nil
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
