package usecase

import (
	"context"
	"io"

	"rekorcheck/internal/domain"
)

// RekorClient is the read side of the transparency log.
type RekorClient interface {
	GetLogEntryByIndex(ctx context.Context, logIndex uint64) (domain.LogEntry, error)
	GetLatestCheckpoint(ctx context.Context) (domain.Checkpoint, error)
	GetConsistencyProof(ctx context.Context, firstSize, lastSize uint64, treeID string) (domain.ConsistencyProof, error)
}

// EntryCache holds log entries that were already fetched. Integrated entries
// never change, so cached values need no invalidation.
type EntryCache interface {
	Get(ctx context.Context, logIndex uint64) (*domain.LogEntry, bool, error)
	Put(ctx context.Context, entry domain.LogEntry) error
}

// CheckpointStore keeps the last checkpoint that passed a consistency check.
// Latest returns domain.ErrNotFound when nothing was saved for treeID; an
// empty treeID means the most recently saved checkpoint of any tree.
type CheckpointStore interface {
	Latest(ctx context.Context, treeID string) (*domain.Checkpoint, error)
	Save(ctx context.Context, cp domain.Checkpoint) error
}

// EntryDecoder reads the log's own encodings: entry bodies and signed
// checkpoint notes.
type EntryDecoder interface {
	ParseEntryBody(body []byte) (domain.EntrySignature, error)
	CheckNoteMatches(note string, size uint64, root []byte) (origin string, err error)
}

type SignatureVerifier interface {
	VerifyEntrySignature(sig domain.EntrySignature, artifact io.Reader) (identity string, digest []byte, err error)
}

type MerkleService interface {
	ComputeLeafHash(entryBody []byte) []byte
	VerifyInclusion(index, size uint64, leafHash []byte, path [][]byte, root []byte) error
	VerifyConsistency(size1, size2 uint64, path [][]byte, root1, root2 []byte) error
}
