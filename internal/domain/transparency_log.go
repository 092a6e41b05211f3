package domain

import "time"

// Checkpoint is a signed tree head published by the log for one shard.
type Checkpoint struct {
	Origin     string
	TreeID     string
	TreeSize   uint64
	RootHash   []byte
	SignedNote string
	ObservedAt time.Time

	InactiveShards []Shard
}

type Shard struct {
	TreeID     string
	TreeSize   uint64
	RootHash   []byte
	SignedNote string
}

// InclusionProof is the audit path for one entry. LogIndex is relative to the
// shard that produced the proof, not the global entry index.
type InclusionProof struct {
	LogIndex   uint64
	TreeSize   uint64
	RootHash   []byte
	Hashes     [][]byte
	Checkpoint string
}

type ConsistencyProof struct {
	TreeID   string
	FromSize uint64
	ToSize   uint64
	RootHash []byte
	Hashes   [][]byte
}

// LogEntry is one entry as returned by the log. Body holds the exact bytes
// the log hashed into its leaf.
type LogEntry struct {
	UUID                 string
	LogID                string
	LogIndex             uint64
	IntegratedTime       time.Time
	Body                 []byte
	SignedEntryTimestamp []byte
	Proof                *InclusionProof
}

// EntrySignature is the signing material recorded in a hashedrekord entry.
type EntrySignature struct {
	Kind              string
	APIVersion        string
	Signature         []byte
	Certificate       []byte
	DataHashAlgorithm string
	DataHash          []byte
}
