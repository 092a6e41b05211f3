// Package cacheredis shares fetched log entries between processes through
// Redis.
package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/usecase"
)

const DefaultPrefix = "rekorcheck:entry:"

type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps client. A zero ttl keeps entries until Redis evicts them.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) (*Cache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *Cache) key(logIndex uint64) string {
	return c.prefix + strconv.FormatUint(logIndex, 10)
}

// Get reports a corrupt record as an error. Callers fall back to the log and
// the next Put overwrites it.
func (c *Cache) Get(ctx context.Context, logIndex uint64) (*domain.LogEntry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(logIndex)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get entry %d: %w", logIndex, err)
	}
	var record entryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("decode cached entry %d: %w", logIndex, err)
	}
	entry := record.toDomain()
	return &entry, true, nil
}

func (c *Cache) Put(ctx context.Context, entry domain.LogEntry) error {
	raw, err := json.Marshal(recordFromDomain(entry))
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", entry.LogIndex, err)
	}
	if err := c.client.Set(ctx, c.key(entry.LogIndex), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set entry %d: %w", entry.LogIndex, err)
	}
	return nil
}

type entryRecord struct {
	UUID                 string       `json:"uuid"`
	LogID                string       `json:"log_id"`
	LogIndex             uint64       `json:"log_index"`
	IntegratedTime       int64        `json:"integrated_time"`
	Body                 []byte       `json:"body"`
	SignedEntryTimestamp []byte       `json:"signed_entry_timestamp,omitempty"`
	Proof                *proofRecord `json:"proof,omitempty"`
}

type proofRecord struct {
	LogIndex   uint64   `json:"log_index"`
	TreeSize   uint64   `json:"tree_size"`
	RootHash   []byte   `json:"root_hash"`
	Hashes     [][]byte `json:"hashes"`
	Checkpoint string   `json:"checkpoint,omitempty"`
}

func recordFromDomain(entry domain.LogEntry) entryRecord {
	record := entryRecord{
		UUID:                 entry.UUID,
		LogID:                entry.LogID,
		LogIndex:             entry.LogIndex,
		IntegratedTime:       entry.IntegratedTime.Unix(),
		Body:                 entry.Body,
		SignedEntryTimestamp: entry.SignedEntryTimestamp,
	}
	if p := entry.Proof; p != nil {
		record.Proof = &proofRecord{
			LogIndex:   p.LogIndex,
			TreeSize:   p.TreeSize,
			RootHash:   p.RootHash,
			Hashes:     p.Hashes,
			Checkpoint: p.Checkpoint,
		}
	}
	return record
}

func (r entryRecord) toDomain() domain.LogEntry {
	entry := domain.LogEntry{
		UUID:                 r.UUID,
		LogID:                r.LogID,
		LogIndex:             r.LogIndex,
		IntegratedTime:       time.Unix(r.IntegratedTime, 0).UTC(),
		Body:                 r.Body,
		SignedEntryTimestamp: r.SignedEntryTimestamp,
	}
	if p := r.Proof; p != nil {
		entry.Proof = &domain.InclusionProof{
			LogIndex:   p.LogIndex,
			TreeSize:   p.TreeSize,
			RootHash:   p.RootHash,
			Hashes:     p.Hashes,
			Checkpoint: p.Checkpoint,
		}
	}
	return entry
}

var _ usecase.EntryCache = (*Cache)(nil)
