// Package cachemem is an in-process LRU cache of log entries.
package cachemem

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/usecase"
)

const DefaultSize = 1024

type Cache struct {
	entries *lru.Cache
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create entry cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

func (c *Cache) Get(ctx context.Context, logIndex uint64) (*domain.LogEntry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	value, ok := c.entries.Get(logIndex)
	if !ok {
		return nil, false, nil
	}
	entry := cloneEntry(value.(domain.LogEntry))
	return &entry, true, nil
}

func (c *Cache) Put(ctx context.Context, entry domain.LogEntry) error {
	if c == nil {
		return nil
	}
	c.entries.Add(entry.LogIndex, cloneEntry(entry))
	return nil
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func cloneEntry(entry domain.LogEntry) domain.LogEntry {
	out := entry
	out.Body = append([]byte(nil), entry.Body...)
	out.SignedEntryTimestamp = append([]byte(nil), entry.SignedEntryTimestamp...)
	if entry.Proof != nil {
		proof := *entry.Proof
		proof.RootHash = append([]byte(nil), entry.Proof.RootHash...)
		proof.Hashes = make([][]byte, len(entry.Proof.Hashes))
		for i, h := range entry.Proof.Hashes {
			proof.Hashes[i] = append([]byte(nil), h...)
		}
		out.Proof = &proof
	}
	return out
}

var _ usecase.EntryCache = (*Cache)(nil)
