// Package rekor is a read-only client for the Rekor v1 REST API. It turns
// wire JSON into typed domain records and leaves all verification to callers.
package rekor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/merkle"
)

const (
	DefaultURL = "https://rekor.sigstore.dev"

	maxResponseBytes = 8 << 20
	maxErrorSnippet  = 256
)

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient builds a client for baseURL. A nil httpClient uses
// http.DefaultClient, a nil limiter disables throttling and a nil logger
// discards debug output.
func NewClient(baseURL string, httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("rekor base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid rekor base url %q", baseURL)
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetLogEntryByIndex fetches the entry at the global log index.
func (c *Client) GetLogEntryByIndex(ctx context.Context, logIndex uint64) (domain.LogEntry, error) {
	query := url.Values{}
	query.Set("logIndex", strconv.FormatUint(logIndex, 10))

	var raw map[string]logEntryWire
	if err := c.getJSON(ctx, "/api/v1/log/entries", query, &raw); err != nil {
		return domain.LogEntry{}, err
	}
	entry, err := singleEntry(raw)
	if err != nil {
		return domain.LogEntry{}, err
	}
	if entry.LogIndex != logIndex {
		return domain.LogEntry{}, fmt.Errorf("%w: requested log index %d, got %d", domain.ErrUpstream, logIndex, entry.LogIndex)
	}
	return entry, nil
}

func (c *Client) GetLogEntryByUUID(ctx context.Context, uuid string) (domain.LogEntry, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return domain.LogEntry{}, fmt.Errorf("%w: entry uuid is required", domain.ErrInvalidRequest)
	}
	var raw map[string]logEntryWire
	if err := c.getJSON(ctx, "/api/v1/log/entries/"+url.PathEscape(uuid), nil, &raw); err != nil {
		return domain.LogEntry{}, err
	}
	return singleEntry(raw)
}

// GetLatestCheckpoint returns the tree head of the active shard. When the log
// publishes a signed tree head its size and root must agree with the JSON
// fields.
func (c *Client) GetLatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	var info logInfoWire
	if err := c.getJSON(ctx, "/api/v1/log", nil, &info); err != nil {
		return domain.Checkpoint{}, err
	}

	shard, err := shardFromWire(shardWire{
		RootHash:       info.RootHash,
		SignedTreeHead: info.SignedTreeHead,
		TreeID:         info.TreeID,
		TreeSize:       info.TreeSize,
	})
	if err != nil {
		return domain.Checkpoint{}, err
	}
	cp := domain.Checkpoint{
		TreeID:     shard.TreeID,
		TreeSize:   shard.TreeSize,
		RootHash:   shard.RootHash,
		SignedNote: shard.SignedNote,
		ObservedAt: c.now().UTC(),
	}
	if cp.SignedNote != "" {
		origin, err := CheckNoteMatches(cp.SignedNote, cp.TreeSize, cp.RootHash)
		if err != nil {
			return domain.Checkpoint{}, err
		}
		cp.Origin = origin
	}
	for i, raw := range info.InactiveShards {
		inactive, err := shardFromWire(raw)
		if err != nil {
			return domain.Checkpoint{}, fmt.Errorf("inactive shard %d: %w", i, err)
		}
		cp.InactiveShards = append(cp.InactiveShards, inactive)
	}
	return cp, nil
}

// GetConsistencyProof fetches the proof that the tree of firstSize is a prefix
// of the tree of lastSize. An empty treeID targets the active shard.
func (c *Client) GetConsistencyProof(ctx context.Context, firstSize, lastSize uint64, treeID string) (domain.ConsistencyProof, error) {
	query := url.Values{}
	query.Set("firstSize", strconv.FormatUint(firstSize, 10))
	query.Set("lastSize", strconv.FormatUint(lastSize, 10))
	if treeID != "" {
		query.Set("treeID", treeID)
	}

	var raw consistencyProofWire
	if err := c.getJSON(ctx, "/api/v1/log/proof", query, &raw); err != nil {
		return domain.ConsistencyProof{}, err
	}
	hashes, err := decodePath(raw.Hashes)
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	root, err := decodeHash(raw.RootHash)
	if err != nil {
		return domain.ConsistencyProof{}, fmt.Errorf("%w: root hash: %w", merkle.ErrInvalidProof, err)
	}
	return domain.ConsistencyProof{
		TreeID:   treeID,
		FromSize: firstSize,
		ToSize:   lastSize,
		RootHash: root,
		Hashes:   hashes,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrUpstream, err)
		}
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpDo(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", domain.ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", domain.ErrUpstream, path, err)
	}
	if len(body) > maxResponseBytes {
		return fmt.Errorf("%w: %s response exceeds %d bytes", domain.ErrUpstream, path, maxResponseBytes)
	}
	c.logger.DebugContext(ctx, "rekor response",
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", c.now().Sub(start),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, path, upstreamMessage(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrUpstream, path, resp.StatusCode, upstreamMessage(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrUpstream, path, err)
	}
	return nil
}

func singleEntry(raw map[string]logEntryWire) (domain.LogEntry, error) {
	if len(raw) == 0 {
		return domain.LogEntry{}, fmt.Errorf("%w: log returned no entry", domain.ErrNotFound)
	}
	if len(raw) > 1 {
		return domain.LogEntry{}, fmt.Errorf("%w: log returned %d entries, want 1", domain.ErrUpstream, len(raw))
	}
	for uuid, wire := range raw {
		return entryFromWire(uuid, wire)
	}
	panic("unreachable")
}

func entryFromWire(uuid string, wire logEntryWire) (domain.LogEntry, error) {
	if wire.LogIndex < 0 {
		return domain.LogEntry{}, fmt.Errorf("%w: negative log index %d", domain.ErrUpstream, wire.LogIndex)
	}
	body, err := base64.StdEncoding.DecodeString(wire.Body)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("%w: decode entry body: %w", domain.ErrUpstream, err)
	}
	entry := domain.LogEntry{
		UUID:           uuid,
		LogID:          wire.LogID,
		LogIndex:       uint64(wire.LogIndex),
		IntegratedTime: time.Unix(wire.IntegratedTime, 0).UTC(),
		Body:           body,
	}
	if wire.Verification == nil {
		return entry, nil
	}
	if wire.Verification.SignedEntryTimestamp != "" {
		set, err := base64.StdEncoding.DecodeString(wire.Verification.SignedEntryTimestamp)
		if err != nil {
			return domain.LogEntry{}, fmt.Errorf("%w: decode signed entry timestamp: %w", domain.ErrUpstream, err)
		}
		entry.SignedEntryTimestamp = set
	}
	if p := wire.Verification.InclusionProof; p != nil {
		proof, err := inclusionProofFromWire(*p)
		if err != nil {
			return domain.LogEntry{}, err
		}
		entry.Proof = &proof
	}
	return entry, nil
}

func inclusionProofFromWire(p inclusionProofWire) (domain.InclusionProof, error) {
	if p.LogIndex < 0 || p.TreeSize < 0 {
		return domain.InclusionProof{}, fmt.Errorf("%w: negative index %d or tree size %d", merkle.ErrInvalidProof, p.LogIndex, p.TreeSize)
	}
	root, err := decodeHash(p.RootHash)
	if err != nil {
		return domain.InclusionProof{}, fmt.Errorf("%w: root hash: %w", merkle.ErrInvalidProof, err)
	}
	hashes, err := decodePath(p.Hashes)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	return domain.InclusionProof{
		LogIndex:   uint64(p.LogIndex),
		TreeSize:   uint64(p.TreeSize),
		RootHash:   root,
		Hashes:     hashes,
		Checkpoint: p.Checkpoint,
	}, nil
}

func shardFromWire(w shardWire) (domain.Shard, error) {
	if w.TreeSize < 0 {
		return domain.Shard{}, fmt.Errorf("%w: negative tree size %d", domain.ErrUpstream, w.TreeSize)
	}
	var root []byte
	if w.TreeSize > 0 || w.RootHash != "" {
		var err error
		root, err = decodeHash(w.RootHash)
		if err != nil {
			return domain.Shard{}, fmt.Errorf("%w: root hash: %w", domain.ErrUpstream, err)
		}
	}
	return domain.Shard{
		TreeID:     w.TreeID,
		TreeSize:   uint64(w.TreeSize),
		RootHash:   root,
		SignedNote: w.SignedTreeHead,
	}, nil
}

func decodePath(values []string) ([][]byte, error) {
	out := make([][]byte, 0, len(values))
	for i, value := range values {
		h, err := decodeHash(value)
		if err != nil {
			return nil, fmt.Errorf("%w: hash %d: %w", merkle.ErrInvalidProof, i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func decodeHash(value string) ([]byte, error) {
	out, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	if len(out) != merkle.HashSize {
		return nil, fmt.Errorf("digest has length %d, want %d", len(out), merkle.HashSize)
	}
	return out, nil
}

func upstreamMessage(body []byte) string {
	var payload errorWire
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorSnippet {
		msg = msg[:maxErrorSnippet]
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}
