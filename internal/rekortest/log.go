package rekortest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rekorcheck/internal/infra/merkle"
)

// Log is an in-memory, append-only Rekor shard. Entry indexes handed out by
// Append are global: IndexOffset plus the position inside the shard.
type Log struct {
	TreeID         string
	Origin         string
	IndexOffset    uint64
	IntegratedTime time.Time

	// InactiveShards are reported by the log info endpoint only.
	InactiveShards []*Log

	// EntryHook may rewrite an entry response before it is served.
	EntryHook func(globalIndex uint64, entry map[string]any)

	mu     sync.Mutex
	bodies [][]byte
	leaves [][]byte
}

func NewLog(treeID string) *Log {
	return &Log{
		TreeID:         treeID,
		Origin:         "rekor.example.dev",
		IntegratedTime: time.Unix(1700000000, 0).UTC(),
	}
}

// Append stores body and returns its global log index.
func (l *Log) Append(body []byte) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bodies = append(l.bodies, append([]byte(nil), body...))
	l.leaves = append(l.leaves, merkle.ComputeLeafHash(body))
	return l.IndexOffset + uint64(len(l.leaves)-1)
}

func (l *Log) Size() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.leaves))
}

// Root returns the tree head over the first size leaves.
func (l *Log) Root(size uint64) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rootLocked(size)
}

func (l *Log) InclusionProof(index, size uint64) [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	path, err := merkle.InclusionProof(merkle.DefaultHasher, l.leaves[:size], index)
	if err != nil {
		panic(err)
	}
	return path
}

func (l *Log) ConsistencyProof(from, to uint64) [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	path, err := merkle.ConsistencyProof(merkle.DefaultHasher, l.leaves, from, to)
	if err != nil {
		panic(err)
	}
	return path
}

// LeafHash returns the leaf hash stored for a global index.
func (l *Log) LeafHash(globalIndex uint64) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.leaves[globalIndex-l.IndexOffset]...)
}

// SignedNote renders the checkpoint for the current size the way Rekor
// publishes it. The signature line is a placeholder.
func (l *Log) SignedNote() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.noteLocked(uint64(len(l.leaves)))
}

func (l *Log) rootLocked(size uint64) []byte {
	if size == 0 {
		sum := sha256.Sum256(nil)
		return sum[:]
	}
	root, err := merkle.Root(merkle.DefaultHasher, l.leaves[:size])
	if err != nil {
		panic(err)
	}
	return root
}

func (l *Log) noteLocked(size uint64) string {
	root := l.rootLocked(size)
	sig := sha256.Sum256(append([]byte(l.TreeID), root...))
	return fmt.Sprintf("%s - %s\n%d\n%s\n\n— %s %s\n",
		l.Origin, l.TreeID, size, base64.StdEncoding.EncodeToString(root),
		l.Origin, base64.StdEncoding.EncodeToString(sig[:]))
}

func (l *Log) uuidLocked(shardIndex uint64) string {
	leaf := hex.EncodeToString(l.leaves[shardIndex])
	treeID, err := strconv.ParseInt(l.TreeID, 10, 64)
	if err != nil {
		return leaf
	}
	return fmt.Sprintf("%016x%s", treeID, leaf)
}

// Handler serves the read-only subset of the Rekor v1 API.
func (l *Log) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/log", l.handleLogInfo)
	mux.HandleFunc("GET /api/v1/log/proof", l.handleConsistency)
	mux.HandleFunc("GET /api/v1/log/entries", l.handleEntryByIndex)
	mux.HandleFunc("GET /api/v1/log/entries/{uuid}", l.handleEntryByUUID)
	return mux
}

func (l *Log) handleLogInfo(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	info := l.infoLocked()
	l.mu.Unlock()

	inactive := make([]map[string]any, 0, len(l.InactiveShards))
	for _, shard := range l.InactiveShards {
		shard.mu.Lock()
		inactive = append(inactive, shard.infoLocked())
		shard.mu.Unlock()
	}
	info["inactiveShards"] = inactive
	writeJSON(w, http.StatusOK, info)
}

func (l *Log) infoLocked() map[string]any {
	size := uint64(len(l.leaves))
	return map[string]any{
		"rootHash":       hex.EncodeToString(l.rootLocked(size)),
		"signedTreeHead": l.noteLocked(size),
		"treeID":         l.TreeID,
		"treeSize":       size,
	}
}

func (l *Log) handleConsistency(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	first, err1 := strconv.ParseUint(query.Get("firstSize"), 10, 64)
	last, err2 := strconv.ParseUint(query.Get("lastSize"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "firstSize and lastSize are required")
		return
	}
	if treeID := query.Get("treeID"); treeID != "" && treeID != l.TreeID {
		writeError(w, http.StatusNotFound, "unknown tree")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if first < 1 || first > last || last > uint64(len(l.leaves)) {
		writeError(w, http.StatusBadRequest, "invalid tree sizes")
		return
	}
	path, err := merkle.ConsistencyProof(merkle.DefaultHasher, l.leaves, first, last)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hashes":   hexPath(path),
		"rootHash": hex.EncodeToString(l.rootLocked(last)),
	})
}

func (l *Log) handleEntryByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.URL.Query().Get("logIndex"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "logIndex is required")
		return
	}
	l.serveEntry(w, index)
}

func (l *Log) handleEntryByUUID(w http.ResponseWriter, r *http.Request) {
	want := strings.ToLower(r.PathValue("uuid"))
	l.mu.Lock()
	found := -1
	for i := range l.leaves {
		if strings.HasSuffix(want, hex.EncodeToString(l.leaves[i])) {
			found = i
			break
		}
	}
	l.mu.Unlock()
	if found < 0 {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	l.serveEntry(w, l.IndexOffset+uint64(found))
}

func (l *Log) serveEntry(w http.ResponseWriter, globalIndex uint64) {
	l.mu.Lock()
	if globalIndex < l.IndexOffset || globalIndex-l.IndexOffset >= uint64(len(l.leaves)) {
		l.mu.Unlock()
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	shardIndex := globalIndex - l.IndexOffset
	size := uint64(len(l.leaves))
	path, err := merkle.InclusionProof(merkle.DefaultHasher, l.leaves, shardIndex)
	if err != nil {
		l.mu.Unlock()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	uuid := l.uuidLocked(shardIndex)
	logID := sha256.Sum256([]byte(l.Origin))
	entry := map[string]any{
		"body":           base64.StdEncoding.EncodeToString(l.bodies[shardIndex]),
		"integratedTime": l.IntegratedTime.Unix(),
		"logID":          hex.EncodeToString(logID[:]),
		"logIndex":       globalIndex,
		"verification": map[string]any{
			"inclusionProof": map[string]any{
				"checkpoint": l.noteLocked(size),
				"hashes":     hexPath(path),
				"logIndex":   shardIndex,
				"rootHash":   hex.EncodeToString(l.rootLocked(size)),
				"treeSize":   size,
			},
			"signedEntryTimestamp": base64.StdEncoding.EncodeToString([]byte("set:" + uuid)),
		},
	}
	l.mu.Unlock()

	if l.EntryHook != nil {
		l.EntryHook(globalIndex, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{uuid: entry})
}

func hexPath(path [][]byte) []string {
	out := make([]string, 0, len(path))
	for _, h := range path {
		out = append(out, hex.EncodeToString(h))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"code": status, "message": message})
}
