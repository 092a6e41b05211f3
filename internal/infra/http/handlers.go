package http

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/usecase"
)

const (
	routeCheckpointRead    = "checkpoint:read"
	routeEntriesVerify     = "entries:verify"
	routeCheckpointsVerify = "checkpoints:verify"
	routeProofsVerify      = "proofs:verify"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type checkpointResponse struct {
	Origin         string          `json:"origin,omitempty"`
	TreeID         string          `json:"tree_id"`
	TreeSize       uint64          `json:"tree_size"`
	RootHash       string          `json:"root_hash"`
	SignedTreeHead string          `json:"signed_tree_head,omitempty"`
	ObservedAt     string          `json:"observed_at"`
	InactiveShards []shardResponse `json:"inactive_shards,omitempty"`
}

type shardResponse struct {
	TreeID   string `json:"tree_id"`
	TreeSize uint64 `json:"tree_size"`
	RootHash string `json:"root_hash"`
}

type verifyEntryRequest struct {
	LogIndex       *uint64 `json:"log_index"`
	ArtifactBase64 string  `json:"artifact_base64"`
}

type verifyCheckpointRequest struct {
	TreeID   string `json:"tree_id"`
	TreeSize uint64 `json:"tree_size"`
	RootHash string `json:"root_hash"`
}

type inclusionProofRequest struct {
	LeafHash        string   `json:"leaf_hash,omitempty"`
	EntryBodyBase64 string   `json:"entry_body_base64,omitempty"`
	LogIndex        uint64   `json:"log_index"`
	TreeSize        uint64   `json:"tree_size"`
	RootHash        string   `json:"root_hash"`
	Hashes          []string `json:"hashes"`
}

type consistencyProofRequest struct {
	FirstSize uint64   `json:"first_size"`
	LastSize  uint64   `json:"last_size"`
	FirstRoot string   `json:"first_root"`
	LastRoot  string   `json:"last_root"`
	Hashes    []string `json:"hashes"`
}

type proofResponse struct {
	Verified bool   `json:"verified"`
	LeafHash string `json:"leaf_hash,omitempty"`
}

// handleNoRoute dispatches the custom-method routes, which gin's router
// cannot express because of the colon.
func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost {
		switch c.Request.URL.Path {
		case "/v1/entries:verify":
			s.handleVerifyEntry(c)
			return
		case "/v1/checkpoints:verify":
			s.handleVerifyCheckpoint(c)
			return
		case "/v1/proofs/inclusion:verify":
			s.handleVerifyInclusionProof(c)
			return
		case "/v1/proofs/consistency:verify":
			s.handleVerifyConsistencyProof(c)
			return
		}
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) handleLatestCheckpoint(c *gin.Context) {
	if !s.enforceRateLimit(c, routeCheckpointRead) {
		return
	}
	if s.rekor == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	cp, err := s.rekor.GetLatestCheckpoint(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCheckpointResponse(cp))
}

func (s *Server) handleVerifyEntry(c *gin.Context) {
	if !s.enforceRateLimit(c, routeEntriesVerify) {
		return
	}
	if s.inclusionUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.LogIndex == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "log_index is required")
		return
	}
	artifact, err := base64.StdEncoding.DecodeString(req.ArtifactBase64)
	if err != nil || req.ArtifactBase64 == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "artifact_base64 must be non-empty base64")
		return
	}

	receipt, err := s.inclusionUC.Execute(c.Request.Context(), usecase.VerifyInclusionRequest{
		LogIndex: *req.LogIndex,
		Artifact: bytes.NewReader(artifact),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleVerifyCheckpoint(c *gin.Context) {
	if !s.enforceRateLimit(c, routeCheckpointsVerify) {
		return
	}
	if s.consistUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	prev := &domain.Checkpoint{TreeID: req.TreeID, TreeSize: req.TreeSize}
	if req.TreeSize > 0 {
		root, err := decodeHexHash(req.RootHash)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "root_hash: "+err.Error())
			return
		}
		prev.RootHash = root
	}

	receipt, err := s.consistUC.Execute(c.Request.Context(), usecase.VerifyConsistencyRequest{Previous: prev})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleVerifyInclusionProof(c *gin.Context) {
	if !s.enforceRateLimit(c, routeProofsVerify) {
		return
	}
	var req inclusionProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	var leafHash []byte
	switch {
	case req.EntryBodyBase64 != "" && req.LeafHash != "":
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "give either leaf_hash or entry_body_base64")
		return
	case req.EntryBodyBase64 != "":
		body, err := base64.StdEncoding.DecodeString(req.EntryBodyBase64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "entry_body_base64 is not base64")
			return
		}
		leafHash = s.merkle.ComputeLeafHash(body)
	default:
		decoded, err := hex.DecodeString(req.LeafHash)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "leaf_hash is not hex")
			return
		}
		leafHash = decoded
	}
	root, path, err := decodeProof(req.RootHash, req.Hashes)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := s.merkle.VerifyInclusion(req.LogIndex, req.TreeSize, leafHash, path, root); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponse{Verified: true, LeafHash: hex.EncodeToString(leafHash)})
}

func (s *Server) handleVerifyConsistencyProof(c *gin.Context) {
	if !s.enforceRateLimit(c, routeProofsVerify) {
		return
	}
	var req consistencyProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	firstRoot, err := hex.DecodeString(req.FirstRoot)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "first_root is not hex")
		return
	}
	lastRoot, path, err := decodeProof(req.LastRoot, req.Hashes)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := s.merkle.VerifyConsistency(req.FirstSize, req.LastSize, path, firstRoot, lastRoot); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponse{Verified: true})
}

func buildCheckpointResponse(cp domain.Checkpoint) checkpointResponse {
	out := checkpointResponse{
		Origin:         cp.Origin,
		TreeID:         cp.TreeID,
		TreeSize:       cp.TreeSize,
		RootHash:       hex.EncodeToString(cp.RootHash),
		SignedTreeHead: cp.SignedNote,
		ObservedAt:     cp.ObservedAt.UTC().Format(time.RFC3339),
	}
	for _, shard := range cp.InactiveShards {
		out.InactiveShards = append(out.InactiveShards, shardResponse{
			TreeID:   shard.TreeID,
			TreeSize: shard.TreeSize,
			RootHash: hex.EncodeToString(shard.RootHash),
		})
	}
	return out
}

// decodeProof decodes hex inputs only; lengths are checked by the verifier
// so that they surface as INVALID_PROOF.
func decodeProof(rootHex string, hashes []string) ([]byte, [][]byte, error) {
	root, err := hex.DecodeString(rootHex)
	if err != nil {
		return nil, nil, errors.New("root hash is not hex")
	}
	path := make([][]byte, 0, len(hashes))
	for i, h := range hashes {
		decoded, err := hex.DecodeString(h)
		if err != nil {
			return nil, nil, fmt.Errorf("hashes[%d] is not hex", i)
		}
		path = append(path, decoded)
	}
	return root, path, nil
}

func decodeHexHash(value string) ([]byte, error) {
	out, err := hex.DecodeString(value)
	if err != nil {
		return nil, errors.New("not hex")
	}
	if len(out) != merkle.HashSize {
		return nil, fmt.Errorf("length %d, want %d", len(out), merkle.HashSize)
	}
	return out, nil
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, merkle.ErrRootMismatch):
		status, code = http.StatusConflict, "ROOT_MISMATCH"
	case errors.Is(err, merkle.ErrInvalidProof), errors.Is(err, domain.ErrProofMissing):
		status, code = http.StatusUnprocessableEntity, "INVALID_PROOF"
	case errors.Is(err, domain.ErrCheckpointMismatch):
		status, code = http.StatusConflict, "CHECKPOINT_MISMATCH"
	case errors.Is(err, domain.ErrEntryMismatch):
		status, code = http.StatusConflict, "ENTRY_MISMATCH"
	case errors.Is(err, domain.ErrSignatureInvalid):
		status, code = http.StatusBadRequest, "SIGNATURE_INVALID"
	case errors.Is(err, domain.ErrCertificateInvalid):
		status, code = http.StatusBadRequest, "CERTIFICATE_INVALID"
	case errors.Is(err, domain.ErrArtifactHashMismatch):
		status, code = http.StatusBadRequest, "ARTIFACT_HASH_MISMATCH"
	case errors.Is(err, domain.ErrUnsupportedEntry):
		status, code = http.StatusBadRequest, "UNSUPPORTED_ENTRY"
	case errors.Is(err, domain.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUpstream):
		status, code = http.StatusBadGateway, "UPSTREAM"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
