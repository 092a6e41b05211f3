package domain

import "time"

type InclusionReceipt struct {
	UUID           string    `json:"uuid"`
	LogIndex       uint64    `json:"log_index"`
	ProofLogIndex  uint64    `json:"proof_log_index"`
	TreeSize       uint64    `json:"tree_size"`
	RootHash       string    `json:"root_hash"`
	LeafHash       string    `json:"leaf_hash"`
	IntegratedTime time.Time `json:"integrated_time"`
	ArtifactSHA256 string    `json:"artifact_sha256,omitempty"`
	SignatureValid bool      `json:"signature_valid"`
	Included       bool      `json:"included"`
	SignerSubject  string    `json:"signer_subject,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}

type ConsistencyReceipt struct {
	TreeID     string    `json:"tree_id"`
	FromSize   uint64    `json:"from_size"`
	ToSize     uint64    `json:"to_size"`
	FromRoot   string    `json:"from_root"`
	ToRoot     string    `json:"to_root"`
	ProofSize  int       `json:"proof_size"`
	Consistent bool      `json:"consistent"`
	VerifiedAt time.Time `json:"verified_at"`
}
