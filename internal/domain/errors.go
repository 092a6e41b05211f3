package domain

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNotFound             = errors.New("not found")
	ErrUpstream             = errors.New("upstream error")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrCertificateInvalid   = errors.New("certificate invalid")
	ErrArtifactHashMismatch = errors.New("artifact hash mismatch")
	ErrCheckpointMismatch   = errors.New("checkpoint mismatch")
	ErrUnsupportedEntry     = errors.New("unsupported entry kind")
	ErrProofMissing         = errors.New("inclusion proof missing")
	ErrEntryMismatch        = errors.New("entry does not match its uuid")
)
