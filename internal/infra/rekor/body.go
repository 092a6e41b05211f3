package rekor

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"rekorcheck/internal/domain"
)

const (
	kindHashedRekord = "hashedrekord"
	kindRekord       = "rekord"
)

// ParseEntryBody extracts the signing material from a decoded entry body.
// Only hashedrekord and x509 rekord entries carry a detached artifact
// signature.
func ParseEntryBody(body []byte) (domain.EntrySignature, error) {
	var envelope entryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.EntrySignature{}, fmt.Errorf("%w: decode entry body: %w", domain.ErrUnsupportedEntry, err)
	}
	switch envelope.Kind {
	case kindHashedRekord, kindRekord:
	default:
		return domain.EntrySignature{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedEntry, envelope.Kind)
	}

	var entry hashedRekord
	if err := json.Unmarshal(body, &entry); err != nil {
		return domain.EntrySignature{}, fmt.Errorf("%w: decode %s spec: %w", domain.ErrUnsupportedEntry, envelope.Kind, err)
	}
	spec := entry.Spec
	if envelope.Kind == kindRekord && spec.Signature.Format != "" && spec.Signature.Format != "x509" {
		return domain.EntrySignature{}, fmt.Errorf("%w: rekord signature format %q", domain.ErrUnsupportedEntry, spec.Signature.Format)
	}

	sig, err := base64.StdEncoding.DecodeString(spec.Signature.Content)
	if err != nil || len(sig) == 0 {
		return domain.EntrySignature{}, fmt.Errorf("%w: entry signature is not base64", domain.ErrSignatureInvalid)
	}
	cert, err := base64.StdEncoding.DecodeString(spec.Signature.PublicKey.Content)
	if err != nil || len(cert) == 0 {
		return domain.EntrySignature{}, fmt.Errorf("%w: entry public key is not base64", domain.ErrCertificateInvalid)
	}

	out := domain.EntrySignature{
		Kind:              envelope.Kind,
		APIVersion:        envelope.APIVersion,
		Signature:         sig,
		Certificate:       cert,
		DataHashAlgorithm: strings.ToLower(spec.Data.Hash.Algorithm),
	}
	if spec.Data.Hash.Value != "" {
		digest, err := hex.DecodeString(spec.Data.Hash.Value)
		if err != nil {
			return domain.EntrySignature{}, fmt.Errorf("%w: data hash: %w", domain.ErrUnsupportedEntry, err)
		}
		out.DataHash = digest
	}
	return out, nil
}
