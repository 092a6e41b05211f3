package crypto

import (
	gocrypto "crypto"
	"fmt"
	"io"
	"os"

	"rekorcheck/internal/domain"
)

// Service exposes the package functions behind a value that use cases can
// hold as an interface.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) ExtractPublicKey(certificate []byte) (gocrypto.PublicKey, error) {
	return ExtractPublicKey(certificate)
}

func (s *Service) VerifyArtifactSignature(signature []byte, publicKey gocrypto.PublicKey, artifact io.Reader) error {
	return VerifyArtifactSignature(signature, publicKey, artifact)
}

// VerifyEntrySignature checks the artifact against the signing material of a
// hashedrekord entry and returns the signer identity and the artifact digest.
func (s *Service) VerifyEntrySignature(sig domain.EntrySignature, artifact io.Reader) (string, []byte, error) {
	key, cert, err := ParseVerificationKey(sig.Certificate)
	if err != nil {
		return "", nil, err
	}
	alg, err := HashFromAlgorithm(sig.DataHashAlgorithm)
	if err != nil {
		return "", nil, err
	}
	digest, err := VerifyArtifactDigest(sig.Signature, key, artifact, alg)
	if err != nil {
		return "", nil, err
	}
	return SignerIdentity(cert), digest, nil
}

// VerifyArtifactFile opens path, verifies the signature over its full
// contents and closes it before returning.
func (s *Service) VerifyArtifactFile(signature []byte, publicKey gocrypto.PublicKey, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open artifact: %w", domain.ErrSignatureInvalid, err)
	}
	defer f.Close()
	return VerifyArtifactSignature(signature, publicKey, f)
}
