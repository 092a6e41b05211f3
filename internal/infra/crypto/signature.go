package crypto

import (
	"bytes"
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"hash"
	"io"

	"rekorcheck/internal/domain"
)

// VerifyArtifactSignature checks a detached signature over the artifact.
// ECDSA signatures are over the digest matching the key's curve, RSA
// signatures over SHA-256 and Ed25519 signatures over the artifact itself.
func VerifyArtifactSignature(signature []byte, publicKey gocrypto.PublicKey, artifact io.Reader) error {
	_, err := VerifyArtifactDigest(signature, publicKey, artifact, SignatureHash(publicKey))
	return err
}

// SignatureHash returns the digest a signature made with publicKey is
// expected to cover when the log entry does not say otherwise.
func SignatureHash(publicKey gocrypto.PublicKey) gocrypto.Hash {
	key, ok := publicKey.(*ecdsa.PublicKey)
	if !ok || key.Curve == nil {
		return gocrypto.SHA256
	}
	switch key.Curve.Params().BitSize {
	case 384:
		return gocrypto.SHA384
	case 521:
		return gocrypto.SHA512
	default:
		return gocrypto.SHA256
	}
}

// VerifyArtifactDigest reads the whole artifact, verifies the signature and
// returns the artifact digest under alg. Every failure matches
// domain.ErrSignatureInvalid.
func VerifyArtifactDigest(signature []byte, publicKey gocrypto.PublicKey, artifact io.Reader, alg gocrypto.Hash) ([]byte, error) {
	if len(signature) == 0 {
		return nil, fmt.Errorf("%w: empty signature", domain.ErrSignatureInvalid)
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: no artifact", domain.ErrSignatureInvalid)
	}
	if !alg.Available() {
		return nil, fmt.Errorf("%w: hash %v unavailable", domain.ErrSignatureInvalid, alg)
	}

	hasher := alg.New()
	switch key := publicKey.(type) {
	case ed25519.PublicKey:
		// Ed25519 signs the message itself, so the artifact is buffered.
		var message bytes.Buffer
		if _, err := io.Copy(io.MultiWriter(hasher, &message), artifact); err != nil {
			return nil, fmt.Errorf("%w: read artifact: %w", domain.ErrSignatureInvalid, err)
		}
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: invalid ed25519 public key length: %d", domain.ErrSignatureInvalid, len(key))
		}
		if !ed25519.Verify(key, message.Bytes(), signature) {
			return nil, fmt.Errorf("%w: ed25519 verification failed", domain.ErrSignatureInvalid)
		}
		return hasher.Sum(nil), nil
	case *ecdsa.PublicKey:
		digest, err := digestReader(hasher, artifact)
		if err != nil {
			return nil, err
		}
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return nil, fmt.Errorf("%w: ecdsa verification failed", domain.ErrSignatureInvalid)
		}
		return digest, nil
	case *rsa.PublicKey:
		digest, err := digestReader(hasher, artifact)
		if err != nil {
			return nil, err
		}
		if err := rsa.VerifyPKCS1v15(key, alg, digest, signature); err != nil {
			if pssErr := rsa.VerifyPSS(key, alg, digest, signature, nil); pssErr != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, errors.Join(err, pssErr))
			}
		}
		return digest, nil
	case nil:
		return nil, fmt.Errorf("%w: no public key", domain.ErrSignatureInvalid)
	default:
		return nil, fmt.Errorf("%w: unsupported public key type %T", domain.ErrSignatureInvalid, publicKey)
	}
}

func digestReader(hasher hash.Hash, artifact io.Reader) ([]byte, error) {
	if _, err := io.Copy(hasher, artifact); err != nil {
		return nil, fmt.Errorf("%w: read artifact: %w", domain.ErrSignatureInvalid, err)
	}
	return hasher.Sum(nil), nil
}
