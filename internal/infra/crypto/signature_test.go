package crypto

import (
	"bytes"
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/rekortest"
)

func TestVerifyArtifactSignatureKeyTypes(t *testing.T) {
	artifact := []byte("hello transparency log\n")
	cases := []struct {
		name    string
		keyType rekortest.KeyType
	}{
		{name: "ecdsa", keyType: rekortest.ECDSAP256KeyType},
		{name: "ecdsa p384", keyType: rekortest.ECDSAP384KeyType},
		{name: "ed25519", keyType: rekortest.Ed25519KeyType},
		{name: "rsa", keyType: rekortest.RSAKeyType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer, err := rekortest.GenerateSigner(tc.keyType, "dev@example.com")
			if err != nil {
				t.Fatalf("generate signer: %v", err)
			}
			sig, err := signer.Sign(artifact)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			pub, err := ExtractPublicKey(signer.CertPEM)
			if err != nil {
				t.Fatalf("extract public key: %v", err)
			}

			if err := VerifyArtifactSignature(sig, pub, bytes.NewReader(artifact)); err != nil {
				t.Fatalf("verify signature failed: %v", err)
			}

			mutated := append([]byte(nil), artifact...)
			mutated[0] ^= 0x01
			err = VerifyArtifactSignature(sig, pub, bytes.NewReader(mutated))
			if !errors.Is(err, domain.ErrSignatureInvalid) {
				t.Fatalf("expected signature invalid for mutated artifact, got %v", err)
			}
		})
	}
}

func TestSignatureHashFollowsCurve(t *testing.T) {
	cases := []struct {
		name    string
		keyType rekortest.KeyType
		want    gocrypto.Hash
	}{
		{name: "p256", keyType: rekortest.ECDSAP256KeyType, want: gocrypto.SHA256},
		{name: "p384", keyType: rekortest.ECDSAP384KeyType, want: gocrypto.SHA384},
		{name: "ed25519", keyType: rekortest.Ed25519KeyType, want: gocrypto.SHA256},
		{name: "rsa", keyType: rekortest.RSAKeyType, want: gocrypto.SHA256},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer, err := rekortest.GenerateSigner(tc.keyType, "dev@example.com")
			if err != nil {
				t.Fatalf("generate signer: %v", err)
			}
			if got := SignatureHash(signer.PubKey); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestVerifyArtifactSignatureP384RejectsSHA256Digest(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.ECDSAP384KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	artifact := []byte("hello transparency log\n")
	digest := sha256.Sum256(artifact)
	sig, err := signer.PrivKey.Sign(rand.Reader, digest[:], gocrypto.SHA256)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = VerifyArtifactSignature(sig, signer.PubKey, bytes.NewReader(artifact))
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected signature invalid, got %v", err)
	}
}

func TestExtractPublicKeyMatchesCertificate(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.ECDSAP256KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}

	fromPEM, err := ExtractPublicKey(signer.CertPEM)
	if err != nil {
		t.Fatalf("extract from PEM: %v", err)
	}
	fromDER, err := ExtractPublicKey(signer.Cert.Raw)
	if err != nil {
		t.Fatalf("extract from DER: %v", err)
	}
	ecKey, ok := fromPEM.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("expected *ecdsa.PublicKey, got %T", fromPEM)
	}
	if !ecKey.Equal(fromDER) || !ecKey.Equal(signer.PubKey) {
		t.Fatal("extracted key does not match the signer key")
	}
}

func TestExtractPublicKeyRejectsMalformedInput(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.Ed25519KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	pubPEM, err := signer.PublicKeyPEM()
	if err != nil {
		t.Fatalf("public key PEM: %v", err)
	}

	cases := map[string][]byte{
		"empty":          nil,
		"garbage":        []byte("definitely not a certificate"),
		"truncated der":  signer.Cert.Raw[:len(signer.Cert.Raw)/2],
		"truncated pem":  signer.CertPEM[:len(signer.CertPEM)/2],
		"public key pem": pubPEM,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			key, err := ExtractPublicKey(input)
			if !errors.Is(err, domain.ErrCertificateInvalid) {
				t.Fatalf("expected certificate invalid, got %v", err)
			}
			if key != nil {
				t.Fatalf("expected no key on failure, got %T", key)
			}
		})
	}
}

func TestParseVerificationKeyAcceptsBareKey(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.RSAKeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	pubPEM, err := signer.PublicKeyPEM()
	if err != nil {
		t.Fatalf("public key PEM: %v", err)
	}

	key, cert, err := ParseVerificationKey(pubPEM)
	if err != nil {
		t.Fatalf("parse bare key: %v", err)
	}
	if cert != nil {
		t.Fatal("expected no certificate for bare key")
	}
	if _, ok := key.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", key)
	}

	_, cert, err = ParseVerificationKey(signer.CertPEM)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if got := SignerIdentity(cert); got != "dev@example.com" {
		t.Fatalf("unexpected signer identity %q", got)
	}
}

func TestVerifyArtifactSignatureFailsClosed(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.ECDSAP256KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	other, err := rekortest.GenerateSigner(rekortest.ECDSAP256KeyType, "other@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	artifact := []byte("artifact")
	sig, err := signer.Sign(artifact)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name string
		sig  []byte
		key  gocrypto.PublicKey
	}{
		{name: "wrong key", sig: sig, key: other.PubKey},
		{name: "empty signature", sig: nil, key: signer.PubKey},
		{name: "truncated signature", sig: sig[:len(sig)-4], key: signer.PubKey},
		{name: "nil key", sig: sig, key: nil},
		{name: "unsupported key", sig: sig, key: "not a key"},
		{name: "short ed25519 key", sig: sig, key: ed25519.PublicKey{1, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyArtifactSignature(tc.sig, tc.key, bytes.NewReader(artifact))
			if !errors.Is(err, domain.ErrSignatureInvalid) {
				t.Fatalf("expected signature invalid, got %v", err)
			}
		})
	}

	readErr := errors.New("disk gone")
	err = VerifyArtifactSignature(sig, signer.PubKey, iotest.ErrReader(readErr))
	if !errors.Is(err, domain.ErrSignatureInvalid) || !errors.Is(err, readErr) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
}

func TestVerifyArtifactDigestReturnsDigest(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.Ed25519KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	artifact := bytes.Repeat([]byte("chunk"), 10000)
	sig, err := signer.Sign(artifact)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	digest, err := VerifyArtifactDigest(sig, signer.PubKey, iotest.HalfReader(bytes.NewReader(artifact)), gocrypto.SHA256)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := sha256.Sum256(artifact)
	if !DigestsEqual(digest, want[:]) {
		t.Fatalf("unexpected digest %x", digest)
	}
}

func TestServiceVerifyEntrySignature(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.ECDSAP256KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	artifact := []byte("release-v1.tar.gz contents")
	sig, err := signer.Sign(artifact)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := sha256.Sum256(artifact)

	svc := NewService()
	identity, digest, err := svc.VerifyEntrySignature(domain.EntrySignature{
		Signature:         sig,
		Certificate:       signer.CertPEM,
		DataHashAlgorithm: "sha256",
		DataHash:          want[:],
	}, bytes.NewReader(artifact))
	if err != nil {
		t.Fatalf("verify entry signature: %v", err)
	}
	if identity != "dev@example.com" {
		t.Fatalf("unexpected identity %q", identity)
	}
	if !DigestsEqual(digest, want[:]) {
		t.Fatalf("unexpected digest %x", digest)
	}

	_, _, err = svc.VerifyEntrySignature(domain.EntrySignature{
		Signature:         sig,
		Certificate:       signer.CertPEM,
		DataHashAlgorithm: "md5",
	}, bytes.NewReader(artifact))
	if !errors.Is(err, domain.ErrUnsupportedEntry) {
		t.Fatalf("expected unsupported entry, got %v", err)
	}
}

func TestServiceVerifyArtifactFile(t *testing.T) {
	signer, err := rekortest.GenerateSigner(rekortest.ECDSAP256KeyType, "dev@example.com")
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	artifact := []byte("file contents")
	sig, err := signer.Sign(artifact)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	path := filepath.Join(t.TempDir(), "artifact.bin")
	if err := os.WriteFile(path, artifact, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	svc := NewService()
	if err := svc.VerifyArtifactFile(sig, signer.PubKey, path); err != nil {
		t.Fatalf("verify file: %v", err)
	}
	err = svc.VerifyArtifactFile(sig, signer.PubKey, filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, domain.ErrSignatureInvalid) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}
