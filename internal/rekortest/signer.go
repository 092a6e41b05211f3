// Package rekortest builds signing identities, hashedrekord entries and an
// in-memory Rekor log for tests.
package rekortest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	crand "crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

type KeyType uint8

const (
	ECDSAP256KeyType KeyType = iota
	Ed25519KeyType
	RSAKeyType
	ECDSAP384KeyType
)

// Signer is a short lived signing identity with a self-signed certificate,
// shaped like the certificates Fulcio issues.
type Signer struct {
	KeyType KeyType
	Email   string

	Cert    *x509.Certificate
	CertPEM []byte

	PubKey  crypto.PublicKey
	PrivKey crypto.Signer
}

// GenerateSigner creates a new key of the given type and a certificate
// binding it to email.
func GenerateSigner(keyType KeyType, email string) (*Signer, error) {
	var privKey crypto.Signer
	switch keyType {
	case ECDSAP256KeyType:
		k, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		privKey = k
	case ECDSAP384KeyType:
		k, err := ecdsa.GenerateKey(elliptic.P384(), crand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		privKey = k
	case Ed25519KeyType:
		_, k, err := ed25519.GenerateKey(crand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		privKey = k
	case RSAKeyType:
		k, err := rsa.GenerateKey(crand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		privKey = k
	default:
		return nil, fmt.Errorf("unknown key type %d", keyType)
	}

	template := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject:      pkix.Name{},
		NotBefore:    time.Now().Add(-15 * time.Second),
		NotAfter:     time.Now().Add(10 * time.Minute),

		KeyUsage:       x509.KeyUsageDigitalSignature,
		ExtKeyUsage:    []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		EmailAddresses: []string{email},
	}

	derBytes, err := x509.CreateCertificate(crand.Reader, template, template, privKey.Public(), privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate from DER: %w", err)
	}
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, fmt.Errorf("failed to encode certificate: %w", err)
	}

	return &Signer{
		KeyType: keyType,
		Email:   email,
		Cert:    cert,
		CertPEM: buf.Bytes(),
		PubKey:  privKey.Public(),
		PrivKey: privKey,
	}, nil
}

// Sign produces a detached signature over artifact the way cosign does for
// hashedrekord entries.
func (s *Signer) Sign(artifact []byte) ([]byte, error) {
	switch s.KeyType {
	case Ed25519KeyType:
		return s.PrivKey.Sign(crand.Reader, artifact, crypto.Hash(0))
	default:
		h := s.Hash()
		hasher := h.New()
		hasher.Write(artifact)
		return s.PrivKey.Sign(crand.Reader, hasher.Sum(nil), h)
	}
}

// Hash is the digest the signer signs and records in its entries.
func (s *Signer) Hash() crypto.Hash {
	if s.KeyType == ECDSAP384KeyType {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// PublicKeyPEM returns the bare PKIX public key, for entries signed without
// a certificate.
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(s.PubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// HashedRekordBody returns the canonical entry body the log would store for
// artifact signed with signature, carrying the signer's certificate.
func (s *Signer) HashedRekordBody(artifact, signature []byte) []byte {
	return hashedRekordBody(artifact, signature, s.CertPEM, s.Hash())
}

func HashedRekordBody(artifact, signature, verifier []byte) []byte {
	return hashedRekordBody(artifact, signature, verifier, crypto.SHA256)
}

func hashedRekordBody(artifact, signature, verifier []byte, h crypto.Hash) []byte {
	hasher := h.New()
	hasher.Write(artifact)
	digest := hasher.Sum(nil)
	body := map[string]any{
		"apiVersion": "0.0.1",
		"kind":       "hashedrekord",
		"spec": map[string]any{
			"data": map[string]any{
				"hash": map[string]any{
					"algorithm": hashNames[h],
					"value":     hex.EncodeToString(digest),
				},
			},
			"signature": map[string]any{
				"content": base64.StdEncoding.EncodeToString(signature),
				"publicKey": map[string]any{
					"content": base64.StdEncoding.EncodeToString(verifier),
				},
			},
		},
	}
	out, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Errorf("failed to marshal hashedrekord body: %w", err))
	}
	return out
}

var hashNames = map[crypto.Hash]string{
	crypto.SHA256: "sha256",
	crypto.SHA384: "sha384",
	crypto.SHA512: "sha512",
}

func randomSerial() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	num, err := crand.Int(crand.Reader, limit)
	if err != nil {
		panic(fmt.Errorf("failed to create random serial: %w", err))
	}
	return num
}
