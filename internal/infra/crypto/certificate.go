package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"rekorcheck/internal/domain"
)

const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypePublicKey   = "PUBLIC KEY"
)

// ExtractPublicKey parses a PEM or DER encoded X.509 certificate and returns
// the public key it carries.
func ExtractPublicKey(certificate []byte) (gocrypto.PublicKey, error) {
	cert, err := ParseCertificate(certificate)
	if err != nil {
		return nil, err
	}
	return supportedKey(cert.PublicKey)
}

func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty certificate", domain.ErrCertificateInvalid)
	}
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != pemTypeCertificate {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", domain.ErrCertificateInvalid, block.Type)
		}
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCertificateInvalid, err)
	}
	return cert, nil
}

// ParseVerificationKey accepts either a certificate or a bare PKIX public key,
// which is what hashedrekord entries signed with a long lived key carry.
// The certificate is nil when the input is a bare key.
func ParseVerificationKey(data []byte) (gocrypto.PublicKey, *x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block != nil && block.Type == pemTypePublicKey {
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", domain.ErrCertificateInvalid, err)
		}
		key, err = supportedKey(key)
		if err != nil {
			return nil, nil, err
		}
		return key, nil, nil
	}
	cert, err := ParseCertificate(data)
	if err != nil {
		return nil, nil, err
	}
	key, err := supportedKey(cert.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}

// SignerIdentity returns the identity a Fulcio style certificate was issued
// to. Those certificates leave the subject empty and put the identity in a SAN.
func SignerIdentity(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	switch {
	case len(cert.EmailAddresses) > 0:
		return cert.EmailAddresses[0]
	case len(cert.URIs) > 0:
		return cert.URIs[0].String()
	case len(cert.DNSNames) > 0:
		return cert.DNSNames[0]
	}
	return cert.Subject.String()
}

func supportedKey(key any) (gocrypto.PublicKey, error) {
	switch k := key.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey, *rsa.PublicKey:
		return k, nil
	case nil:
		return nil, fmt.Errorf("%w: certificate has no public key", domain.ErrCertificateInvalid)
	default:
		return nil, fmt.Errorf("%w: unsupported public key type %T", domain.ErrCertificateInvalid, key)
	}
}
