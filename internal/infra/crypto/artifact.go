package crypto

import (
	gocrypto "crypto"
	"crypto/subtle"
	"fmt"
	"strings"

	"rekorcheck/internal/domain"
)

// HashFromAlgorithm maps the data hash algorithm names used in hashedrekord
// entries to a hash function.
func HashFromAlgorithm(name string) (gocrypto.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return gocrypto.SHA256, nil
	case "sha384":
		return gocrypto.SHA384, nil
	case "sha512":
		return gocrypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: unsupported hash algorithm %q", domain.ErrUnsupportedEntry, name)
	}
}

// DigestsEqual compares two digests in constant time.
func DigestsEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
