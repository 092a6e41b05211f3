// Package merkle verifies RFC 6962 Merkle tree proofs as served by Rekor.
//
// Every function in this package is pure: no I/O, no logging, no shared state.
// Failures are reported as ErrInvalidProof when the proof is structurally
// malformed for the claimed sizes, and as *RootMismatchError (matching
// ErrRootMismatch) when a well-formed proof reconstructs a different root.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"
)

const HashSize = sha256.Size

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

var (
	ErrInvalidProof = errors.New("invalid proof")
	ErrRootMismatch = errors.New("root mismatch")
	ErrEmptyTree    = errors.New("empty merkle tree")
)

// RootMismatchError is returned when a proof is well formed but reconstructs
// a root different from the one claimed.
type RootMismatchError struct {
	Computed []byte
	Expected []byte
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("root mismatch: computed %x, expected %x", e.Computed, e.Expected)
}

func (e *RootMismatchError) Is(target error) bool {
	return target == ErrRootMismatch
}

// Hasher is the hash strategy used to build and verify a tree.
type Hasher interface {
	HashLeaf(data []byte) []byte
	HashChildren(left, right []byte) []byte
	Size() int
}

// SHA256Hasher is the RFC 6962 hasher: SHA-256 with a 0x00 prefix for leaves
// and a 0x01 prefix for interior nodes.
type SHA256Hasher struct{}

func (SHA256Hasher) HashLeaf(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{leafPrefix})
	hasher.Write(data)
	return hasher.Sum(nil)
}

func (SHA256Hasher) HashChildren(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{nodePrefix})
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

func (SHA256Hasher) Size() int {
	return HashSize
}

// DefaultHasher is the hasher used by Rekor.
var DefaultHasher Hasher = SHA256Hasher{}

func LeafHash(data []byte) []byte {
	return DefaultHasher.HashLeaf(data)
}

func NodeHash(left, right []byte) []byte {
	return DefaultHasher.HashChildren(left, right)
}

// ComputeLeafHash returns the leaf hash of a raw log entry body. The body must
// be the exact bytes the log hashed; re-encoding it changes the digest.
func ComputeLeafHash(entryBody []byte) []byte {
	return DefaultHasher.HashLeaf(entryBody)
}

// VerifyInclusion checks that leafHash sits at index in a tree of the given
// size whose root is root, using the audit path ordered from the leaf upwards.
func VerifyInclusion(h Hasher, index, size uint64, leafHash []byte, path [][]byte, root []byte) error {
	if size == 0 {
		return fmt.Errorf("%w: tree size is zero", ErrInvalidProof)
	}
	if index >= size {
		return fmt.Errorf("%w: leaf index %d out of range for tree size %d", ErrInvalidProof, index, size)
	}
	if err := validateHash(h, leafHash, "leaf hash"); err != nil {
		return err
	}
	if err := validateHash(h, root, "root hash"); err != nil {
		return err
	}
	if err := validatePath(h, path); err != nil {
		return err
	}

	computed, used, err := inclusionRootFromPath(h, leafHash, index, size, path)
	if err != nil {
		return err
	}
	if used != len(path) {
		return fmt.Errorf("%w: audit path has %d hashes, %d needed for index %d in tree size %d",
			ErrInvalidProof, len(path), used, index, size)
	}
	if !bytes.Equal(computed, root) {
		return &RootMismatchError{Computed: computed, Expected: cloneHash(root)}
	}
	return nil
}

// VerifyConsistency checks that the tree of size1 with root1 is a prefix of
// the tree of size2 with root2.
func VerifyConsistency(h Hasher, size1, size2 uint64, path [][]byte, root1, root2 []byte) error {
	switch {
	case size1 > size2:
		return fmt.Errorf("%w: first size %d exceeds last size %d", ErrInvalidProof, size1, size2)
	case size1 == 0:
		// The empty tree is a prefix of every tree.
		if len(path) != 0 {
			return fmt.Errorf("%w: expected empty proof for first size 0, got %d hashes", ErrInvalidProof, len(path))
		}
		return nil
	case size1 == size2:
		if len(path) != 0 {
			return fmt.Errorf("%w: expected empty proof for equal sizes, got %d hashes", ErrInvalidProof, len(path))
		}
		if !bytes.Equal(root1, root2) {
			return &RootMismatchError{Computed: cloneHash(root1), Expected: cloneHash(root2)}
		}
		return nil
	}

	if err := validateHash(h, root1, "first root"); err != nil {
		return err
	}
	if err := validateHash(h, root2, "last root"); err != nil {
		return err
	}
	if err := validatePath(h, path); err != nil {
		return err
	}
	if len(path) == 0 {
		return fmt.Errorf("%w: empty proof for sizes %d and %d", ErrInvalidProof, size1, size2)
	}

	oldCandidate, newCandidate, used, err := consistencyRootsFromPath(h, size1, size2, path, true, root1)
	if err != nil {
		return err
	}
	if used != len(path) {
		return fmt.Errorf("%w: consistency path has %d hashes, %d needed for sizes %d and %d",
			ErrInvalidProof, len(path), used, size1, size2)
	}
	if !bytes.Equal(oldCandidate, root1) {
		return &RootMismatchError{Computed: oldCandidate, Expected: cloneHash(root1)}
	}
	if !bytes.Equal(newCandidate, root2) {
		return &RootMismatchError{Computed: newCandidate, Expected: cloneHash(root2)}
	}
	return nil
}

// inclusionRootFromPath walks down the tree to the leaf and rebuilds the root
// on the way back up, consuming one path hash per level.
func inclusionRootFromPath(h Hasher, leafHash []byte, index, size uint64, path [][]byte) ([]byte, int, error) {
	if size == 1 {
		return cloneHash(leafHash), 0, nil
	}
	k := splitPoint(size)
	if index < k {
		leftRoot, used, err := inclusionRootFromPath(h, leafHash, index, k, path)
		if err != nil {
			return nil, 0, err
		}
		if used >= len(path) {
			return nil, 0, fmt.Errorf("%w: audit path too short for tree size %d", ErrInvalidProof, size)
		}
		return h.HashChildren(leftRoot, path[used]), used + 1, nil
	}
	rightRoot, used, err := inclusionRootFromPath(h, leafHash, index-k, size-k, path)
	if err != nil {
		return nil, 0, err
	}
	if used >= len(path) {
		return nil, 0, fmt.Errorf("%w: audit path too short for tree size %d", ErrInvalidProof, size)
	}
	return h.HashChildren(path[used], rightRoot), used + 1, nil
}

// consistencyRootsFromPath rebuilds the old and new roots from a single
// consistency path. While isFirst holds, the old tree's right edge has not
// been split off yet, so reaching size1 == size2 means the old tree is itself
// a complete subtree and its root is taken from oldRoot instead of the path.
func consistencyRootsFromPath(h Hasher, size1, size2 uint64, path [][]byte, isFirst bool, oldRoot []byte) ([]byte, []byte, int, error) {
	if size1 == size2 {
		if isFirst {
			return cloneHash(oldRoot), cloneHash(oldRoot), 0, nil
		}
		if len(path) == 0 {
			return nil, nil, 0, fmt.Errorf("%w: consistency path too short", ErrInvalidProof)
		}
		return cloneHash(path[0]), cloneHash(path[0]), 1, nil
	}
	if size2 <= 1 {
		return nil, nil, 0, fmt.Errorf("%w: cannot split tree of size %d", ErrInvalidProof, size2)
	}

	k := splitPoint(size2)
	if size1 <= k {
		leftOld, leftNew, used, err := consistencyRootsFromPath(h, size1, k, path, isFirst, oldRoot)
		if err != nil {
			return nil, nil, 0, err
		}
		if used >= len(path) {
			return nil, nil, 0, fmt.Errorf("%w: consistency path too short", ErrInvalidProof)
		}
		rightRoot := path[used]
		return leftOld, h.HashChildren(leftNew, rightRoot), used + 1, nil
	}

	rightOld, rightNew, used, err := consistencyRootsFromPath(h, size1-k, size2-k, path, false, oldRoot)
	if err != nil {
		return nil, nil, 0, err
	}
	if used >= len(path) {
		return nil, nil, 0, fmt.Errorf("%w: consistency path too short", ErrInvalidProof)
	}
	leftRoot := path[used]
	return h.HashChildren(leftRoot, rightOld), h.HashChildren(leftRoot, rightNew), used + 1, nil
}

// splitPoint returns the largest power of two strictly less than n, n >= 2.
func splitPoint(n uint64) uint64 {
	return uint64(1) << (bits.Len64(n-1) - 1)
}

func validateHash(h Hasher, hash []byte, name string) error {
	if len(hash) != h.Size() {
		return fmt.Errorf("%w: %s has length %d, want %d", ErrInvalidProof, name, len(hash), h.Size())
	}
	return nil
}

func validatePath(h Hasher, path [][]byte) error {
	for i, p := range path {
		if len(p) != h.Size() {
			return fmt.Errorf("%w: path hash %d has length %d, want %d", ErrInvalidProof, i, len(p), h.Size())
		}
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
