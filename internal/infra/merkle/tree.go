package merkle

import "fmt"

// Root returns the RFC 6962 tree head over the given leaf hashes.
func Root(h Hasher, leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(h, leaves)
	if err != nil {
		return nil, err
	}
	return treeHash(h, level), nil
}

// InclusionProof returns the audit path for leafIndex, ordered from the leaf
// upwards.
func InclusionProof(h Hasher, leaves [][]byte, leafIndex uint64) ([][]byte, error) {
	level, err := cloneAndValidateLeaves(h, leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex >= uint64(len(level)) {
		return nil, fmt.Errorf("%w: leaf index %d out of range for tree size %d", ErrInvalidProof, leafIndex, len(level))
	}
	path := make([][]byte, 0)
	inclusionPath(h, level, leafIndex, &path)
	return path, nil
}

// ConsistencyProof returns the proof that the first fromSize leaves are a
// prefix of the first toSize leaves.
func ConsistencyProof(h Hasher, leaves [][]byte, fromSize, toSize uint64) ([][]byte, error) {
	if fromSize > toSize || toSize > uint64(len(leaves)) {
		return nil, fmt.Errorf("%w: sizes %d and %d invalid for %d leaves", ErrInvalidProof, fromSize, toSize, len(leaves))
	}
	if fromSize == 0 || fromSize == toSize {
		return [][]byte{}, nil
	}
	level, err := cloneAndValidateLeaves(h, leaves[:toSize])
	if err != nil {
		return nil, err
	}
	return subproof(h, level, fromSize, true), nil
}

func treeHash(h Hasher, leaves [][]byte) []byte {
	if len(leaves) == 1 {
		return cloneHash(leaves[0])
	}
	k := splitPoint(uint64(len(leaves)))
	return h.HashChildren(treeHash(h, leaves[:k]), treeHash(h, leaves[k:]))
}

func inclusionPath(h Hasher, leaves [][]byte, leafIndex uint64, path *[][]byte) {
	if len(leaves) == 1 {
		return
	}
	k := splitPoint(uint64(len(leaves)))
	if leafIndex < k {
		inclusionPath(h, leaves[:k], leafIndex, path)
		*path = append(*path, treeHash(h, leaves[k:]))
		return
	}
	inclusionPath(h, leaves[k:], leafIndex-k, path)
	*path = append(*path, treeHash(h, leaves[:k]))
}

// subproof is SUBPROOF from RFC 6962 section 2.1.2.
func subproof(h Hasher, leaves [][]byte, m uint64, complete bool) [][]byte {
	n := uint64(len(leaves))
	if m == n {
		if complete {
			return [][]byte{}
		}
		return [][]byte{treeHash(h, leaves)}
	}
	k := splitPoint(n)
	if m <= k {
		return append(subproof(h, leaves[:k], m, complete), treeHash(h, leaves[k:]))
	}
	return append(subproof(h, leaves[k:], m-k, false), treeHash(h, leaves[:k]))
}

func cloneAndValidateLeaves(h Hasher, leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(h, leaf, fmt.Sprintf("leaf %d", i)); err != nil {
			return nil, err
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}
