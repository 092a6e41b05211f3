package rekor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/transparency-dev/formats/log"

	"rekorcheck/internal/domain"
)

// ParseCheckpointNote reads the origin, size and root hash from a signed
// checkpoint note. Note signatures are not verified here.
func ParseCheckpointNote(note string) (log.Checkpoint, error) {
	var cp log.Checkpoint
	if _, err := cp.Unmarshal([]byte(note)); err != nil {
		return log.Checkpoint{}, fmt.Errorf("%w: %w", domain.ErrCheckpointMismatch, err)
	}
	return cp, nil
}

// CheckNoteMatches parses note and fails with domain.ErrCheckpointMismatch
// unless it commits to size and root. It returns the note origin.
func CheckNoteMatches(note string, size uint64, root []byte) (string, error) {
	cp, err := ParseCheckpointNote(note)
	if err != nil {
		return "", err
	}
	if cp.Size != size {
		return "", fmt.Errorf("%w: note size %d, expected %d", domain.ErrCheckpointMismatch, cp.Size, size)
	}
	if !bytes.Equal(cp.Hash, root) {
		return "", fmt.Errorf("%w: note root %x, expected %x", domain.ErrCheckpointMismatch, cp.Hash, root)
	}
	return cp.Origin, nil
}

// TreeIDFromOrigin returns the tree ID suffix of a Rekor origin line such as
// "rekor.sigstore.dev - 1193050959916656506", or "" when there is none.
func TreeIDFromOrigin(origin string) string {
	_, treeID, ok := strings.Cut(origin, " - ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(treeID)
}
