package usecase_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/checkpointfile"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/rekortest"
	"rekorcheck/internal/usecase"
)

func newFileStore(t *testing.T) *checkpointfile.Store {
	t.Helper()
	store, err := checkpointfile.New(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.NoError(t, err)
	return store
}

func TestVerifyConsistency(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	store := newFileStore(t)

	for _, fromSize := range []uint64{1, 3, 4, 5, 7} {
		receipt, err := f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{
			Previous: f.checkpoint(fromSize),
		})
		require.NoError(t, err, "from size %d", fromSize)
		require.True(t, receipt.Consistent)
		require.Equal(t, fromSize, receipt.FromSize)
		require.Equal(t, uint64(8), receipt.ToSize)
		require.Equal(t, testTreeID, receipt.TreeID)
		require.Equal(t, hex.EncodeToString(f.log.Root(8)), receipt.ToRoot)
		require.NotZero(t, receipt.ProofSize)
	}

	saved, err := store.Latest(context.Background(), testTreeID)
	require.NoError(t, err)
	require.Equal(t, uint64(8), saved.TreeSize)
	require.Equal(t, f.log.Root(8), saved.RootHash)
}

func TestVerifyConsistencyWithoutProof(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)

	receipt, err := f.consistency(t, nil).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: f.checkpoint(8),
	})
	require.NoError(t, err)
	require.Zero(t, receipt.ProofSize)
	require.Equal(t, receipt.FromRoot, receipt.ToRoot)

	receipt, err = f.consistency(t, nil).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: &domain.Checkpoint{TreeID: testTreeID},
	})
	require.NoError(t, err)
	require.Zero(t, receipt.FromSize)
	require.Zero(t, receipt.ProofSize)
}

func TestVerifyConsistencyFromStore(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	store := newFileStore(t)
	uc := f.consistency(t, store)

	_, err := uc.Execute(context.Background(), usecase.VerifyConsistencyRequest{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(context.Background(), *f.checkpoint(5)))
	receipt, err := uc.Execute(context.Background(), usecase.VerifyConsistencyRequest{})
	require.NoError(t, err)
	require.Equal(t, uint64(5), receipt.FromSize)

	_, err = f.consistency(t, nil).Execute(context.Background(), usecase.VerifyConsistencyRequest{})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestVerifyConsistencyDetectsForks(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	store := newFileStore(t)

	forked := f.checkpoint(5)
	forked.RootHash = make([]byte, merkle.HashSize)
	_, err := f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{Previous: forked})
	require.ErrorIs(t, err, merkle.ErrRootMismatch)

	sameSize := f.checkpoint(8)
	sameSize.RootHash = f.log.Root(7)
	_, err = f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{Previous: sameSize})
	require.ErrorIs(t, err, merkle.ErrRootMismatch)

	// A checkpoint larger than the log means the log was truncated.
	ahead := &domain.Checkpoint{TreeID: testTreeID, TreeSize: 20, RootHash: f.log.Root(8)}
	_, err = f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{Previous: ahead})
	require.ErrorIs(t, err, merkle.ErrInvalidProof)

	_, err = store.Latest(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrNotFound, "failed checks must not advance the store")
}

func TestVerifyConsistencyInactiveShard(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	retired := rekortest.NewLog("3904496407287907110")
	for i := 0; i < 3; i++ {
		retired.Append([]byte{byte(i)})
	}
	f.log.InactiveShards = []*rekortest.Log{retired}
	store := newFileStore(t)

	receipt, err := f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: &domain.Checkpoint{TreeID: retired.TreeID, TreeSize: 3, RootHash: retired.Root(3)},
	})
	require.NoError(t, err)
	require.Equal(t, retired.TreeID, receipt.TreeID)
	require.Equal(t, uint64(3), receipt.ToSize)

	// The active shard's checkpoint is what gets remembered.
	saved, err := store.Latest(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, testTreeID, saved.TreeID)

	_, err = f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: &domain.Checkpoint{TreeID: "42", TreeSize: 1, RootHash: retired.Root(1)},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyConsistencyGivenCheckpointMustExtendStoredHead(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	store := newFileStore(t)

	// The stored head disagrees with what the log serves now.
	trusted := f.checkpoint(5)
	trusted.RootHash = bytes.Repeat([]byte{0x01}, merkle.HashSize)
	require.NoError(t, store.Save(context.Background(), *trusted))

	_, err := f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: &domain.Checkpoint{TreeID: testTreeID},
	})
	require.ErrorIs(t, err, merkle.ErrRootMismatch)

	saved, err := store.Latest(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(5), saved.TreeSize)
	require.Equal(t, trusted.RootHash, saved.RootHash)
}

func TestVerifyConsistencyGivenCheckpointAdvancesStoredHead(t *testing.T) {
	f := newFixture(t, rekortest.ECDSAP256KeyType)
	store := newFileStore(t)
	require.NoError(t, store.Save(context.Background(), *f.checkpoint(5)))

	receipt, err := f.consistency(t, store).Execute(context.Background(), usecase.VerifyConsistencyRequest{
		Previous: &domain.Checkpoint{TreeID: testTreeID},
	})
	require.NoError(t, err)
	require.Zero(t, receipt.FromSize)

	saved, err := store.Latest(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(8), saved.TreeSize)
	require.Equal(t, f.log.Root(8), saved.RootHash)
}
