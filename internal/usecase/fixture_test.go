package usecase_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/crypto"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/infra/rekor"
	"rekorcheck/internal/rekortest"
	"rekorcheck/internal/usecase"
)

const testTreeID = "1193050959916656506"

var fixedNow = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	log      *rekortest.Log
	signer   *rekortest.Signer
	client   *rekor.Client
	artifact []byte
	index    uint64
}

// newFixture serves a log holding one signed hashedrekord entry surrounded by
// unrelated entries.
func newFixture(t *testing.T, keyType rekortest.KeyType) *fixture {
	t.Helper()
	signer, err := rekortest.GenerateSigner(keyType, "dev@example.com")
	require.NoError(t, err)

	fake := rekortest.NewLog(testTreeID)
	fake.IndexOffset = 5000
	for i := 0; i < 6; i++ {
		fake.Append([]byte(fmt.Sprintf(`{"apiVersion":"0.0.1","filler":%d}`, i)))
	}
	artifact := []byte("hello, transparency log")
	sig, err := signer.Sign(artifact)
	require.NoError(t, err)
	index := fake.Append(signer.HashedRekordBody(artifact, sig))
	fake.Append([]byte(`{"apiVersion":"0.0.1","filler":"tail"}`))

	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)
	client, err := rekor.NewClient(server.URL, server.Client(), nil, slogt.New(t))
	require.NoError(t, err)

	return &fixture{log: fake, signer: signer, client: client, artifact: artifact, index: index}
}

func (f *fixture) inclusion(t *testing.T, rekorClient usecase.RekorClient, cache usecase.EntryCache) *usecase.VerifyInclusion {
	if rekorClient == nil {
		rekorClient = f.client
	}
	return &usecase.VerifyInclusion{
		Rekor:      rekorClient,
		Cache:      cache,
		Decoder:    rekor.Decoder{},
		Signatures: crypto.NewService(),
		Merkle:     merkle.NewService(),
		Logger:     slogt.New(t),
		Now:        fixedNow,
	}
}

func (f *fixture) consistency(t *testing.T, store usecase.CheckpointStore) *usecase.VerifyConsistency {
	return &usecase.VerifyConsistency{
		Rekor:  f.client,
		Store:  store,
		Merkle: merkle.NewService(),
		Logger: slogt.New(t),
		Now:    fixedNow,
	}
}

func (f *fixture) checkpoint(size uint64) *domain.Checkpoint {
	return &domain.Checkpoint{
		TreeID:   f.log.TreeID,
		TreeSize: size,
		RootHash: f.log.Root(size),
	}
}

// countingRekor counts entry fetches that reach the log.
type countingRekor struct {
	usecase.RekorClient
	entryCalls atomic.Int32
}

func (c *countingRekor) GetLogEntryByIndex(ctx context.Context, logIndex uint64) (domain.LogEntry, error) {
	c.entryCalls.Add(1)
	return c.RekorClient.GetLogEntryByIndex(ctx, logIndex)
}

func inclusionProofOf(entry map[string]any) map[string]any {
	verification := entry["verification"].(map[string]any)
	return verification["inclusionProof"].(map[string]any)
}
