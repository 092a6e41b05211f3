package cachemem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rekorcheck/internal/domain"
)

func TestCacheRoundTripIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	cache, err := New(2)
	require.NoError(t, err)

	entry := domain.LogEntry{
		LogIndex: 9,
		Body:     []byte("body"),
		Proof: &domain.InclusionProof{
			LogIndex: 9,
			TreeSize: 10,
			RootHash: []byte{1, 2, 3},
			Hashes:   [][]byte{{4, 5}},
		},
	}
	require.NoError(t, cache.Put(ctx, entry))
	entry.Body[0] = 'X'
	entry.Proof.Hashes[0][0] = 0xff

	got, ok, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("body"), got.Body)
	require.Equal(t, byte(4), got.Proof.Hashes[0][0])

	got.Body[0] = 'Y'
	again, ok, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("body"), again.Body)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache, err := New(2)
	require.NoError(t, err)

	for _, idx := range []uint64{1, 2} {
		require.NoError(t, cache.Put(ctx, domain.LogEntry{LogIndex: idx}))
	}
	_, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.Put(ctx, domain.LogEntry{LogIndex: 3}))
	require.Equal(t, 2, cache.Len())

	_, ok, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok, "entry 2 should have been evicted")
}

func TestNilCacheIsEmpty(t *testing.T) {
	var cache *Cache
	_, ok, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Put(context.Background(), domain.LogEntry{}))
}
