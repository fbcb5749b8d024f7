package priceindex

import (
	"fmt"
	"testing"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(mint string, price float64) models.Observation {
	return models.Observation{
		Mint:      mint,
		Pool:      "pool-" + mint,
		AvgPrice:  price,
		ProgramID: "prog-1",
		Slot:      "100",
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	idx := New(Config{})
	idx.Put(obs("M", 2000))

	got, ok := idx.Get("M")
	require.True(t, ok)
	assert.Equal(t, 2000.0, got.AvgPrice)
	assert.Equal(t, "pool-M", got.Pool)
}

func TestGetMissing(t *testing.T) {
	idx := New(Config{})
	_, ok := idx.Get("nope")
	assert.False(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	idx := New(Config{})
	idx.Put(obs("M", 2000))
	idx.Put(obs("M", 2500))

	got, ok := idx.Get("M")
	require.True(t, ok)
	assert.Equal(t, 2500.0, got.AvgPrice)
	assert.Equal(t, 1, idx.Stats().Entries)
}

func TestEvictionUnderCeiling(t *testing.T) {
	const ceiling = 1024 * 1024
	idx := New(Config{CeilingBytes: ceiling})
	evictFloor := int64(float64(ceiling) * defaultEvictDown)
	cleanupAt := int64(float64(ceiling) * defaultCleanup)

	cleanups, prevEntries := 0, 0
	for i := 0; i < 10000; i++ {
		idx.Put(obs(fmt.Sprintf("mint-%d", i), float64(i+1)))
		st := idx.Stats()
		if st.Entries <= prevEntries {
			// this put crossed the cleanup threshold; eviction stops at the 0.7 floor
			cleanups++
			assert.LessOrEqual(t, st.UsageBytes, evictFloor)
		}
		prevEntries = st.Entries
	}
	assert.Positive(t, cleanups)

	stats := idx.Stats()
	assert.LessOrEqual(t, stats.UsageBytes, stats.CeilingBytes)
	// between cleanups usage climbs back up to, but never past, the cleanup threshold
	assert.LessOrEqual(t, stats.UsageBytes, cleanupAt)
}

func TestEvictionOrderIsLRU(t *testing.T) {
	perEntry := int64(bytesPerEntry + mapOverhead + keyRefOverhead)
	// cleanup threshold 1.0 lets the index fill to exactly the ceiling with
	// 100 entries before any eviction runs
	idx := New(Config{CeilingBytes: perEntry * 100, CleanupThreshold: 1.0})

	for i := 0; i < 100; i++ {
		idx.Put(obs(fmt.Sprintf("mint-%d", i), float64(i+1)))
	}
	// touch mint-0 so it is no longer the least-recently-used entry
	_, _ = idx.Get("mint-0")

	// pushing one more entry should evict down to the 0.7 floor, and the
	// least-recently-used untouched key (mint-1) must go before mint-0.
	idx.Put(obs("mint-100", 101))

	_, stillHasZero := idx.Get("mint-0")
	assert.True(t, stillHasZero, "recently-accessed key should survive eviction")

	_, hasOne := idx.Get("mint-1")
	assert.False(t, hasOne, "least-recently-used key should be evicted first")
}

func TestGetAllDoesNotReorder(t *testing.T) {
	idx := New(Config{})
	idx.Put(obs("A", 1))
	idx.Put(obs("B", 2))

	all := idx.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[0].Mint) // most recently put first
	assert.Equal(t, "A", all[1].Mint)

	all2 := idx.GetAll()
	assert.Equal(t, all, all2)
}

func TestRemoveAndClear(t *testing.T) {
	idx := New(Config{})
	idx.Put(obs("A", 1))
	idx.Put(obs("B", 2))

	idx.Remove("A")
	_, ok := idx.Get("A")
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Stats().Entries)

	idx.Clear()
	assert.Equal(t, 0, idx.Stats().Entries)
}
