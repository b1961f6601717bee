package service

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
)

func TestSnapshotCacheRoundTrip(t *testing.T) {
	cache := NewSnapshotCache(t.TempDir(), 7)
	fetched := time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)
	snap := models.SymbolSnapshot{
		Symbol:        "AAPL",
		Name:          "Apple Inc",
		Sector:        "Technology",
		Exchange:      "NASDAQ",
		MarketCap:     1_000_000_000,
		LastPrice:     180.5,
		AverageVolume: 250_000,
		DollarVolume:  45_125_000,
		FloatShares:   900_000_000,
		BidAskSpread:  math.NaN(),
		FetchedAt:     fetched,
	}
	require.NoError(t, cache.Write(snap))

	got, ok := cache.Read("AAPL", time.Now())
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "Apple Inc", got.Name)
	assert.Equal(t, "Technology", got.Sector)
	assert.Equal(t, 1_000_000_000.0, got.MarketCap)
	assert.Equal(t, 180.5, got.LastPrice)
	assert.Equal(t, 45_125_000.0, got.DollarVolume)
	assert.True(t, math.IsNaN(got.BidAskSpread))
	assert.True(t, got.FetchedAt.Equal(fetched))
}

func TestSnapshotCacheTTL(t *testing.T) {
	cache := NewSnapshotCache(t.TempDir(), 7)
	snap := passingSnap("AAPL", 100_000_000)
	snap.FetchedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, cache.Write(snap))

	_, ok := cache.Read("AAPL", time.Now())
	assert.True(t, ok)

	_, ok = cache.Read("AAPL", time.Now().Add(8*24*time.Hour))
	assert.False(t, ok)

	// нулевой TTL не инвалидирует кэш по времени
	eternal := NewSnapshotCache(cache.dir, 0)
	_, ok = eternal.Read("AAPL", time.Now().Add(365*24*time.Hour))
	assert.True(t, ok)
}

func TestSnapshotCacheMissAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	cache := NewSnapshotCache(dir, 7)

	_, ok := cache.Read("GHOST", time.Now())
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "BROKEN.json"), []byte("{not json"), 0o644))
	_, ok = cache.Read("BROKEN", time.Now())
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "NODATA.json"), []byte(`{"fetched_at": "2024-01-10T00:00:00Z"}`), 0o644))
	_, ok = cache.Read("NODATA", time.Now())
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "NOTS.json"), []byte(`{"data": {"symbol": "NOTS"}}`), 0o644))
	_, ok = cache.Read("NOTS", time.Now())
	assert.False(t, ok)
}
