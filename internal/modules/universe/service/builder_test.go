package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

type stubSource struct {
	snapshots map[string]models.SymbolSnapshot
	errs      map[string]error
	calls     int
}

func (s *stubSource) Snapshot(ctx context.Context, symbol string) (models.SymbolSnapshot, error) {
	s.calls++
	if err, ok := s.errs[symbol]; ok {
		return models.SymbolSnapshot{}, err
	}
	snap, ok := s.snapshots[symbol]
	if !ok {
		return models.SymbolSnapshot{}, ErrIncompleteSnapshot
	}
	return snap, nil
}

func builderFixture(t *testing.T, source SnapshotSource) (*Builder, string) {
	t.Helper()
	require.NoError(t, logger.Init(true))
	dataDir := t.TempDir()
	cfg := &config.Config{DataDir: dataDir, Universe: screenCriteria()}
	cfg.Universe.CacheTTLDays = 7
	cache := NewSnapshotCacheFromConfig(cfg)
	b := NewBuilder(source, cache, cfg)
	b.now = func() time.Time { return time.Date(2024, 1, 11, 10, 30, 0, 0, time.UTC) }
	return b, dataDir
}

func freshSnap(symbol string, marketCap float64) models.SymbolSnapshot {
	snap := passingSnap(symbol, marketCap)
	snap.FetchedAt = time.Date(2024, 1, 11, 10, 0, 0, 0, time.UTC)
	return snap
}

func TestBuildUniverseScreensSortsAndPersists(t *testing.T) {
	source := &stubSource{snapshots: map[string]models.SymbolSnapshot{
		"MID":   freshSnap("MID", 900_000_000),
		"SMALL": freshSnap("SMALL", 80_000_000),
		"HUGE":  freshSnap("HUGE", 5_000_000_000),
	}}
	b, dataDir := builderFixture(t, source)

	got, err := b.BuildUniverse(context.Background(), []string{"mid", "small", "HUGE", ""}, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SMALL", got[0].Symbol)
	assert.Equal(t, "MID", got[1].Symbol)
	assert.Equal(t, 3, source.calls)

	matches, err := filepath.Glob(filepath.Join(dataDir, "universe", "universe_2024-01-11_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "SMALL")
	assert.Contains(t, content, "MID")
	assert.NotContains(t, content, "HUGE")
	assert.Contains(t, content, "as_of")

	// первая строка данных — наименьшая капитализация
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[1], "SMALL,"))
}

func TestBuildUniverseServesRepeatFromCache(t *testing.T) {
	source := &stubSource{snapshots: map[string]models.SymbolSnapshot{
		"MID": freshSnap("MID", 900_000_000),
	}}
	b, _ := builderFixture(t, source)
	// кэш свежий относительно реального mtime файла
	b.now = time.Now

	_, err := b.BuildUniverse(context.Background(), []string{"MID"}, time.Now(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	got, err := b.BuildUniverse(context.Background(), []string{"MID"}, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "MID", got[0].Symbol)
}

func TestBuildUniverseSkipsFailuresAndIncomplete(t *testing.T) {
	source := &stubSource{
		snapshots: map[string]models.SymbolSnapshot{"GOOD": freshSnap("GOOD", 100_000_000)},
		errs:      map[string]error{"BAD": errors.New("fetch boom")},
	}
	b, _ := builderFixture(t, source)

	got, err := b.BuildUniverse(context.Background(), []string{"GOOD", "BAD", "NODATA"}, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GOOD", got[0].Symbol)
}

func TestBuildUniverseNothingValid(t *testing.T) {
	source := &stubSource{errs: map[string]error{"BAD": errors.New("down")}}
	b, dataDir := builderFixture(t, source)

	got, err := b.BuildUniverse(context.Background(), []string{"BAD", "NODATA"}, time.Now(), true)
	require.NoError(t, err)
	assert.Empty(t, got)

	matches, err := filepath.Glob(filepath.Join(dataDir, "universe", "universe_*.csv"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBuildUniverseHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, _ := builderFixture(t, &stubSource{})

	_, err := b.BuildUniverse(ctx, []string{"AAPL"}, time.Now(), false)
	require.ErrorIs(t, err, context.Canceled)
}
