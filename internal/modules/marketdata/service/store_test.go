package service

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1+n, 0, 0, 0, 0, time.UTC)
}

func sampleSeries(symbol string, firstDay int, closes ...float64) *models.PriceSeries {
	bars := make([]models.PriceBar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, models.NewBar(day(firstDay+i), c-1, c+1, c-2, c, 1000+float64(i)*100))
	}
	return models.NewSeries(symbol, bars...)
}

func TestStorePathSanitizesSymbol(t *testing.T) {
	s := NewStore("/tmp/prices")
	assert.Equal(t, filepath.Join("/tmp/prices", "1d", "BRK-B.csv"), s.Path("brk/b", "1d"))
	assert.Equal(t, filepath.Join("/tmp/prices", "1d", "AAPL.csv"), s.Path("aapl", "1d"))
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(sampleSeries("aapl", 0, 10, 11, 12), "1d"))

	raw, err := os.ReadFile(s.Path("AAPL", "1d"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "date,open,high,low,close,adj_close,volume"))

	loaded, err := s.Load("AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", loaded.Symbol)
	require.Equal(t, 3, loaded.Len())

	first := loaded.Bars[0]
	assert.Equal(t, day(0), first.Date)
	assert.Equal(t, 9.0, first.Open)
	assert.Equal(t, 11.0, first.High)
	assert.Equal(t, 8.0, first.Low)
	assert.Equal(t, 10.0, first.Close)
	assert.Equal(t, 1000.0, first.Volume)
	assert.True(t, math.IsNaN(first.ATR))
	assert.True(t, math.IsNaN(first.RelativeStrength))
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("GHOST", "1d")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreSatisfies(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(sampleSeries("AAPL", 2, 10, 11, 12, 13, 14, 15, 16, 17, 18), "1d"))
	// бары day(2)..day(10)
	now := day(11)
	require.NoError(t, os.Chtimes(s.Path("AAPL", "1d"), now, now))

	req := PriceRequest{Symbol: "AAPL", Start: day(0), End: day(10), Interval: "1d"}

	// начало за 2 дня до первого бара — внутри допуска в 3 дня
	assert.True(t, s.Satisfies(req, 7, now))

	// протухший файл
	assert.False(t, s.Satisfies(req, 7, now.Add(8*24*time.Hour)))

	// ttl=0 отключает проверку свежести
	assert.True(t, s.Satisfies(req, 0, now.Add(365*24*time.Hour)))

	// начало далеко до первого бара
	early := req
	early.Start = day(2).Add(-4 * 24 * time.Hour)
	assert.False(t, s.Satisfies(early, 7, now))

	// конец позже последнего бара сверх допуска
	late := req
	late.End = day(14)
	assert.False(t, s.Satisfies(late, 7, now))

	// для внутридневного интервала допуск всего день
	require.NoError(t, s.Save(sampleSeries("AAPL", 2, 10, 11, 12), "60m"))
	require.NoError(t, os.Chtimes(s.Path("AAPL", "60m"), now, now))
	intraday := PriceRequest{Symbol: "AAPL", Start: day(0), End: day(4), Interval: "60m"}
	assert.False(t, s.Satisfies(intraday, 7, now))
	intraday.Start = day(1)
	assert.True(t, s.Satisfies(intraday, 7, now))

	// нет файла
	assert.False(t, s.Satisfies(PriceRequest{Symbol: "GHOST", Interval: "1d", Start: day(0), End: day(1)}, 7, now))
}

func TestClipSeries(t *testing.T) {
	series := sampleSeries("AAPL", 0, 10, 11, 12, 13, 14)

	clipped := ClipSeries(series, day(1), day(3))
	require.Equal(t, 3, clipped.Len())
	assert.Equal(t, day(1), clipped.Bars[0].Date)
	assert.Equal(t, day(3), clipped.Bars[2].Date)

	assert.Equal(t, 0, ClipSeries(series, day(10), day(20)).Len())
	assert.Equal(t, 5, ClipSeries(series, day(0), day(4)).Len())
}
