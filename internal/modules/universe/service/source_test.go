package service

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
)

func overviewFixture(t *testing.T, body string) (SnapshotSource, *marketdata.Store) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{DataDir: t.TempDir()}
	cfg.MarketData.BaseURL = srv.URL
	client := marketdata.NewFundamentalsClient(cfg)
	store := marketdata.NewStore(t.TempDir())

	source := NewOverviewSource(client, store)
	source.(*OverviewSource).now = func() time.Time {
		return time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	}
	return source, store
}

func priceTail(symbol string, closes ...float64) *models.PriceSeries {
	bars := make([]models.PriceBar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, models.NewBar(time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), c, c, c, c, 100_000))
	}
	return models.NewSeries(symbol, bars...)
}

func TestOverviewSourceBuildsSnapshot(t *testing.T) {
	source, store := overviewFixture(t,
		`{"Name": "Plug Power", "Sector": "Energy", "Exchange": "NASDAQ",
		  "MarketCapitalization": "150000000", "SharesFloat": "60000000"}`)
	require.NoError(t, store.Save(priceTail("PLUG", 18, 19, 20), "1d"))

	snap, err := source.Snapshot(context.Background(), "PLUG")
	require.NoError(t, err)
	assert.Equal(t, "PLUG", snap.Symbol)
	assert.Equal(t, "Plug Power", snap.Name)
	assert.Equal(t, "Energy", snap.Sector)
	assert.Equal(t, "NASDAQ", snap.Exchange)
	assert.Equal(t, 150_000_000.0, snap.MarketCap)
	assert.Equal(t, 60_000_000.0, snap.FloatShares)
	assert.Equal(t, 20.0, snap.LastPrice)
	assert.Equal(t, 100_000.0, snap.AverageVolume)
	assert.Equal(t, 2_000_000.0, snap.DollarVolume)
	assert.True(t, snap.FetchedAt.Equal(time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)))
	assert.True(t, snap.Complete())
}

func TestOverviewSourceIncompleteWithoutPrices(t *testing.T) {
	source, _ := overviewFixture(t, `{"Name": "Ghost", "MarketCapitalization": "150000000"}`)

	_, err := source.Snapshot(context.Background(), "GHST")
	require.ErrorIs(t, err, ErrIncompleteSnapshot)
}

func TestOverviewSourceNormalizesNoneValues(t *testing.T) {
	source, store := overviewFixture(t,
		`{"Name": "None", "Sector": "-", "Exchange": "NYSE",
		  "MarketCapitalization": "150000000", "SharesFloat": "None"}`)
	require.NoError(t, store.Save(priceTail("XYZ", 10), "1d"))

	snap, err := source.Snapshot(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "", snap.Name)
	assert.Equal(t, "", snap.Sector)
	assert.True(t, math.IsNaN(snap.FloatShares), "float shares must stay NaN")
}

func TestOverviewSourcePropagatesFetchError(t *testing.T) {
	source, _ := overviewFixture(t, `{"Error Message": "Invalid API call"}`)

	_, err := source.Snapshot(context.Background(), "BAD")
	require.Error(t, err)
	var pe *marketdata.ProviderError
	require.ErrorAs(t, err, &pe)
}
