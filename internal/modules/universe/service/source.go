package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	marketdata "equity_bot/internal/modules/marketdata/service"
)

// SnapshotSource отдаёт свежий срез данных по символу.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol string) (models.SymbolSnapshot, error)
}

// ErrIncompleteSnapshot: источник ответил, но капитализации или
// оборота в ответе нет; символ просто выбывает из сборки.
var ErrIncompleteSnapshot = errors.New("snapshot missing market cap or dollar volume")

// OverviewSource собирает снимок из фундаментального REST-ответа и
// хвоста ценового кэша (последний close + средний объём за 20 баров).
type OverviewSource struct {
	overview *marketdata.FundamentalsClient
	store    *marketdata.Store
	now      func() time.Time
}

// SnapshotSource для fx.
func NewOverviewSource(overview *marketdata.FundamentalsClient, store *marketdata.Store) SnapshotSource {
	return &OverviewSource{overview: overview, store: store, now: time.Now}
}

func (s *OverviewSource) Snapshot(ctx context.Context, symbol string) (models.SymbolSnapshot, error) {
	payload, err := s.overview.CompanyOverview(ctx, symbol)
	if err != nil {
		return models.SymbolSnapshot{}, err
	}

	nan := math.NaN()
	snap := models.SymbolSnapshot{
		Symbol:        symbol,
		Name:          stringField(payload, "Name"),
		Sector:        stringField(payload, "Sector"),
		Exchange:      stringField(payload, "Exchange"),
		MarketCap:     numberField(payload, "MarketCapitalization"),
		FloatShares:   numberField(payload, "SharesFloat"),
		LastPrice:     nan,
		AverageVolume: nan,
		DollarVolume:  nan,
		BidAskSpread:  nan,
		FetchedAt:     s.now().UTC(),
	}

	if series, err := s.store.Load(symbol, "1d"); err == nil && series.Len() > 0 {
		snap.LastPrice = series.Bars[series.Len()-1].Close
		snap.AverageVolume = tailMeanVolume(series, 20)
	}
	if !math.IsNaN(snap.LastPrice) && !math.IsNaN(snap.AverageVolume) {
		snap.DollarVolume = snap.LastPrice * snap.AverageVolume
	}

	if !snap.Complete() {
		return models.SymbolSnapshot{}, ErrIncompleteSnapshot
	}
	return snap, nil
}

func tailMeanVolume(series *models.PriceSeries, window int) float64 {
	start := series.Len() - window
	if start < 0 {
		start = 0
	}
	volumes := make([]float64, 0, series.Len()-start)
	for _, bar := range series.Bars[start:] {
		volumes = append(volumes, bar.Volume)
	}
	mean, err := stats.Mean(volumes)
	if err != nil {
		return math.NaN()
	}
	return mean
}

func stringField(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	v = strings.TrimSpace(v)
	// источник отдаёт "None" и "-" вместо пустого значения
	if v == "None" || v == "-" {
		return ""
	}
	return v
}

func numberField(payload map[string]interface{}, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return math.NaN()
}
