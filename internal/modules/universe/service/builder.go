// Package service: построение торговой вселенной — стартовые списки
// тикеров, кэшируемые снимки фундаментальных данных и скрининг по
// капитализации, ликвидности, сектору и бирже.
package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

// Builder собирает вселенную: кэш → источник → скрининг → CSV-срез.
type Builder struct {
	source      SnapshotSource
	cache       *SnapshotCache
	criteria    config.UniverseConfig
	universeDir string

	now func() time.Time
}

// *Builder для fx.
func NewBuilder(source SnapshotSource, cache *SnapshotCache, cfg *config.Config) *Builder {
	return &Builder{
		source:      source,
		cache:       cache,
		criteria:    cfg.Universe,
		universeDir: filepath.Join(cfg.DataDir, "universe"),
		now:         time.Now,
	}
}

// BuildUniverse прогоняет кандидатов через кэш и источник, отсеивает
// по критериям и, если persist, сохраняет срез в CSV. Символы с
// ошибкой получения или неполными данными выбывают, не роняя сборку.
func (b *Builder) BuildUniverse(ctx context.Context, symbols []string, asOf time.Time, persist bool) ([]models.SymbolSnapshot, error) {
	var snapshots []models.SymbolSnapshot
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, ok := b.cache.Read(symbol, b.now())
		if !ok {
			var err error
			snap, err = b.source.Snapshot(ctx, symbol)
			if err == ErrIncompleteSnapshot {
				logger.Debug("universe: %s skipped, snapshot incomplete", symbol)
				continue
			}
			if err != nil {
				logger.Warn("universe: skipping %s due to fetch error: %v", symbol, err)
				continue
			}
			if err := b.cache.Write(snap); err != nil {
				logger.Warn("universe: cache write %s failed: %v", symbol, err)
			}
		}
		snapshots = append(snapshots, snap)
	}

	if len(snapshots) == 0 {
		logger.Warn("universe: no valid symbols to screen")
		return nil, nil
	}

	screened := Screen(snapshots, b.criteria)
	if persist && len(screened) > 0 {
		path, err := b.saveUniverse(screened, asOf)
		if err != nil {
			return nil, err
		}
		logger.Info("universe snapshot saved to %s", path)
	}
	return screened, nil
}

type universeRow struct {
	Symbol        string  `csv:"symbol"`
	Name          string  `csv:"name"`
	Sector        string  `csv:"sector"`
	Exchange      string  `csv:"exchange"`
	MarketCap     float64 `csv:"market_cap"`
	LastPrice     float64 `csv:"last_price"`
	AverageVolume float64 `csv:"average_volume"`
	DollarVolume  float64 `csv:"dollar_volume"`
	FloatShares   float64 `csv:"float_shares"`
	BidAskSpread  float64 `csv:"bid_ask_spread"`
	FetchedAt     string  `csv:"fetched_at"`
	AsOf          string  `csv:"as_of"`
}

func (b *Builder) saveUniverse(screened []models.SymbolSnapshot, asOf time.Time) (string, error) {
	if err := os.MkdirAll(b.universeDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create universe dir")
	}
	name := "universe_" + models.Day(asOf).Format("2006-01-02") + "_" + b.now().UTC().Format("20060102_150405") + ".csv"
	path := filepath.Join(b.universeDir, name)

	rows := make([]universeRow, 0, len(screened))
	for _, snap := range screened {
		rows = append(rows, universeRow{
			Symbol:        snap.Symbol,
			Name:          snap.Name,
			Sector:        snap.Sector,
			Exchange:      snap.Exchange,
			MarketCap:     snap.MarketCap,
			LastPrice:     snap.LastPrice,
			AverageVolume: snap.AverageVolume,
			DollarVolume:  snap.DollarVolume,
			FloatShares:   snap.FloatShares,
			BidAskSpread:  snap.BidAskSpread,
			FetchedAt:     snap.FetchedAt.UTC().Format(time.RFC3339),
			AsOf:          models.Day(asOf).Format("2006-01-02"),
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create universe file")
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return "", errors.Wrap(err, "write universe file")
	}
	return path, nil
}
