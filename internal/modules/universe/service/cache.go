package service

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

// SnapshotCache — JSON-кэш снимков по символам с TTL по mtime файла.
type SnapshotCache struct {
	dir     string
	ttlDays int
}

func NewSnapshotCache(dir string, ttlDays int) *SnapshotCache {
	return &SnapshotCache{dir: dir, ttlDays: ttlDays}
}

// *SnapshotCache для fx.
func NewSnapshotCacheFromConfig(cfg *config.Config) *SnapshotCache {
	return NewSnapshotCache(
		filepath.Join(cfg.DataDir, "universe", "fundamentals_cache"),
		cfg.Universe.CacheTTLDays,
	)
}

// NaN не переживает JSON, поэтому числовые поля в файле — указатели:
// null означает "данных не было".
type snapshotPayload struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	Exchange      string   `json:"exchange,omitempty"`
	MarketCap     *float64 `json:"market_cap"`
	LastPrice     *float64 `json:"last_price"`
	AverageVolume *float64 `json:"average_volume"`
	DollarVolume  *float64 `json:"dollar_volume"`
	FloatShares   *float64 `json:"float_shares"`
	BidAskSpread  *float64 `json:"bid_ask_spread"`
}

type cacheEnvelope struct {
	FetchedAt string           `json:"fetched_at"`
	Data      *snapshotPayload `json:"data"`
}

func (c *SnapshotCache) path(symbol string) string {
	return filepath.Join(c.dir, strings.ToUpper(symbol)+".json")
}

// Read возвращает снимок, если файл есть, свежий и полный.
func (c *SnapshotCache) Read(symbol string, now time.Time) (models.SymbolSnapshot, bool) {
	path := c.path(symbol)
	info, err := os.Stat(path)
	if err != nil {
		return models.SymbolSnapshot{}, false
	}
	if c.ttlDays > 0 && now.Sub(info.ModTime()) > time.Duration(c.ttlDays)*24*time.Hour {
		return models.SymbolSnapshot{}, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.SymbolSnapshot{}, false
	}
	var envelope cacheEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return models.SymbolSnapshot{}, false
	}
	if envelope.Data == nil || envelope.FetchedAt == "" {
		return models.SymbolSnapshot{}, false
	}
	fetchedAt, err := time.Parse(time.RFC3339, envelope.FetchedAt)
	if err != nil {
		return models.SymbolSnapshot{}, false
	}

	data := envelope.Data
	return models.SymbolSnapshot{
		Symbol:        data.Symbol,
		Name:          data.Name,
		Sector:        data.Sector,
		Exchange:      data.Exchange,
		MarketCap:     floatVal(data.MarketCap),
		LastPrice:     floatVal(data.LastPrice),
		AverageVolume: floatVal(data.AverageVolume),
		DollarVolume:  floatVal(data.DollarVolume),
		FloatShares:   floatVal(data.FloatShares),
		BidAskSpread:  floatVal(data.BidAskSpread),
		FetchedAt:     fetchedAt,
	}, true
}

func (c *SnapshotCache) Write(snap models.SymbolSnapshot) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot cache dir")
	}
	envelope := cacheEnvelope{
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
		Data: &snapshotPayload{
			Symbol:        snap.Symbol,
			Name:          snap.Name,
			Sector:        snap.Sector,
			Exchange:      snap.Exchange,
			MarketCap:     floatPtr(snap.MarketCap),
			LastPrice:     floatPtr(snap.LastPrice),
			AverageVolume: floatPtr(snap.AverageVolume),
			DollarVolume:  floatPtr(snap.DollarVolume),
			FloatShares:   floatPtr(snap.FloatShares),
			BidAskSpread:  floatPtr(snap.BidAskSpread),
		},
	}
	raw, err := sonic.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	return errors.Wrap(os.WriteFile(c.path(snap.Symbol), raw, 0o644), "write snapshot")
}

func floatPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatVal(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
