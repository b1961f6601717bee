package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
	analytics "equity_bot/internal/modules/analytics/service"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	postgres "equity_bot/internal/modules/postgres/service"
	strategy "equity_bot/internal/modules/strategy/service"
	universe "equity_bot/internal/modules/universe/service"
	"equity_bot/pkg/logger"
)

var scanNow = time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

func mar(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

// Провайдер отвечает только за символы из series; остальные (включая
// макро-прокси режима) получают ошибку, что роняет режим в нейтральный.
type scanStubProvider struct {
	series map[string]*models.PriceSeries
}

func (p *scanStubProvider) PriceHistory(_ context.Context, req marketdata.PriceRequest) (marketdata.PriceResult, error) {
	series, ok := p.series[req.Symbol]
	if !ok {
		return marketdata.PriceResult{}, fmt.Errorf("no data for %s", req.Symbol)
	}
	return marketdata.PriceResult{Series: series}, nil
}

type scanStubSource struct {
	snaps map[string]models.SymbolSnapshot
}

func (s *scanStubSource) Snapshot(_ context.Context, symbol string) (models.SymbolSnapshot, error) {
	snap, ok := s.snaps[symbol]
	if !ok {
		return models.SymbolSnapshot{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return snap, nil
}

type scanStubStrategy struct {
	name    string
	signals map[string][]models.Signal
	err     error
}

func (s *scanStubStrategy) Name() string             { return s.name }
func (s *scanStubStrategy) RequiredFields() []string { return nil }

func (s *scanStubStrategy) GenerateSignals(symbol string, _ *models.PriceSeries) ([]models.Signal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.signals[symbol], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) Sendf(format string, args ...any) {
	n.Send(fmt.Sprintf(format, args...))
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type recordingState struct {
	mu      sync.Mutex
	touched []time.Time
}

func (s *recordingState) TouchScan(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, at)
}

func (s *recordingState) touches() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.touched...)
}

func scanSnap(symbol string, marketCap float64) models.SymbolSnapshot {
	return models.SymbolSnapshot{
		Symbol:        symbol,
		Name:          symbol + " Inc",
		Sector:        "Industrials",
		Exchange:      "NASDAQ",
		MarketCap:     marketCap,
		LastPrice:     40,
		AverageVolume: 1_000_000,
		DollarVolume:  5_000_000,
		FloatShares:   20_000_000,
		BidAskSpread:  0.01,
		FetchedAt:     scanNow,
	}
}

func scanSeries(symbol string) *models.PriceSeries {
	bars := make([]models.PriceBar, 0, 30)
	for i := 0; i < 30; i++ {
		bars = append(bars, models.PriceBar{
			Date:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   40, High: 41, Low: 39, Close: 40,
			Volume: 1_000_000,
		})
	}
	return models.NewSeries(symbol, bars...)
}

func scanSig(symbol, strat string, typ models.SignalType, date time.Time, conf float64, meta models.SignalMeta) models.Signal {
	return models.Signal{Symbol: symbol, Strategy: strat, Type: typ, Date: date, Confidence: conf, Meta: meta}
}

type scanFixture struct {
	scanner  *Scanner
	notifier *recordingNotifier
	state    *recordingState
	cfg      *config.Config
}

func newScanFixture(t *testing.T, strategies []strategy.Strategy, provider *scanStubProvider, source *scanStubSource) *scanFixture {
	t.Helper()
	require.NoError(t, logger.Init(true))

	cfg := &config.Config{
		DataDir:       t.TempDir(),
		WarmupWorkers: 2,
		Backtest:      config.BacktestConfig{InitialCapital: 100_000},
		Universe: config.UniverseConfig{
			MarketCapMin:    50_000_000,
			MarketCapMax:    2_000_000_000,
			MinDollarVolume: 1_000_000,
			CacheTTLDays:    7,
		},
	}

	notifier := &recordingNotifier{}
	state := &recordingState{}
	cache := universe.NewSnapshotCache(filepath.Join(t.TempDir(), "cache"), cfg.Universe.CacheTTLDays)

	scanner := NewScanner(
		cfg,
		marketdata.NewWarmuper(provider, cfg),
		strategies,
		strategy.NewAggregator(strategy.DefaultAggregationParams()),
		analytics.NewRegimeAnalyzer(provider),
		portfolio.NewSizer(portfolio.RiskParams{MaxPositions: 4, IndividualStop: 0.08}),
		universe.NewBuilder(source, cache, cfg),
		postgres.NewStore(nil),
		notifier,
		state,
	)
	scanner.now = func() time.Time { return scanNow }

	return &scanFixture{scanner: scanner, notifier: notifier, state: state, cfg: cfg}
}

func TestScannerRunPipeline(t *testing.T) {
	provider := &scanStubProvider{series: map[string]*models.PriceSeries{
		"PLUG": scanSeries("PLUG"),
		"NVAX": scanSeries("NVAX"),
		"FCEL": scanSeries("FCEL"),
	}}
	source := &scanStubSource{snaps: map[string]models.SymbolSnapshot{
		"PLUG": scanSnap("PLUG", 500_000_000),
		"NVAX": scanSnap("NVAX", 300_000_000),
		"FCEL": scanSnap("FCEL", 800_000_000),
		"GEVO": scanSnap("GEVO", 400_000_000),
	}}
	strategies := []strategy.Strategy{
		&scanStubStrategy{name: "trend", signals: map[string][]models.Signal{
			"PLUG": {scanSig("PLUG", "trend", models.SignalBuy, mar(14), 0.8, models.MapMeta{"entry_price": 40})},
			// Ровно на границе окна свежести: остаётся.
			"NVAX": {scanSig("NVAX", "trend", models.SignalSell, mar(8), 0.9, models.MapMeta{"price": 12})},
			// Двухнедельной давности: выбывает.
			"FCEL": {scanSig("FCEL", "trend", models.SignalBuy, mar(1), 0.9, models.MapMeta{"entry_price": 3})},
		}},
		&scanStubStrategy{name: "momentum", signals: map[string][]models.Signal{
			"PLUG": {scanSig("PLUG", "momentum", models.SignalBuy, mar(13), 0.6, models.MapMeta{"breakout_price": 41})},
		}},
		&scanStubStrategy{name: "broken", err: errors.New("indicator blew up")},
	}

	f := newScanFixture(t, strategies, provider, source)
	out, err := f.scanner.Run(context.Background(), ScanRequest{
		Symbols: []string{"plug", "nvax", "fcel", "gevo"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, out.CandidateCount)
	assert.Equal(t, uuid.Nil, out.ID)
	assert.Equal(t, analytics.RegimeNeutral, out.Regime.Name)
	assert.Equal(t, 1, out.WarmupFailed)

	// Вселенная по возрастанию капитализации.
	require.Len(t, out.Universe, 4)
	got := make([]string, len(out.Universe))
	for i, snap := range out.Universe {
		got[i] = snap.Symbol
	}
	assert.Equal(t, []string{"NVAX", "GEVO", "PLUG", "FCEL"}, got)

	// Свежие сырые сигналы: устаревший FCEL отброшен.
	require.Len(t, out.Raw, 3)
	assert.Equal(t, "NVAX", out.Raw[0].Symbol)
	assert.Equal(t, "PLUG", out.Raw[1].Symbol)
	assert.Equal(t, "PLUG", out.Raw[2].Symbol)

	require.Len(t, out.Signals, 2)
	nvax, plug := out.Signals[0], out.Signals[1]

	assert.Equal(t, models.SignalSell, nvax.Type)
	assert.Equal(t, models.StrategyAggregated, nvax.Strategy)
	assert.InDelta(t, 0.9*0.8, nvax.Confidence, 1e-9)

	assert.Equal(t, models.SignalBuy, plug.Type)
	assert.Equal(t, mar(14), plug.Date)
	assert.InDelta(t, 0.7*0.8, plug.Confidence, 1e-9)

	meta, ok := plug.Meta.(models.OverlayMeta)
	require.True(t, ok)
	assert.Equal(t, analytics.RegimeNeutral, meta.Macro.Regime)
	assert.Equal(t, 0.5, meta.Macro.Score)
	assert.Equal(t, 0.8, meta.Macro.Multiplier)
	assert.Nil(t, meta.Earnings) // фундаментальных метрик не было
	assert.InDelta(t, 0.7, meta.Components.Base, 1e-9)
	assert.Equal(t, 0.8, meta.Components.MacroMultiplier)
	assert.Equal(t, 1.0, meta.Components.EarningsMultiplier)
	assert.InDelta(t, 0.7*0.8, meta.Components.Final, 1e-9)

	inner, ok := meta.Inner.(models.AggregateMeta)
	require.True(t, ok)
	assert.Equal(t, []string{"trend", "momentum"}, inner.Strategies)
	assert.Equal(t, []float64{0.8, 0.6}, inner.Confidences)
	assert.Equal(t, []float64{40}, inner.Values["entry_price"])

	// Сайзится лучший сырой BUY на символ, не агрегат.
	require.Len(t, out.Allocations, 1)
	alloc := out.Allocations[0]
	assert.Equal(t, "PLUG", alloc.Symbol)
	assert.Equal(t, 625, alloc.Shares)
	assert.Equal(t, 40.0, alloc.EntryPrice)
	assert.InDelta(t, 36.8, alloc.StopPrice, 1e-9)
	assert.Equal(t, 0.8, alloc.Confidence)
	assert.Equal(t, "industrials", alloc.Sector)
	assert.Equal(t, 25_000.0, alloc.Allocation)

	touches := f.state.touches()
	require.Len(t, touches, 1)
	assert.True(t, touches[0].Equal(scanNow))

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "🔍 SCAN | universe=4 | signals=2 | sized=1 | regime=neutral", msgs[0])
	assert.Equal(t, "🔔 [PLUG] BUY 625 @ 40.00 | stop=36.80 conf=0.80 sector=industrials", msgs[1])

	// Без Persist срез вселенной на диск не пишется.
	_, err = os.Stat(filepath.Join(f.cfg.DataDir, "universe"))
	assert.True(t, os.IsNotExist(err))
}

func TestScannerRunPersistWritesUniverseSnapshot(t *testing.T) {
	provider := &scanStubProvider{series: map[string]*models.PriceSeries{"PLUG": scanSeries("PLUG")}}
	source := &scanStubSource{snaps: map[string]models.SymbolSnapshot{"PLUG": scanSnap("PLUG", 500_000_000)}}
	f := newScanFixture(t, []strategy.Strategy{&scanStubStrategy{name: "trend"}}, provider, source)

	out, err := f.scanner.Run(context.Background(), ScanRequest{Symbols: []string{"PLUG"}, Persist: true})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, out.ID) // БД не подключена, прогон не сохраняется
	assert.Empty(t, out.Signals)

	entries, err := os.ReadDir(filepath.Join(f.cfg.DataDir, "universe"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "universe_2024-03-15")
}

func TestScannerRunNoCandidates(t *testing.T) {
	f := newScanFixture(t, nil, &scanStubProvider{}, &scanStubSource{})
	out, err := f.scanner.Run(context.Background(), ScanRequest{Symbols: []string{" ", ""}})
	assert.Nil(t, out)
	assert.EqualError(t, err, "no candidate symbols to scan")
}

func TestScannerCandidates(t *testing.T) {
	sc := &Scanner{cfg: &config.Config{}}

	got := sc.candidates(ScanRequest{Symbols: []string{" plug ", "PLUG", "nvax", ""}})
	assert.Equal(t, []string{"PLUG", "NVAX"}, got)

	got = sc.candidates(ScanRequest{Symbols: []string{"a", "b", "c"}, Limit: 2})
	assert.Equal(t, []string{"A", "B"}, got)

	// Без явных символов — сид-лист по умолчанию.
	got = sc.candidates(ScanRequest{})
	assert.Equal(t, universe.DefaultCandidates, got)

	got = sc.candidates(ScanRequest{Limit: 5})
	assert.Equal(t, universe.DefaultCandidates[:5], got)
}

func TestApplyOverlaysDecomposition(t *testing.T) {
	macro := analytics.MarketRegimeSnapshot{
		Name:       analytics.RegimeRiskOn,
		Score:      0.85,
		Multiplier: 1.1,
		Factors:    map[string]float64{"vix": 1.0},
		Notes:      "trend up",
		UpdatedAt:  scanNow,
	}
	earn := analytics.ComputeEarningsSignal(map[string]float64{"earnings_signal_score": 0.62})
	sig := scanSig("PLUG", models.StrategyAggregated, models.SignalBuy, mar(14), 0.7, models.MapMeta{"entry_price": 40})

	got := applyOverlays(sig, macro, earn)
	assert.InDelta(t, 0.7*1.1*0.829, got.Confidence, 1e-9)

	meta, ok := got.Meta.(models.OverlayMeta)
	require.True(t, ok)
	assert.Equal(t, analytics.RegimeRiskOn, meta.Macro.Regime)
	assert.Equal(t, 1.1, meta.Macro.Multiplier)
	assert.Equal(t, "trend up", meta.Macro.Notes)

	require.NotNil(t, meta.Earnings)
	assert.Equal(t, 0.829, meta.Earnings["multiplier"])
	assert.Equal(t, 0.62, meta.Earnings["score"])
	_, renamed := meta.Earnings["confidence_multiplier"]
	assert.False(t, renamed)

	assert.InDelta(t, 0.7, meta.Components.Base, 1e-9)
	assert.Equal(t, 0.829, meta.Components.EarningsMultiplier)

	// Обёртка прозрачна для цепочки резолва цены.
	price, ok := models.ResolveMetaPrice(got.Meta)
	require.True(t, ok)
	assert.Equal(t, 40.0, price)
}

func TestSizeCandidatesBestBuyPerSymbol(t *testing.T) {
	signals := []models.Signal{
		scanSig("PLUG", "trend", models.SignalBuy, mar(14), 0.6, nil),
		scanSig("NVAX", "trend", models.SignalSell, mar(14), 0.9, nil),
		scanSig("PLUG", "momentum", models.SignalBuy, mar(13), 0.8, nil),
		scanSig("BLDP", "trend", models.SignalBuy, mar(14), 0.5, nil),
	}

	got := sizeCandidates(signals)
	require.Len(t, got, 2)
	assert.Equal(t, "PLUG", got[0].Symbol)
	assert.Equal(t, 0.8, got[0].Confidence)
	assert.Equal(t, "BLDP", got[1].Symbol)
}
