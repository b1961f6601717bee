package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"equity_bot/internal/helper"
	"equity_bot/internal/metrics"
	"equity_bot/internal/models"
	analytics "equity_bot/internal/modules/analytics/service"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	postgres "equity_bot/internal/modules/postgres/service"
	strategy "equity_bot/internal/modules/strategy/service"
	universe "equity_bot/internal/modules/universe/service"
	"equity_bot/internal/notify"
	"equity_bot/pkg/logger"
	"equity_bot/pkg/tracing"
)

const (
	dailyInterval = "1d"

	// defaultFreshnessDays — окно актуальности: сигналы старше не
	// считаются находками текущего скана.
	defaultFreshnessDays = 7

	// defaultHistoryYears — глубина прогрева ценового кэша.
	defaultHistoryYears = 2
)

// ScanState отмечает момент последнего скана для ручек здоровья.
type ScanState interface {
	TouchScan(at time.Time)
}

// ScanRequest — параметры одного прогона.
type ScanRequest struct {
	// Явный список символов; пустой = сид-кандидаты из конфига.
	Symbols        []string
	IncludeRussell bool
	Limit          int
	// Persist включает снапшот вселенной на диске и запись прогона в БД.
	Persist bool
}

// ScanOutcome — итог прогона: вселенная, сигналы и план позиций.
type ScanOutcome struct {
	ID         uuid.UUID // uuid.Nil, когда персистентность выключена
	StartedAt  time.Time
	FinishedAt time.Time

	CandidateCount int
	Universe       []models.SymbolSnapshot
	WarmupFailed   int

	Raw         []models.Signal // свежие сигналы стратегий до агрегации
	Signals     []models.Signal // агрегированные, с оверлеями
	Allocations []models.PositionAllocation
	Regime      analytics.MarketRegimeSnapshot
}

// Scanner гоняет полный пайплайн скана: вселенная -> прогрев ->
// стратегии -> агрегация -> оверлеи -> сайзинг -> персистентность и
// уведомления.
type Scanner struct {
	cfg        *config.Config
	warmuper   *marketdata.Warmuper
	strategies []strategy.Strategy
	aggregator *strategy.SignalAggregator
	regime     *analytics.RegimeAnalyzer
	sizer      *portfolio.PositionSizer
	builder    *universe.Builder
	store      *postgres.Store
	notifier   notify.Notifier
	state      ScanState

	now           func() time.Time
	freshnessDays int
	historyYears  int
}

// *Scanner для fx.
func NewScanner(
	cfg *config.Config,
	warmuper *marketdata.Warmuper,
	strategies []strategy.Strategy,
	aggregator *strategy.SignalAggregator,
	regime *analytics.RegimeAnalyzer,
	sizer *portfolio.PositionSizer,
	builder *universe.Builder,
	store *postgres.Store,
	notifier notify.Notifier,
	state ScanState,
) *Scanner {
	return &Scanner{
		cfg:           cfg,
		warmuper:      warmuper,
		strategies:    strategies,
		aggregator:    aggregator,
		regime:        regime,
		sizer:         sizer,
		builder:       builder,
		store:         store,
		notifier:      notifier,
		state:         state,
		now:           time.Now,
		freshnessDays: defaultFreshnessDays,
		historyYears:  defaultHistoryYears,
	}
}

func (s *Scanner) Run(ctx context.Context, req ScanRequest) (*ScanOutcome, error) {
	span, ctx := tracing.StartSpan(ctx, "scan")
	defer span.Finish()

	outcome, err := s.run(ctx, req)
	if err != nil {
		metrics.ScanRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ScanRuns.WithLabelValues("ok").Inc()
	return outcome, nil
}

func (s *Scanner) run(ctx context.Context, req ScanRequest) (*ScanOutcome, error) {
	started := s.now()

	candidates := s.candidates(req)
	if len(candidates) == 0 {
		return nil, errors.New("no candidate symbols to scan")
	}
	logger.Info("scan started: %d candidates", len(candidates))

	screened, err := s.builder.BuildUniverse(ctx, candidates, started, req.Persist)
	if err != nil {
		return nil, errors.Wrap(err, "build universe")
	}

	symbols := make([]string, len(screened))
	sectorMap := make(map[string]string, len(screened))
	for i, snap := range screened {
		symbols[i] = snap.Symbol
		sectorMap[snap.Symbol] = snap.Sector
	}

	batch := s.warmuper.WarmUp(ctx, symbols,
		started.AddDate(-s.historyYears, 0, 0), started, dailyInterval)

	var raw []models.Signal
	earnings := make(map[string]analytics.EarningsSignal, len(screened))
	for _, snap := range screened {
		series := batch.Results[snap.Symbol]
		if series == nil {
			continue
		}
		fundamentals := marketdata.LoadFundamentals(s.cfg.DataDir, snap.Symbol)
		marketdata.EnrichSeries(series, 0, 0, fundamentals)
		earnings[snap.Symbol] = analytics.ComputeEarningsSignal(fundamentals)

		for _, strat := range s.strategies {
			signals, err := strat.GenerateSignals(snap.Symbol, series)
			if err != nil {
				logger.Warn("strategy %s failed on %s: %v", strat.Name(), snap.Symbol, err)
				continue
			}
			raw = append(raw, signals...)
		}
	}

	fresh := s.freshSignals(raw, started)
	for _, sig := range fresh {
		metrics.SignalsEmitted.WithLabelValues(sig.Strategy, string(sig.Type)).Inc()
	}

	macro := s.regime.Current(ctx)

	aggregated := s.aggregator.Aggregate(fresh)
	final := make([]models.Signal, 0, len(aggregated))
	for _, sig := range aggregated {
		earn, ok := earnings[sig.Symbol]
		if !ok {
			earn = analytics.ComputeEarningsSignal(nil)
		}
		final = append(final, applyOverlays(sig, macro, earn))
		metrics.SignalsEmitted.WithLabelValues(sig.Strategy, string(sig.Type)).Inc()
	}

	allocations := s.sizer.SizePositions(sizeCandidates(fresh), s.cfg.Backtest.InitialCapital, sectorMap)

	outcome := &ScanOutcome{
		StartedAt:      started,
		FinishedAt:     s.now(),
		CandidateCount: len(candidates),
		Universe:       screened,
		WarmupFailed:   len(batch.Failed),
		Raw:            fresh,
		Signals:        final,
		Allocations:    allocations,
		Regime:         macro,
	}

	if req.Persist && s.store.Enabled() {
		id, err := s.store.SaveScan(ctx, postgres.ScanRecord{
			StartedAt:      outcome.StartedAt,
			FinishedAt:     outcome.FinishedAt,
			SymbolsScanned: len(screened),
			Regime:         macro.Name,
			RegimeScore:    macro.Score,
			Notes:          macro.Notes,
		}, final)
		if err != nil {
			logger.Warn("scan results not persisted: %v", err)
		} else {
			outcome.ID = id
		}
	}

	if s.state != nil {
		s.state.TouchScan(outcome.FinishedAt)
	}

	logger.Info("scan finished: universe %d, signals %d, allocations %d, regime %s",
		len(screened), len(final), len(allocations), macro.Name)
	s.announce(outcome)
	return outcome, nil
}

// candidates — список для скрининга: явные символы из запроса или
// сид-кандидаты (плюс Russell 2000 по флагу).
func (s *Scanner) candidates(req ScanRequest) []string {
	var list []string
	if len(req.Symbols) > 0 {
		seen := make(map[string]bool, len(req.Symbols))
		for _, sym := range req.Symbols {
			sym = helper.NormSymbol(sym)
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			list = append(list, sym)
		}
	} else {
		var extras []string
		if req.IncludeRussell {
			extras = append(extras, universe.RussellPath(s.cfg.DataDir))
		}
		list = universe.LoadSeedCandidates(s.cfg.Universe.SeedFile, extras...)
	}
	if req.Limit > 0 && len(list) > req.Limit {
		list = list[:req.Limit]
	}
	return list
}

// freshSignals отсекает сигналы старше окна свежести. Даты сигналов —
// полуночные даты баров, поэтому окно считается по календарным дням.
func (s *Scanner) freshSignals(signals []models.Signal, asOf time.Time) []models.Signal {
	cutoff := models.Day(asOf).AddDate(0, 0, -s.freshnessDays)
	out := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Date.Before(cutoff) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// sizeCandidates — лучший BUY на символ: сайзер резолвит цену по
// скалярным метаданным исходных сигналов, списки агрегата ему не годятся.
func sizeCandidates(signals []models.Signal) []models.Signal {
	best := make(map[string]models.Signal)
	var order []string
	for _, sig := range signals {
		if sig.Type != models.SignalBuy {
			continue
		}
		cur, seen := best[sig.Symbol]
		if !seen {
			order = append(order, sig.Symbol)
			best[sig.Symbol] = sig
			continue
		}
		if sig.Confidence > cur.Confidence {
			best[sig.Symbol] = sig
		}
	}
	out := make([]models.Signal, 0, len(order))
	for _, sym := range order {
		out = append(out, best[sym])
	}
	return out
}

// applyOverlays масштабирует уверенность агрегата макро-режимом и
// качеством отчётности, сохраняя разложение в метаданных.
func applyOverlays(sig models.Signal, macro analytics.MarketRegimeSnapshot, earn analytics.EarningsSignal) models.Signal {
	macroMult := macro.Multiplier
	earnMult := earn.Multiplier()
	final := sig.Confidence * macroMult * earnMult

	sig.Meta = models.OverlayMeta{
		Inner: sig.Meta,
		Macro: models.MacroOverlay{
			Regime:     macro.Name,
			Score:      macro.Score,
			Multiplier: macroMult,
			Factors:    macro.Factors,
			Notes:      macro.Notes,
			UpdatedAt:  macro.UpdatedAt,
		},
		Earnings: earningsOverlay(earn),
		Components: models.ConfidenceComponents{
			Base:               sig.Confidence,
			MacroMultiplier:    macroMult,
			EarningsMultiplier: earnMult,
			Final:              final,
		},
	}
	sig.Confidence = final
	return sig
}

// earningsOverlay — метаданные оценки отчётности; nil, когда метрик не
// было и множитель нейтрален.
func earningsOverlay(earn analytics.EarningsSignal) models.MapMeta {
	meta := earn.Metadata()
	if len(meta) <= 1 {
		return nil
	}
	out := make(models.MapMeta, len(meta))
	for key, value := range meta {
		if key == "confidence_multiplier" {
			key = "multiplier"
		}
		out[key] = value
	}
	return out
}

func (s *Scanner) announce(out *ScanOutcome) {
	if s.notifier == nil {
		return
	}
	s.notifier.Sendf("🔍 SCAN | universe=%d | signals=%d | sized=%d | regime=%s",
		len(out.Universe), len(out.Signals), len(out.Allocations), out.Regime.Name)
	for _, alloc := range out.Allocations {
		s.notifier.Sendf("🔔 [%s] BUY %d @ %.2f | stop=%.2f conf=%.2f sector=%s",
			alloc.Symbol, alloc.Shares, alloc.EntryPrice, alloc.StopPrice, alloc.Confidence, alloc.Sector)
	}
}
