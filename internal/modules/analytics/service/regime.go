package service

import (
	"context"
	"math"
	"sync"
	"time"

	marketdata "equity_bot/internal/modules/marketdata/service"
	"equity_bot/pkg/logger"
)

// Ликвидные прокси риска, по которым оценивается режим.
const (
	vixSymbol    = "^VIX"
	creditSymbol = "HYG"
	bondSymbol   = "LQD"
	marketSymbol = "SPY"

	macroLookbackDays = 120
	trendLookbackBars = 20

	defaultRegimeCache = 15 * time.Minute
)

// Имена режимов.
const (
	RegimeRiskOn  = "risk_on"
	RegimeNeutral = "neutral"
	RegimeRiskOff = "risk_off"
)

// MarketRegimeSnapshot — текущая оценка макро-режима.
type MarketRegimeSnapshot struct {
	Name       string
	Score      float64
	Multiplier float64
	Factors    map[string]float64
	UpdatedAt  time.Time
	Notes      string
}

// RegimeInputs — замыкающие цены макро-прокси за окно наблюдения.
type RegimeInputs struct {
	VIX    []float64
	Credit []float64 // высокодоходные облигации (HYG)
	Bonds  []float64 // инвестиционный грейд (LQD)
	Market []float64 // широкий рынок (SPY)
}

// ComputeRegime сводит прокси риска в один балл: тренд рынка за
// 20 баров, отношение HYG/LQD и уровень VIX с весами 0.35/0.35/0.30.
func ComputeRegime(inputs RegimeInputs, now time.Time) MarketRegimeSnapshot {
	if len(inputs.VIX) == 0 || len(inputs.Credit) == 0 || len(inputs.Bonds) == 0 || len(inputs.Market) == 0 {
		return NeutralRegime("Macro series returned empty data", now)
	}

	vix := inputs.VIX[len(inputs.VIX)-1]
	creditLast := inputs.Credit[len(inputs.Credit)-1]
	bondLast := inputs.Bonds[len(inputs.Bonds)-1]
	marketTrend := tailChange(inputs.Market, trendLookbackBars)

	creditRatio := 1.0
	if bondLast != 0 {
		creditRatio = creditLast / bondLast
	}

	vixScore := clamp01((35.0 - vix) / 35.0)
	creditScore := clamp01((creditRatio - 0.94) / 0.06)
	trendScore := clamp01((marketTrend + 0.04) / 0.10)

	composite := clamp01(0.35*trendScore + 0.35*creditScore + 0.30*vixScore)

	name := RegimeRiskOff
	notes := "Defensive conditions detected; consider throttling exposure."
	switch {
	case composite >= 0.65:
		name = RegimeRiskOn
		notes = "Equities trending, credit supportive, volatility subdued."
	case composite >= 0.45:
		name = RegimeNeutral
		notes = "Mixed macro posture; maintain risk but tighten selections."
	}

	return MarketRegimeSnapshot{
		Name:       name,
		Score:      round3(composite),
		Multiplier: round3(0.55 + 0.45*composite),
		Factors: map[string]float64{
			"vix":            round2(vix),
			"vix_score":      round3(vixScore),
			"credit_ratio":   round3(creditRatio),
			"credit_score":   round3(creditScore),
			"spy_20d_return": round3(marketTrend),
			"trend_score":    round3(trendScore),
		},
		UpdatedAt: now.UTC(),
		Notes:     notes,
	}
}

// NeutralRegime — запасной снимок, когда макро-данные недоступны.
func NeutralRegime(reason string, now time.Time) MarketRegimeSnapshot {
	return MarketRegimeSnapshot{
		Name:       RegimeNeutral,
		Score:      0.5,
		Multiplier: 0.8,
		Factors:    map[string]float64{},
		UpdatedAt:  now.UTC(),
		Notes:      reason,
	}
}

// tailChange — относительное изменение за periods баров от конца ряда;
// короткий ряд и нулевая база дают 0.
func tailChange(closes []float64, periods int) float64 {
	if len(closes) <= periods {
		return 0
	}
	recent := closes[len(closes)-1]
	past := closes[len(closes)-periods]
	if past == 0 {
		return 0
	}
	return (recent - past) / math.Abs(past)
}

// RegimeAnalyzer считает макро-режим по четырём прокси и кэширует
// результат, чтобы не дёргать источник данных на каждый скан.
type RegimeAnalyzer struct {
	provider marketdata.PriceProvider
	cacheFor time.Duration
	now      func() time.Time // подменяется в тестах

	mu       sync.Mutex
	cached   MarketRegimeSnapshot
	cachedAt time.Time
}

// *RegimeAnalyzer для fx.
func NewRegimeAnalyzer(provider marketdata.PriceProvider) *RegimeAnalyzer {
	return &RegimeAnalyzer{provider: provider, cacheFor: defaultRegimeCache, now: time.Now}
}

// Current возвращает снимок режима, пересчитывая устаревший кэш.
// Любой сбой макро-данных деградирует в нейтральный режим, не роняя скан.
func (a *RegimeAnalyzer) Current(ctx context.Context) MarketRegimeSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if !a.cachedAt.IsZero() && now.Sub(a.cachedAt) < a.cacheFor {
		return a.cached
	}

	snapshot := a.computeSnapshot(ctx, now)
	a.cached = snapshot
	a.cachedAt = now
	return snapshot
}

func (a *RegimeAnalyzer) computeSnapshot(ctx context.Context, now time.Time) MarketRegimeSnapshot {
	start := now.AddDate(0, 0, -macroLookbackDays)

	var inputs RegimeInputs
	for _, probe := range []struct {
		symbol string
		dest   *[]float64
	}{
		{vixSymbol, &inputs.VIX},
		{creditSymbol, &inputs.Credit},
		{bondSymbol, &inputs.Bonds},
		{marketSymbol, &inputs.Market},
	} {
		closes, err := a.fetchCloses(ctx, probe.symbol, start, now)
		if err != nil {
			logger.Warn("macro series %s unavailable: %v", probe.symbol, err)
			return NeutralRegime("Unable to retrieve macro series", now)
		}
		*probe.dest = closes
	}
	return ComputeRegime(inputs, now)
}

func (a *RegimeAnalyzer) fetchCloses(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	result, err := a.provider.PriceHistory(ctx, marketdata.PriceRequest{
		Symbol:   symbol,
		Start:    start,
		End:      end,
		Interval: "1d",
	})
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, result.Series.Len())
	for _, bar := range result.Series.Bars {
		closes = append(closes, bar.Close)
	}
	return closes, nil
}
