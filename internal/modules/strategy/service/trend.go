package service

import (
	"fmt"
	"math"

	"equity_bot/internal/helper"
	"equity_bot/internal/indicators"
	"equity_bot/internal/models"
)

type TrendParams struct {
	FastSpan      int
	SlowSpan      int
	ATRPeriod     int
	ATRMultiplier float64
	MinBars       int
}

func DefaultTrendParams() TrendParams {
	return TrendParams{
		FastSpan:      10,
		SlowSpan:      30,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
		MinBars:       60,
	}
}

// TrendStrategy — кроссовер быстрой/медленной EMA со стопом по ATR.
// Сигналит только там, где обе EMA и ATR уже прогреты на текущем и
// предыдущем баре.
type TrendStrategy struct {
	params TrendParams
}

func NewTrend(params TrendParams) *TrendStrategy {
	return &TrendStrategy{params: params}
}

func (s *TrendStrategy) Name() string { return models.StrategyTrend }

func (s *TrendStrategy) RequiredFields() []string {
	return []string{models.FieldClose, models.FieldHigh, models.FieldLow}
}

func (s *TrendStrategy) GenerateSignals(symbol string, series *models.PriceSeries) ([]models.Signal, error) {
	if series.Len() == 0 {
		return nil, nil
	}
	if err := checkRequired(s.Name(), series, s.RequiredFields()); err != nil {
		return nil, err
	}

	p := s.params
	bars := sortedBars(series)
	minLen := p.MinBars
	if p.SlowSpan+p.ATRPeriod > minLen {
		minLen = p.SlowSpan + p.ATRPeriod
	}
	if len(bars) < minLen {
		return nil, nil
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	fast, err := indicators.EMA(closes, p.FastSpan)
	if err != nil {
		return nil, fmt.Errorf("trend fast ema: %w", err)
	}
	slow, err := indicators.EMA(closes, p.SlowSpan)
	if err != nil {
		return nil, fmt.Errorf("trend slow ema: %w", err)
	}
	atr, err := indicators.ATR(highs, lows, closes, p.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("trend atr: %w", err)
	}

	// оба бара кроссовера должны быть за пределами прогрева всех трёх рядов
	firstValid := indicators.FirstValidEMA(p.SlowSpan)
	if fv := indicators.FirstValidEMA(p.FastSpan); fv > firstValid {
		firstValid = fv
	}
	if fv := indicators.FirstValidATR(p.ATRPeriod); fv > firstValid {
		firstValid = fv
	}

	var signals []models.Signal
	for i := firstValid + 1; i < len(bars); i++ {
		crossUp := fast[i] > slow[i] && fast[i-1] <= slow[i-1]
		crossDown := fast[i] < slow[i] && fast[i-1] >= slow[i-1]

		switch {
		case crossUp && closes[i] > fast[i]:
			confidence := helper.Clamp01((fast[i] - slow[i]) / slow[i] * 5)
			signals = append(signals, models.Signal{
				Symbol:     symbol,
				Date:       bars[i].Date,
				Strategy:   s.Name(),
				Type:       models.SignalBuy,
				Confidence: confidence,
				Meta: models.TrendMeta{
					FastEMA:   fast[i],
					SlowEMA:   slow[i],
					ATR:       atr[i],
					StopPrice: closes[i] - p.ATRMultiplier*atr[i],
				},
			})
		case crossDown:
			confidence := helper.Clamp01((slow[i] - fast[i]) / slow[i] * 5)
			signals = append(signals, models.Signal{
				Symbol:     symbol,
				Date:       bars[i].Date,
				Strategy:   s.Name(),
				Type:       models.SignalSell,
				Confidence: confidence,
				Meta: models.TrendMeta{
					FastEMA:   fast[i],
					SlowEMA:   slow[i],
					ATR:       math.NaN(),
					StopPrice: math.NaN(),
				},
			})
		}
	}

	return signals, nil
}
