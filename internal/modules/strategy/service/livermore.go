package service

import (
	"math"

	"equity_bot/internal/indicators"
	"equity_bot/internal/models"
)

type LivermoreParams struct {
	ConsolidationWindow int
	MaxRangePct         float64
	BreakoutThreshold   float64
	VolumeMultiplier    float64
	MinBars             int
}

func DefaultLivermoreParams() LivermoreParams {
	return LivermoreParams{
		ConsolidationWindow: 20,
		MaxRangePct:         0.15,
		BreakoutThreshold:   0.02,
		VolumeMultiplier:    1.3,
		MinBars:             40,
	}
}

// LivermoreStrategy — выход из узкой консолидации вверх на объёме.
// Границы канала берутся по окну, сдвинутому на бар назад, чтобы пробойный
// бар сам не расширял канал.
type LivermoreStrategy struct {
	params LivermoreParams
}

func NewLivermore(params LivermoreParams) *LivermoreStrategy {
	return &LivermoreStrategy{params: params}
}

func (s *LivermoreStrategy) Name() string { return models.StrategyLivermore }

func (s *LivermoreStrategy) RequiredFields() []string {
	return []string{models.FieldClose, models.FieldHigh, models.FieldLow, models.FieldVolume}
}

func (s *LivermoreStrategy) GenerateSignals(symbol string, series *models.PriceSeries) ([]models.Signal, error) {
	if series.Len() == 0 {
		return nil, nil
	}
	if err := checkRequired(s.Name(), series, s.RequiredFields()); err != nil {
		return nil, err
	}

	p := s.params
	bars := sortedBars(series)
	minLen := p.MinBars
	if p.ConsolidationWindow+5 > minLen {
		minLen = p.ConsolidationWindow + 5
	}
	if len(bars) < minLen {
		return nil, nil
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	rollingHigh := indicators.RollingMax(highs, p.ConsolidationWindow, p.ConsolidationWindow)
	rollingLow := indicators.RollingMin(lows, p.ConsolidationWindow, p.ConsolidationWindow)
	avgVolume := indicators.RollingMean(volumes, p.ConsolidationWindow, 5)

	var signals []models.Signal
	for idx := p.ConsolidationWindow; idx < len(bars); idx++ {
		windowHigh := rollingHigh[idx-1]
		windowLow := rollingLow[idx-1]
		if math.IsNaN(windowHigh) || math.IsNaN(windowLow) || windowHigh <= windowLow {
			continue
		}

		priceRange := windowHigh - windowLow
		if priceRange <= 0 {
			continue
		}

		rangePct := priceRange / windowLow
		if rangePct > p.MaxRangePct {
			continue
		}

		breakoutPrice := closes[idx]
		if breakoutPrice < windowHigh*(1+p.BreakoutThreshold) {
			continue
		}

		volumeAvg := avgVolume[idx-1]
		if math.IsNaN(volumeAvg) || volumeAvg <= 0 {
			continue
		}
		if volumes[idx] < volumeAvg*p.VolumeMultiplier {
			continue
		}

		signals = append(signals, models.Signal{
			Symbol:     symbol,
			Date:       bars[idx].Date,
			Strategy:   s.Name(),
			Type:       models.SignalBuy,
			Confidence: 1 - math.Min(1.0, rangePct/p.MaxRangePct),
			Meta: models.RangeMeta{
				ConsolidationHigh: windowHigh,
				ConsolidationLow:  windowLow,
				RangePct:          rangePct,
				BreakoutPrice:     breakoutPrice,
				BreakoutVolume:    volumes[idx],
				AvgVolume:         volumeAvg,
			},
		})
	}

	return signals, nil
}
