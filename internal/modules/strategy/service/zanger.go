package service

import (
	"math"

	"equity_bot/internal/helper"
	"equity_bot/internal/indicators"
	"equity_bot/internal/models"
)

type ZangerParams struct {
	CupLookback       int
	HandleMin         int
	HandleMax         int
	CupDepthMin       float64
	CupDepthMax       float64
	RecoveryThreshold float64
	PullbackMin       float64
	PullbackMax       float64
	BreakoutThreshold float64
	VolumeMultiplier  float64
	VolumeWindow      int
}

func DefaultZangerParams() ZangerParams {
	return ZangerParams{
		CupLookback:       120,
		HandleMin:         5,
		HandleMax:         15,
		CupDepthMin:       0.12,
		CupDepthMax:       0.35,
		RecoveryThreshold: 0.85,
		PullbackMin:       0.05,
		PullbackMax:       0.15,
		BreakoutThreshold: 0.02,
		VolumeMultiplier:  1.5,
		VolumeWindow:      20,
	}
}

// ZangerStrategy ищет пробой чашки с ручкой: глубокая база, ручка с
// неглубоким откатом, восстановление к левому пику и выход выше правого
// пика на повышенном объёме.
type ZangerStrategy struct {
	params ZangerParams
}

func NewZanger(params ZangerParams) *ZangerStrategy {
	return &ZangerStrategy{params: params}
}

func (s *ZangerStrategy) Name() string { return models.StrategyZanger }

func (s *ZangerStrategy) RequiredFields() []string {
	return []string{models.FieldClose, models.FieldVolume}
}

func (s *ZangerStrategy) GenerateSignals(symbol string, series *models.PriceSeries) ([]models.Signal, error) {
	if series.Len() == 0 {
		return nil, nil
	}
	if err := checkRequired(s.Name(), series, s.RequiredFields()); err != nil {
		return nil, err
	}

	p := s.params
	bars := sortedBars(series)
	filtered := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Close) || math.IsNaN(b.Volume) {
			continue
		}
		filtered = append(filtered, b)
	}
	if len(filtered) < p.CupLookback {
		return nil, nil
	}

	closes := make([]float64, len(filtered))
	volumes := make([]float64, len(filtered))
	for i, b := range filtered {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	avgVolume := indicators.RollingMean(volumes, p.VolumeWindow, 5)

	var signals []models.Signal
	for idx := p.CupLookback; idx < len(filtered); idx++ {
		winStart := idx - p.CupLookback

		// --- 1. ручка: последние HandleMax баров перед пробойным ---
		handleLo := idx - p.HandleMax
		if handleLo < winStart {
			handleLo = winStart
		}
		if idx-handleLo < p.HandleMin {
			continue
		}

		hhRel := helper.ArgMax(closes[handleLo:idx])
		hlRel := helper.ArgMin(closes[handleLo:idx])
		if hhRel < 0 || hlRel < 0 {
			continue
		}
		handleHighIdx := handleLo + hhRel
		handleHigh := closes[handleHighIdx]
		handleLow := closes[handleLo+hlRel]
		if handleHigh <= 0 {
			continue
		}

		pullback := (handleHigh - handleLow) / handleHigh
		if pullback < p.PullbackMin || pullback > p.PullbackMax {
			continue
		}

		// --- 2. чаша: от начала окна до первого бара ручки включительно ---
		cupHi := handleLo
		if cupHi-winStart+1 < p.HandleMin*2 {
			continue
		}

		bottomRel := helper.ArgMin(closes[winStart : cupHi+1])
		if bottomRel < 0 {
			continue
		}
		bottomIdx := winStart + bottomRel
		bottom := closes[bottomIdx]

		// --- 3. пики слева и справа от дна ---
		if handleHighIdx < bottomIdx {
			continue
		}
		lpRel := helper.ArgMax(closes[winStart : bottomIdx+1])
		rpRel := helper.ArgMax(closes[bottomIdx : handleHighIdx+1])
		if lpRel < 0 || rpRel < 0 {
			continue
		}
		leftPeakIdx := winStart + lpRel
		leftPeak := closes[leftPeakIdx]
		rightPeakIdx := bottomIdx + rpRel
		rightPeak := closes[rightPeakIdx]

		if leftPeak <= 0 || rightPeak <= 0 {
			continue
		}

		// --- 4. геометрия чаши ---
		depth := (leftPeak - bottom) / leftPeak
		if depth < p.CupDepthMin || depth > p.CupDepthMax {
			continue
		}
		if leftPeak == bottom {
			continue
		}
		recovery := (rightPeak - bottom) / (leftPeak - bottom)
		if recovery < p.RecoveryThreshold {
			continue
		}

		// --- 5. пробой с подтверждением объёмом ---
		breakoutPrice := closes[idx]
		if breakoutPrice < rightPeak*(1+p.BreakoutThreshold) {
			continue
		}

		avgVol := avgVolume[idx-1]
		if math.IsNaN(avgVol) || avgVol <= 0 {
			continue
		}
		if volumes[idx] < avgVol*p.VolumeMultiplier {
			continue
		}

		confidence := helper.Clamp01(0.6 + (recovery - p.RecoveryThreshold))
		signals = append(signals, models.Signal{
			Symbol:     symbol,
			Date:       filtered[idx].Date,
			Strategy:   s.Name(),
			Type:       models.SignalBuy,
			Confidence: confidence,
			Meta: models.BreakoutMeta{
				LeftPeak:       leftPeak,
				CupBottom:      bottom,
				RightPeak:      rightPeak,
				HandlePullback: pullback,
				CupDepth:       depth,
				RecoveryRatio:  recovery,
				BreakoutPrice:  breakoutPrice,
				BreakoutVolume: volumes[idx],
				AvgVolume:      avgVol,
				LeftPeakDate:   filtered[leftPeakIdx].Date,
				CupBottomDate:  filtered[bottomIdx].Date,
				RightPeakDate:  filtered[rightPeakIdx].Date,
			},
		})
	}

	return signals, nil
}
