package service

import (
	"fmt"
	"math"

	"equity_bot/internal/models"
)

type CanSlimWeights struct {
	Earnings         float64
	RelativeStrength float64
	PriceNearHigh    float64
	VolumeIncrease   float64
}

func (w CanSlimWeights) sum() float64 {
	return w.Earnings + w.RelativeStrength + w.PriceNearHigh + w.VolumeIncrease
}

type CanSlimParams struct {
	EarningsGrowthThreshold float64
	NearHighThreshold       float64
	VolumeIncreaseThreshold float64
	MinScore                float64
	Weights                 CanSlimWeights
}

func DefaultCanSlimParams() CanSlimParams {
	return CanSlimParams{
		EarningsGrowthThreshold: 0.25,
		NearHighThreshold:       0.15,
		VolumeIncreaseThreshold: 0.20,
		MinScore:                0.75,
		Weights: CanSlimWeights{
			Earnings:         0.25,
			RelativeStrength: 0.25,
			PriceNearHigh:    0.25,
			VolumeIncrease:   0.25,
		},
	}
}

// CanSlimStrategy — скоринг последнего бара по четырём факторам с
// настраиваемыми весами. Сумма весов проверяется на конструкторе.
type CanSlimStrategy struct {
	params CanSlimParams
}

func NewCanSlim(params CanSlimParams) (*CanSlimStrategy, error) {
	if math.Abs(params.Weights.sum()-1.0) > 1e-6 {
		return nil, fmt.Errorf("canslim weights must sum to 1.0, got %v", params.Weights.sum())
	}
	return &CanSlimStrategy{params: params}, nil
}

func (s *CanSlimStrategy) Name() string { return models.StrategyCANSLIM }

func (s *CanSlimStrategy) RequiredFields() []string {
	return []string{
		models.FieldClose,
		models.FieldVolume,
		models.FieldEarningsGrowth,
		models.FieldRelativeStrength,
		models.FieldFiftyTwoWeekHigh,
		models.FieldAverageVolume,
		models.FieldVolumeChange,
	}
}

func (s *CanSlimStrategy) GenerateSignals(symbol string, series *models.PriceSeries) ([]models.Signal, error) {
	if series.Len() == 0 {
		return nil, nil
	}
	if err := checkRequired(s.Name(), series, s.RequiredFields()); err != nil {
		return nil, err
	}

	bars := sortedBars(series)
	latest := bars[len(bars)-1]

	meta := s.score(latest)
	if meta.TotalScore < s.params.MinScore {
		return nil, nil
	}

	return []models.Signal{{
		Symbol:     symbol,
		Date:       latest.Date,
		Strategy:   s.Name(),
		Type:       models.SignalBuy,
		Confidence: meta.TotalScore,
		Meta:       meta,
	}}, nil
}

// score считает компоненты по последнему бару; NaN на входе — нулевой вклад.
func (s *CanSlimStrategy) score(row models.PriceBar) models.ScoreMeta {
	p := s.params
	w := p.Weights

	earningsScore := 0.0
	if !math.IsNaN(row.EarningsGrowth) && row.EarningsGrowth >= p.EarningsGrowthThreshold {
		earningsScore = w.Earnings
	}

	rsScore := 0.0
	if !math.IsNaN(row.RelativeStrength) {
		rsScore = w.RelativeStrength * math.Min(1.0, row.RelativeStrength)
	}

	priceScore := 0.0
	if !math.IsNaN(row.FiftyTwoWeekHigh) && row.FiftyTwoWeekHigh > 0 && !math.IsNaN(row.Close) {
		distance := (row.FiftyTwoWeekHigh - row.Close) / row.FiftyTwoWeekHigh
		if distance <= p.NearHighThreshold {
			priceScore = w.PriceNearHigh * (1 - distance/p.NearHighThreshold)
		}
	}

	volumeScore := 0.0
	if !math.IsNaN(row.VolumeChange) && row.VolumeChange >= p.VolumeIncreaseThreshold {
		volumeScore = w.VolumeIncrease * math.Min(1.0, row.VolumeChange/p.VolumeIncreaseThreshold)
	}

	return models.ScoreMeta{
		EarningsScore:         earningsScore,
		RelativeStrengthScore: rsScore,
		PriceNearHighScore:    priceScore,
		VolumeIncreaseScore:   volumeScore,
		TotalScore:            earningsScore + rsScore + priceScore + volumeScore,
	}
}
