package service

import (
	"time"

	"equity_bot/internal/models"
)

type AggregationParams struct {
	MinConfidence float64
	// Вес по имени стратегии; отсутствующая стратегия весит 1.0.
	Weighting map[string]float64
}

func DefaultAggregationParams() AggregationParams {
	return AggregationParams{MinConfidence: 0.5}
}

// SignalAggregator сливает сигналы разных стратегий по (symbol, type) во
// взвешенное среднее confidence. Группа с нулевым суммарным весом или со
// средним ниже порога молча выбрасывается.
type SignalAggregator struct {
	params AggregationParams
}

func NewAggregator(params AggregationParams) *SignalAggregator {
	if params.Weighting == nil {
		params.Weighting = map[string]float64{}
	}
	return &SignalAggregator{params: params}
}

type typeGroup struct {
	order  []models.SignalType
	byType map[models.SignalType][]models.Signal
}

func (a *SignalAggregator) Aggregate(signals []models.Signal) []models.Signal {
	symbols := make([]string, 0)
	bySymbol := make(map[string]*typeGroup)

	for _, sig := range signals {
		g, ok := bySymbol[sig.Symbol]
		if !ok {
			g = &typeGroup{byType: make(map[models.SignalType][]models.Signal)}
			bySymbol[sig.Symbol] = g
			symbols = append(symbols, sig.Symbol)
		}
		if _, ok := g.byType[sig.Type]; !ok {
			g.order = append(g.order, sig.Type)
		}
		g.byType[sig.Type] = append(g.byType[sig.Type], sig)
	}

	var aggregated []models.Signal
	for _, symbol := range symbols {
		g := bySymbol[symbol]
		for _, sigType := range g.order {
			if combined, ok := a.combine(symbol, sigType, g.byType[sigType]); ok {
				aggregated = append(aggregated, combined)
			}
		}
	}

	return aggregated
}

func (a *SignalAggregator) combine(symbol string, sigType models.SignalType, group []models.Signal) (models.Signal, bool) {
	totalWeight := 0.0
	weightedConfidence := 0.0
	var maxDate time.Time

	meta := models.AggregateMeta{
		Values:      make(map[string][]float64),
		Strategies:  make([]string, 0, len(group)),
		Confidences: make([]float64, 0, len(group)),
	}

	for _, sig := range group {
		weight, ok := a.params.Weighting[sig.Strategy]
		if !ok {
			weight = 1.0
		}
		totalWeight += weight
		weightedConfidence += weight * sig.Confidence
		if sig.Date.After(maxDate) {
			maxDate = sig.Date
		}

		if sig.Meta != nil {
			for _, f := range sig.Meta.Fields() {
				if _, seen := meta.Values[f.Key]; !seen {
					meta.Keys = append(meta.Keys, f.Key)
				}
				meta.Values[f.Key] = append(meta.Values[f.Key], f.Value)
			}
		}
		meta.Strategies = append(meta.Strategies, sig.Strategy)
		meta.Confidences = append(meta.Confidences, sig.Confidence)
	}

	if totalWeight == 0 {
		return models.Signal{}, false
	}

	avgConfidence := weightedConfidence / totalWeight
	if avgConfidence < a.params.MinConfidence {
		return models.Signal{}, false
	}

	return models.Signal{
		Symbol:     symbol,
		Date:       maxDate,
		Strategy:   models.StrategyAggregated,
		Type:       sigType,
		Confidence: avgConfidence,
		Meta:       meta,
	}, true
}
