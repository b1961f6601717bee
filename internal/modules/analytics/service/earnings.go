// Package service: макро-оверлей и качество отчётности — аналитические
// срезы, которыми сканер масштабирует уверенность итоговых сигналов.
package service

import (
	"math"

	"equity_bot/internal/models"
)

// Ключи кэша фундаментальных метрик, из которых складывается оценка.
const (
	keySurpriseAvg   = "earnings_surprise_avg"
	keyPositiveRatio = "earnings_positive_ratio"
	keyEPSTrend      = "earnings_eps_trend"
	keyPresetScore   = "earnings_signal_score"
)

// EarningsSignal — сводка качества отчётности по символу.
// NaN в поле означает, что метрики в кэше не было.
type EarningsSignal struct {
	Score           float64
	SurpriseAverage float64
	PositiveRatio   float64
	EPSTrend        float64
}

// Multiplier — множитель уверенности в диапазоне [0.55, 1];
// без оценки сигнал нейтрален, множитель 1.
func (s EarningsSignal) Multiplier() float64 {
	if math.IsNaN(s.Score) {
		return 1.0
	}
	return round3(0.55 + 0.45*clamp01(s.Score))
}

// Metadata — числовые поля среза для метаданных сигнала,
// отсутствующие (NaN) пропускаются.
func (s EarningsSignal) Metadata() models.MapMeta {
	meta := models.MapMeta{"confidence_multiplier": s.Multiplier()}
	put := func(key string, v float64) {
		if !math.IsNaN(v) {
			meta[key] = round3(v)
		}
	}
	put("score", s.Score)
	put("surprise_average", s.SurpriseAverage)
	put("positive_ratio", s.PositiveRatio)
	put("eps_trend", s.EPSTrend)
	return meta
}

// ComputeEarningsSignal складывает оценку отчётности из кэшированных
// фундаментальных метрик: доля положительных сюрпризов, средний сюрприз
// и тренд EPS приводятся к [0, 1] и усредняются; готовая оценка из
// кэша, если есть, смешивается с расчётной поровну.
func ComputeEarningsSignal(fundamentals map[string]float64) EarningsSignal {
	nan := math.NaN()
	signal := EarningsSignal{Score: nan, SurpriseAverage: nan, PositiveRatio: nan, EPSTrend: nan}
	if len(fundamentals) == 0 {
		return signal
	}

	var components []float64
	if ratio, ok := fundamentals[keyPositiveRatio]; ok {
		signal.PositiveRatio = clamp01(ratio)
		components = append(components, signal.PositiveRatio)
	}
	if surprise, ok := fundamentals[keySurpriseAvg]; ok {
		signal.SurpriseAverage = surprise
		components = append(components, clamp01(0.5+surprise/0.25))
	}
	if trend, ok := fundamentals[keyEPSTrend]; ok {
		signal.EPSTrend = trend
		components = append(components, clamp01(0.5+trend/0.25))
	}

	composite := nan
	if len(components) > 0 {
		var sum float64
		for _, c := range components {
			sum += c
		}
		composite = sum / float64(len(components))
	}
	if preset, ok := fundamentals[keyPresetScore]; ok {
		if math.IsNaN(composite) {
			composite = preset
		} else {
			composite = (composite + preset) / 2
		}
	}

	if !math.IsNaN(composite) {
		signal.Score = clamp01(composite)
	}
	return signal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
