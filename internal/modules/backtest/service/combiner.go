package service

import (
	"sort"
	"time"

	"equity_bot/internal/models"
)

// CombineEquityCurves сводит кривые стратегий в одну: объединённая ось дат,
// пропуски заполняются последним известным значением (а до первой точки —
// первым), затем взвешенное среднее. Вес отсутствующей в карте стратегии — 1.
// Пустые кривые не участвуют; если участников нет или суммарный вес нулевой,
// результат пуст.
func CombineEquityCurves(reports []models.BacktestReport, weights map[string]float64) models.EquityCurve {
	type weighted struct {
		curve  models.EquityCurve
		weight float64
	}
	var curves []weighted
	totalWeight := 0.0
	for _, report := range reports {
		if report.Result == nil || len(report.Result.EquityCurve) == 0 {
			continue
		}
		w := 1.0
		if v, ok := weights[report.Strategy]; ok {
			w = v
		}
		curves = append(curves, weighted{curve: report.Result.EquityCurve, weight: w})
		totalWeight += w
	}
	if len(curves) == 0 || totalWeight == 0 {
		return nil
	}

	seen := map[time.Time]bool{}
	var dates []time.Time
	for _, c := range curves {
		for _, p := range c.curve {
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	// last[k] — последняя точка кривой k с датой <= текущей; пока кривая
	// не началась, указатель стоит на её первой точке (bfill).
	last := make([]int, len(curves))
	out := make(models.EquityCurve, 0, len(dates))
	for _, d := range dates {
		sum := 0.0
		for k := range curves {
			curve := curves[k].curve
			for last[k]+1 < len(curve) && !curve[last[k]+1].Date.After(d) {
				last[k]++
			}
			sum += curves[k].weight * curve[last[k]].Equity
		}
		out = append(out, models.EquityPoint{Date: d, Equity: sum / totalWeight})
	}
	return out
}

// SummarizeCombinedMetrics складывает одноимённые метрики всех отчётов.
func SummarizeCombinedMetrics(reports []models.BacktestReport) map[string]float64 {
	out := map[string]float64{}
	for _, report := range reports {
		if report.Result == nil {
			continue
		}
		for name, v := range report.Result.Metrics {
			out[name] += v
		}
	}
	return out
}
