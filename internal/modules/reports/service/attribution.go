package service

import "equity_bot/internal/models"

// AttributionRow — вклад одной стратегии в комбинированную доходность.
// Weight нормирован на сумму весов участвующих стратегий.
type AttributionRow struct {
	Strategy     string  `csv:"strategy" json:"strategy"`
	Return       float64 `csv:"return" json:"return"`
	Weight       float64 `csv:"weight" json:"weight"`
	Contribution float64 `csv:"contribution" json:"contribution"`
}

// ComputeAttribution раскладывает доходность по стратегиям. Пустые кривые
// не участвуют; вес отсутствующей в карте стратегии — 1; нулевая сумма
// весов даёт пустой результат.
func ComputeAttribution(reports []models.BacktestReport, weights map[string]float64) []AttributionRow {
	type entry struct {
		strategy string
		ret      float64
		weight   float64
	}
	var entries []entry
	totalWeight := 0.0
	for _, report := range reports {
		if report.Result == nil || len(report.Result.EquityCurve) == 0 {
			continue
		}
		w := 1.0
		if v, ok := weights[report.Strategy]; ok {
			w = v
		}
		entries = append(entries, entry{report.Strategy, TotalReturn(report.Result.EquityCurve), w})
		totalWeight += w
	}
	if len(entries) == 0 || totalWeight == 0 {
		return nil
	}

	rows := make([]AttributionRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, AttributionRow{
			Strategy:     e.strategy,
			Return:       e.ret,
			Weight:       e.weight / totalWeight,
			Contribution: e.ret * e.weight / totalWeight,
		})
	}
	return rows
}
