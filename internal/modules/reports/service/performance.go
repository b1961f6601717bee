// Package service: сводные метрики по отчётам бэктеста, атрибуция вклада
// стратегий, выгрузка и чтение отчётных CSV.
package service

import (
	"math"

	"github.com/montanaflynn/stats"

	"equity_bot/internal/models"
)

// Торговых дней в году; этим же шагом меряется периодичность кривой.
const TradingDaysPerYear = 252

// PerformanceRow — строка сводной таблицы по одной стратегии.
type PerformanceRow struct {
	Strategy    string  `csv:"strategy" json:"strategy"`
	FinalEquity float64 `csv:"final_equity" json:"final_equity"`
	TotalReturn float64 `csv:"total_return" json:"total_return"`
	CAGR        float64 `csv:"cagr" json:"cagr"`
	MaxDrawdown float64 `csv:"max_drawdown" json:"max_drawdown"`
	Sharpe      float64 `csv:"sharpe" json:"sharpe"`
}

// TotalReturn — доходность от первой точки кривой к последней.
func TotalReturn(curve models.EquityCurve) float64 {
	if len(curve) == 0 {
		return 0
	}
	start := curve[0].Equity
	if start == 0 {
		return 0
	}
	return curve.Last()/start - 1
}

// CAGR — доходность в годовом выражении при periodsPerYear точках на год.
func CAGR(curve models.EquityCurve, periodsPerYear int) float64 {
	if len(curve) < 2 || periodsPerYear <= 0 {
		return 0
	}
	years := float64(len(curve)) / float64(periodsPerYear)
	return math.Pow(1+TotalReturn(curve), 1/years) - 1
}

// SharpeRatio — годовой Шарп по подневным доходностям кривой.
// Вырожденные входы (короткая кривая, нулевая дисперсия) дают 0.
func SharpeRatio(curve models.EquityCurve, riskFreeRate float64, periodsPerYear int) float64 {
	if len(curve) < 2 || periodsPerYear <= 0 {
		return 0
	}
	perPeriodRF := riskFreeRate / float64(periodsPerYear)
	excess := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		excess = append(excess, curve[i].Equity/curve[i-1].Equity-1-perPeriodRF)
	}
	if len(excess) < 2 {
		return 0
	}
	mean, err := stats.Mean(excess)
	if err != nil {
		return 0
	}
	std, err := stats.StandardDeviationSample(excess)
	if err != nil || std == 0 {
		return 0
	}
	return math.Sqrt(float64(periodsPerYear)) * mean / std
}

// BuildPerformanceReport собирает сводку в порядке отчётов; отчёт без
// результата даёт нулевую строку.
func BuildPerformanceReport(reports []models.BacktestReport, riskFreeRate float64, periodsPerYear int) []PerformanceRow {
	rows := make([]PerformanceRow, 0, len(reports))
	for _, report := range reports {
		var curve models.EquityCurve
		if report.Result != nil {
			curve = report.Result.EquityCurve
		}
		rows = append(rows, PerformanceRow{
			Strategy:    report.Strategy,
			FinalEquity: curve.Last(),
			TotalReturn: TotalReturn(curve),
			CAGR:        CAGR(curve, periodsPerYear),
			MaxDrawdown: curve.MaxDrawdown(),
			Sharpe:      SharpeRatio(curve, riskFreeRate, periodsPerYear),
		})
	}
	return rows
}
