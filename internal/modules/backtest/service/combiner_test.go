package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
)

func curveReport(name string, curve models.EquityCurve) models.BacktestReport {
	return models.BacktestReport{Strategy: name, Result: &models.BacktestResult{EquityCurve: curve}}
}

func TestCombineAlignsAndAverages(t *testing.T) {
	reports := []models.BacktestReport{
		curveReport("a", models.EquityCurve{
			{Date: day(0), Equity: 100},
			{Date: day(1), Equity: 110},
		}),
		curveReport("b", models.EquityCurve{
			{Date: day(1), Equity: 200},
			{Date: day(2), Equity: 220},
		}),
	}

	combined := CombineEquityCurves(reports, nil)
	require.Len(t, combined, 3)
	// b до своей первой точки продлевается назад, a после последней — вперёд
	assert.Equal(t, []float64{150, 155, 165}, combined.Values())
	assert.Equal(t, day(0), combined[0].Date)
	assert.Equal(t, day(2), combined[2].Date)
}

func TestCombineWeightedWithDefault(t *testing.T) {
	reports := []models.BacktestReport{
		curveReport("a", models.EquityCurve{
			{Date: day(0), Equity: 100},
			{Date: day(1), Equity: 110},
		}),
		curveReport("b", models.EquityCurve{
			{Date: day(1), Equity: 200},
			{Date: day(2), Equity: 220},
		}),
	}

	// вес b не задан — берётся 1
	combined := CombineEquityCurves(reports, map[string]float64{"a": 3})
	require.Len(t, combined, 3)
	assert.Equal(t, []float64{125, 132.5, 137.5}, combined.Values())
}

func TestCombineSkipsEmptyCurves(t *testing.T) {
	full := models.EquityCurve{
		{Date: day(0), Equity: 100},
		{Date: day(1), Equity: 120},
	}
	reports := []models.BacktestReport{
		curveReport("a", full),
		curveReport("empty", nil),
		{Strategy: "ghost"},
	}

	combined := CombineEquityCurves(reports, nil)
	assert.Equal(t, full, combined)
}

func TestCombineNothingToCombine(t *testing.T) {
	assert.Empty(t, CombineEquityCurves(nil, nil))
	assert.Empty(t, CombineEquityCurves([]models.BacktestReport{{Strategy: "ghost"}}, nil))
}

func TestCombineZeroTotalWeight(t *testing.T) {
	reports := []models.BacktestReport{
		curveReport("a", models.EquityCurve{{Date: day(0), Equity: 100}}),
	}
	assert.Empty(t, CombineEquityCurves(reports, map[string]float64{"a": 0}))
}

func TestSummarizeCombinedMetrics(t *testing.T) {
	reports := []models.BacktestReport{
		{Strategy: "a", Result: &models.BacktestResult{Metrics: map[string]float64{
			models.MetricFinal:     10100,
			models.MetricNumTrades: 2,
		}}},
		{Strategy: "b", Result: &models.BacktestResult{Metrics: map[string]float64{
			models.MetricFinal:     9900,
			models.MetricNumTrades: 1,
		}}},
		{Strategy: "ghost"},
	}

	got := SummarizeCombinedMetrics(reports)
	assert.Equal(t, map[string]float64{
		models.MetricFinal:     20000,
		models.MetricNumTrades: 3,
	}, got)
}
