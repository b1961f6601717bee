package models

import (
	"math"
	"time"
)

// Ключи метрик бэктеста.
const (
	MetricFinal       = "final"
	MetricTotalReturn = "total_return"
	MetricMaxDrawdown = "max_drawdown"
	MetricNumTrades   = "num_trades"
)

// TradeRecord — одна строка журнала сделок. PnL заполняется только на
// SELL (нетто, за вычетом комиссий входа и выхода).
type TradeRecord struct {
	Action   SignalType
	Symbol   string
	Date     time.Time
	Shares   int
	Price    float64
	Value    float64
	Fees     float64
	Strategy string
	PnL      float64
}

type EquityPoint struct {
	Date   time.Time
	Equity float64
}

// EquityCurve — стоимость портфеля по датам серии, одна точка на дату.
type EquityCurve []EquityPoint

func (c EquityCurve) Values() []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Equity
	}
	return out
}

func (c EquityCurve) Dates() []time.Time {
	out := make([]time.Time, len(c))
	for i := range c {
		out[i] = c[i].Date
	}
	return out
}

func (c EquityCurve) Last() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Equity
}

// MaxDrawdown — максимальная относительная просадка пик-дно,
// положительной величиной (0 для неубывающей кривой).
func (c EquityCurve) MaxDrawdown() float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range c {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

type BacktestResult struct {
	EquityCurve EquityCurve
	Trades      []TradeRecord
	Metrics     map[string]float64
}

// BacktestReport — результат прогона одной стратегии, единица обмена
// между раннером, отчётами и комбинатором кривых.
type BacktestReport struct {
	Strategy string
	Result   *BacktestResult
}
