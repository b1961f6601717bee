package service

import (
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	strategy "equity_bot/internal/modules/strategy/service"
	"equity_bot/pkg/logger"
)

// Runner гоняет набор стратегий по одной серии: каждая стратегия
// бэктестится изолированно, на собственных сигналах и со свежим капиталом.
type Runner struct {
	engine *Engine
}

func NewRunner(engine *Engine) *Runner {
	return &Runner{engine: engine}
}

// RunStrategies генерирует сигналы каждой стратегии и исполняет их движком.
// Стратегия, которой не хватает обязательных полей серии, пропускается
// с warn-ом; любая другая ошибка фатальна для всего прогона.
func (r *Runner) RunStrategies(series *models.PriceSeries, strategies []strategy.Strategy, size SizeFunc, initialCapital float64, symbol string) ([]models.BacktestReport, error) {
	reports := make([]models.BacktestReport, 0, len(strategies))
	for _, strat := range strategies {
		signals, err := strat.GenerateSignals(symbol, series)
		if err != nil {
			if models.IsMissingField(err) {
				logger.Warn("strategy %s skipped: %v", strat.Name(), err)
				continue
			}
			return nil, errors.Wrapf(err, "generate signals %s", strat.Name())
		}
		result, err := r.engine.Run(series, signals, size, initialCapital, symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "backtest %s", strat.Name())
		}
		reports = append(reports, models.BacktestReport{Strategy: strat.Name(), Result: result})
	}
	return reports, nil
}

// SummarizeReports — финальный капитал по стратегиям.
func SummarizeReports(reports []models.BacktestReport) map[string]float64 {
	out := make(map[string]float64, len(reports))
	for _, report := range reports {
		final := 0.0
		if report.Result != nil {
			final = report.Result.Metrics[models.MetricFinal]
		}
		out[report.Strategy] = final
	}
	return out
}
