package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	dashboard "equity_bot/internal/modules/dashboard/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	reports "equity_bot/internal/modules/reports/service"
	"equity_bot/internal/notify"
	"equity_bot/pkg/logger"
)

const healthCheckEvery = 15 * time.Minute

// watchHealth — пуш-сторона мониторинга: дашборд отдаёт здоровье по
// запросу, а этот воркер сам шлёт просадки и перекосы секторов в
// нотификатор. Троттлинг повторных алертов живёт в HealthMonitor.
func watchHealth(
	lc fx.Lifecycle,
	archive *reports.Archive,
	ledger *portfolio.PaperLedger,
	health *portfolio.HealthMonitor,
	source dashboard.QuoteSource,
	notifier notify.Notifier,
) {
	var cancel context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, stop := context.WithCancel(context.Background())
			cancel = stop
			go func() {
				defer close(done)
				ticker := time.NewTicker(healthCheckEvery)
				defer ticker.Stop()
				checkHealth(archive, ledger, health, source, notifier)
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						checkHealth(archive, ledger, health, source, notifier)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
				<-done
			}
			return nil
		},
	})
}

func checkHealth(
	archive *reports.Archive,
	ledger *portfolio.PaperLedger,
	health *portfolio.HealthMonitor,
	source dashboard.QuoteSource,
	notifier notify.Notifier,
) {
	// Без комбинированной кривой (бэктест ещё не гонялся) проверять нечего.
	curve, err := archive.LoadCombinedCurve()
	if err != nil {
		logger.Debug("health check skipped: %v", err)
		return
	}

	snapshot := source.Snapshot()
	prices := make(map[string]float64, len(snapshot))
	for sym, quote := range snapshot {
		prices[sym] = quote.Price
	}
	positions := ledger.PositionValues(prices, nil, time.Now())

	report, err := health.Evaluate(curve, positions)
	if err != nil {
		logger.Warn("health evaluate failed: %v", err)
		return
	}
	for _, alert := range report.DrawdownAlerts {
		notifier.Sendf("⚠️ HEALTH | %s", alert)
	}
	for _, breach := range report.SectorBreaches {
		notifier.Sendf("⚠️ HEALTH | sector=%s share=%.0f%% limit=%.0f%%",
			breach.Sector, breach.Allocation*100, breach.Limit*100)
	}
}
