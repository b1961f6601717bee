package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"equity_bot/internal/modules/analytics"
	"equity_bot/internal/modules/config"
	"equity_bot/internal/modules/marketdata"
	"equity_bot/internal/modules/portfolio"
	"equity_bot/internal/modules/postgres"
	"equity_bot/internal/modules/strategy"
	"equity_bot/internal/modules/universe"
	"equity_bot/internal/runner"
)

// idleState — у демона без HTTP отметку последнего скана некому читать.
type idleState struct{}

func (idleState) TouchScan(time.Time) {}

// runDaemon собирает граф воркера расписания и блокируется до сигнала.
func runDaemon() {
	app := fx.New(
		fx.Provide(
			func() context.Context { return context.Background() },
			func() runner.ScanState { return idleState{} },
		),
		config.Module(),
		marketdata.Module(),
		strategy.Module(),
		analytics.Module(),
		portfolio.Module(),
		universe.Module(),
		postgres.Module(),
		runner.Module(),
	)

	app.Run()
}
