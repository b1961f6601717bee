// Command monitor — демон наблюдения: HTTP-дашборд с ручками здоровья и
// API, стрим котировок и периодическая проверка портфеля с алертами в
// нотификатор.
package main

import (
	"go.uber.org/fx"

	envcfg "equity_bot/internal/config"
	"equity_bot/internal/modules/config"
	"equity_bot/internal/modules/dashboard"
	"equity_bot/internal/modules/marketdata"
	"equity_bot/internal/modules/portfolio"
	"equity_bot/internal/modules/quotes"
	"equity_bot/internal/modules/reports"
	"equity_bot/internal/notify"
	"equity_bot/pkg/logger"
	"equity_bot/pkg/tracing"
)

func main() {
	env := envcfg.Load()
	if err := logger.Init(env.Debug); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.SetServiceName("monitor")

	if closeTracer := initTracing(env); closeTracer != nil {
		defer closeTracer()
	}

	app := fx.New(
		fx.Provide(
			notify.NewFromConfig, // notify.Notifier
		),
		config.Module(),
		marketdata.Module(),
		portfolio.Module(),
		reports.Module(),
		quotes.Module(),
		dashboard.Module(),
		fx.Invoke(watchHealth),
	)

	app.Run()
}

// Пустой JAEGER_HOST оставляет noop-трейсер.
func initTracing(env *envcfg.Config) func() {
	if env.JaegerHost == "" {
		return nil
	}
	tracing.SetServiceName("monitor")
	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: env.JaegerHost, Port: env.JaegerPort})
	if err != nil {
		logger.Warn("tracer init failed: %v", err)
		return nil
	}
	return closeTracer
}
