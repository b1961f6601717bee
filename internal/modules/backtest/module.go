package backtest

import (
	"equity_bot/internal/modules/backtest/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("backtest",
		fx.Provide(
			service.NewEngineFromConfig, // *service.Engine
			service.NewRunner,           // *service.Runner
		),
	)
}
