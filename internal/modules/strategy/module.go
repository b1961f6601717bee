package strategy

import (
	"equity_bot/internal/modules/strategy/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			service.NewStrategies,           // []service.Strategy
			service.NewAggregatorFromConfig, // *service.SignalAggregator
		),
	)
}
