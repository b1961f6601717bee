package analytics

import (
	"equity_bot/internal/modules/analytics/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("analytics",
		fx.Provide(
			service.NewRegimeAnalyzer, // *service.RegimeAnalyzer
		),
	)
}
