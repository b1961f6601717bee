package portfolio

import (
	"equity_bot/internal/modules/portfolio/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("portfolio",
		fx.Provide(
			service.NewSizerFromConfig,         // *service.PositionSizer
			service.NewHealthMonitorFromConfig, // *service.HealthMonitor
			service.NewLedgerFromConfig,        // *service.PaperLedger
		),
	)
}
