package reports

import (
	"equity_bot/internal/modules/reports/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("reports",
		fx.Provide(
			service.NewArchiveFromConfig, // *service.Archive
		),
	)
}
