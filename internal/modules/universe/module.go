package universe

import (
	"equity_bot/internal/modules/universe/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("universe",
		fx.Provide(
			service.NewSnapshotCacheFromConfig, // *service.SnapshotCache
			service.NewOverviewSource,          // service.SnapshotSource
			service.NewBuilder,                 // *service.Builder
		),
	)
}
