package marketdata

import (
	"equity_bot/internal/modules/marketdata/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			service.NewStoreFromConfig,    // *service.Store
			service.NewPriceProvider,      // service.PriceProvider
			service.NewFundamentalsClient, // *service.FundamentalsClient
			service.NewWarmuper,           // *service.Warmuper
		),
	)
}
