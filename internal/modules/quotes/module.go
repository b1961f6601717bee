package quotes

import (
	"context"

	"equity_bot/internal/modules/quotes/service"

	"go.uber.org/fx"
)

// Module поднимает стример котировок.
func Module() fx.Option {
	return fx.Module("quotes",
		fx.Provide(
			service.NewStream, // *service.Stream
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Stream) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					s.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}
