package runner

import (
	"context"

	"go.uber.org/fx"

	postgres "equity_bot/internal/modules/postgres/service"
	"equity_bot/internal/notify"
)

// Module поднимает сканер и воркер расписания.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			notify.NewFromConfig, // notify.Notifier
			NewScanner,           // *Scanner
			NewManager,           // *Manager
		),
		fx.Invoke(func(lc fx.Lifecycle, m *Manager, store *postgres.Store) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if store.Enabled() {
						if err := store.EnsureSchema(ctx); err != nil {
							return err
						}
					}
					return m.Start()
				},
				OnStop: func(ctx context.Context) error {
					m.Stop()
					return nil
				},
			})
		}),
	)
}
