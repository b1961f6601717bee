package postgres

import (
	"context"
	"fmt"

	"equity_bot/internal/modules/config"
	"equity_bot/internal/modules/postgres/service"
	"equity_bot/pkg/db"

	"go.uber.org/fx"
)

// Пул, транзакционный менеджер и стор результатов как fx-провайдеры.
// Пустой DSN выключает персистентность, не мешая остальному приложению.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					return nil, nil
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
			service.NewStore, // *service.Store
		),
	)
}
