package dashboard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"equity_bot/internal/modules/config"
	"equity_bot/internal/modules/dashboard/service"
	quotes "equity_bot/internal/modules/quotes/service"
	"equity_bot/internal/runner"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(app *config.Config) Config {
	addr := ":8080"
	if app.Service.PublicPort != 0 {
		addr = fmt.Sprintf("%s:%d", app.Service.Host, app.Service.PublicPort)
	}
	return Config{Addr: addr}
}

func NewRouter(s *service.Server) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/livez", s.Livez).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.Readyz).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.Healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/watchlist", s.Watchlist).Methods(http.MethodGet)
	api.HandleFunc("/reports", s.Reports).Methods(http.MethodGet)
	api.HandleFunc("/health", s.PortfolioHealth).Methods(http.MethodGet)

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg Config, r *mux.Router, state *service.State) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("dashboard",
		fx.Provide(
			service.NewState,  // *service.State
			service.NewServer, // *service.Server
			NewConfig,
			NewRouter,
			func(s *service.State) quotes.HealthState { return s },
			func(s *service.State) runner.ScanState { return s },
			func(s *quotes.Stream) service.QuoteSource { return s },
		),
		fx.Invoke(RunHTTP),
	)
}
