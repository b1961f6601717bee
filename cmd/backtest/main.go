// Command backtest гоняет все включённые стратегии по историческому
// диапазону: каждая стратегия бэктестится на каждом символе изолированно,
// посимвольные кривые сводятся в равновзвешенную корзину стратегии, поверх
// корзин строятся перфоманс, атрибуция и комбинированная кривая портфеля.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	envcfg "equity_bot/internal/config"
	"equity_bot/internal/helper"
	"equity_bot/internal/models"
	backtest "equity_bot/internal/modules/backtest/service"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	postgres "equity_bot/internal/modules/postgres/service"
	reports "equity_bot/internal/modules/reports/service"
	strategy "equity_bot/internal/modules/strategy/service"
	universe "equity_bot/internal/modules/universe/service"
	"equity_bot/internal/notify"
	"equity_bot/pkg/db"
	"equity_bot/pkg/logger"
	"equity_bot/pkg/tracing"
)

const dateLayout = "2006-01-02"

var (
	symbolsFlag   = flag.String("symbols", "", "comma-separated symbols, default = the seed universe")
	startFlag     = flag.String("start", "", "range start YYYY-MM-DD, default = two years before end")
	endFlag       = flag.String("end", "", "range end YYYY-MM-DD, default = today")
	riskFreeFlag  = flag.Float64("risk-free", 0, "annual risk-free rate for the Sharpe ratio")
	noArchiveFlag = flag.Bool("no-archive", false, "skip writing the report archive")
	persistFlag   = flag.Bool("persist", false, "save per-strategy runs to the database")
	emailFlag     = flag.Bool("email", false, "email the report to the configured recipient")
)

func main() {
	flag.Parse()

	env := envcfg.Load()
	if err := logger.Init(env.Debug); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.SetServiceName("backtest")

	if closeTracer := initTracing(env); closeTracer != nil {
		defer closeTracer()
	}

	if err := run(); err != nil {
		logger.Fatal("backtest failed: %v", err)
	}
}

// Пустой JAEGER_HOST оставляет noop-трейсер.
func initTracing(env *envcfg.Config) func() {
	if env.JaegerHost == "" {
		return nil
	}
	tracing.SetServiceName("backtest")
	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: env.JaegerHost, Port: env.JaegerPort})
	if err != nil {
		logger.Warn("tracer init failed: %v", err)
		return nil
	}
	return closeTracer
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	span, ctx := tracing.StartSpan(ctx, "backtest")
	defer span.Finish()

	cfg, err := config.NewConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		symbols = universe.LoadSeedCandidates(cfg.Universe.SeedFile)
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to backtest")
	}

	prices := marketdata.NewStoreFromConfig(cfg)
	provider := marketdata.NewPriceProvider(prices, cfg)
	warmuper := marketdata.NewWarmuper(provider, cfg)

	strategies, err := strategy.NewStrategies(cfg)
	if err != nil {
		return errors.Wrap(err, "build strategies")
	}
	engine, err := backtest.NewEngineFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "build engine")
	}
	btRunner := backtest.NewRunner(engine)

	sizer := portfolio.NewSizerFromConfig(cfg)
	sizeFn := func(signals []models.Signal, equity float64) []models.PositionAllocation {
		return sizer.SizePositions(signals, equity, nil)
	}

	logger.Info("backtest %s..%s: %d symbols, %d strategies",
		start.Format(dateLayout), end.Format(dateLayout), len(symbols), len(strategies))

	batch := warmuper.WarmUp(ctx, symbols, start, end, "1d")
	for sym, warmErr := range batch.Failed {
		logger.Warn("warmup %s failed: %v", sym, warmErr)
	}

	// Посимвольные отчёты группируются по стратегии в порядке появления.
	byStrategy := map[string][]models.BacktestReport{}
	var order []string
	trades := map[string]int{}
	var symbolsRun []string

	for _, sym := range symbols {
		series := batch.Results[sym]
		if series == nil || series.Len() == 0 {
			continue
		}
		series = marketdata.ClipSeries(series, start, end)
		if series.Len() == 0 {
			continue
		}
		marketdata.EnrichSeries(series, 0, 0, marketdata.LoadFundamentals(cfg.DataDir, sym))

		reps, err := btRunner.RunStrategies(series, strategies, sizeFn, cfg.Backtest.InitialCapital, sym)
		if err != nil {
			logger.Warn("backtest %s failed: %v", sym, err)
			continue
		}
		symbolsRun = append(symbolsRun, sym)
		for _, rep := range reps {
			if _, ok := byStrategy[rep.Strategy]; !ok {
				order = append(order, rep.Strategy)
			}
			byStrategy[rep.Strategy] = append(byStrategy[rep.Strategy], rep)
			if rep.Result != nil {
				trades[rep.Strategy] += len(rep.Result.Trades)
			}
		}
	}
	if len(symbolsRun) == 0 {
		return errors.New("no symbols produced a backtest: is the price cache warm?")
	}

	// Корзина стратегии: равновзвешенное среднее её посимвольных кривых.
	stratReports := make([]models.BacktestReport, 0, len(order))
	for _, name := range order {
		reps := byStrategy[name]
		stratReports = append(stratReports, models.BacktestReport{
			Strategy: name,
			Result: &models.BacktestResult{
				EquityCurve: backtest.CombineEquityCurves(reps, nil),
				Metrics:     backtest.SummarizeCombinedMetrics(reps),
			},
		})
	}

	perfRows := reports.BuildPerformanceReport(stratReports, *riskFreeFlag, reports.TradingDaysPerYear)
	attribution := reports.ComputeAttribution(stratReports, cfg.Aggregation.Weighting)
	combined := backtest.CombineEquityCurves(stratReports, cfg.Aggregation.Weighting)

	fmt.Printf("Backtest %s..%s (%d of %d symbols)\n",
		start.Format(dateLayout), end.Format(dateLayout), len(symbolsRun), len(symbols))
	reports.RenderPerformanceTable(os.Stdout, perfRows)
	fmt.Println("Attribution:")
	reports.RenderAttributionTable(os.Stdout, attribution)

	if !*noArchiveFlag {
		archive := reports.NewArchiveFromConfig(cfg)
		if err := archive.Save(perfRows, attribution, combined); err != nil {
			return errors.Wrap(err, "save report archive")
		}
		logger.Info("report archive updated: %s", archive.Dir())
	}
	if *persistFlag {
		if err := persistRuns(ctx, cfg, stratReports, trades, symbolsRun, start, end); err != nil {
			logger.Warn("persist backtests: %v", err)
		}
	}
	if *emailFlag {
		sendReportEmail(cfg, perfRows, attribution, end)
	}
	return nil
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	end := models.Day(time.Now())
	if endRaw != "" {
		parsed, err := time.Parse(dateLayout, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "parse -end")
		}
		end = parsed
	}
	start := end.AddDate(-2, 0, 0)
	if startRaw != "" {
		parsed, err := time.Parse(dateLayout, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "parse -start")
		}
		start = parsed
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.Errorf("start %s is not before end %s",
			start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func splitSymbols(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if sym := helper.NormSymbol(part); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// openStore — стор результатов поверх пула либо выключенный при пустом DSN.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, func(), error) {
	if cfg.DB == "" {
		return postgres.NewStore(nil), func() {}, nil
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "ping postgres")
	}
	return postgres.NewStore(db.NewPgTxManager(pool)), pool.Close, nil
}

func persistRuns(
	ctx context.Context,
	cfg *config.Config,
	stratReports []models.BacktestReport,
	trades map[string]int,
	symbols []string,
	start, end time.Time,
) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if !store.Enabled() {
		return errors.New("postgres dsn is not configured")
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return errors.Wrap(err, "ensure schema")
	}

	for _, rep := range stratReports {
		curve := rep.Result.EquityCurve
		id, err := store.SaveBacktest(ctx, postgres.BacktestRecord{
			Strategy:       rep.Strategy,
			Symbols:        symbols,
			Start:          start,
			End:            end,
			InitialCapital: cfg.Backtest.InitialCapital,
			FinalValue:     curve.Last(),
			TotalReturn:    reports.TotalReturn(curve),
			MaxDrawdown:    curve.MaxDrawdown(),
			NumTrades:      trades[rep.Strategy],
			Sharpe:         reports.SharpeRatio(curve, *riskFreeFlag, reports.TradingDaysPerYear),
			CAGR:           reports.CAGR(curve, reports.TradingDaysPerYear),
		})
		if err != nil {
			return errors.Wrapf(err, "save %s", rep.Strategy)
		}
		logger.Info("backtest %s saved: %s", rep.Strategy, id)
	}
	return nil
}

func sendReportEmail(cfg *config.Config, performance []reports.PerformanceRow, attribution []reports.AttributionRow, end time.Time) {
	if cfg.Notify.Email.SMTPServer == "" || cfg.Notify.Email.Recipient == "" {
		logger.Warn("email requested but smtp is not configured")
		return
	}
	perfCSV, err := gocsv.MarshalString(&performance)
	if err != nil {
		logger.Warn("marshal performance rows: %v", err)
		return
	}
	attrCSV, err := gocsv.MarshalString(&attribution)
	if err != nil {
		logger.Warn("marshal attribution rows: %v", err)
		return
	}
	mail := notify.NewEmail(cfg.Notify.Email)
	subject := fmt.Sprintf("Backtest report %s", end.Format(dateLayout))
	if err := mail.SendAlert(subject, notify.BacktestEmailBody(perfCSV, attrCSV)); err != nil {
		logger.Warn("report email failed: %v", err)
	}
}
