// Command scan — разовый проход сканера: скрининг вселенной, прогрев
// дневного кэша, стратегии, агрегация и план позиций. С флагом -schedule
// поднимается демоном и гоняет проходы по расписанию из конфига.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	envcfg "equity_bot/internal/config"
	"equity_bot/internal/helper"
	"equity_bot/internal/models"
	analytics "equity_bot/internal/modules/analytics/service"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	postgres "equity_bot/internal/modules/postgres/service"
	strategy "equity_bot/internal/modules/strategy/service"
	universe "equity_bot/internal/modules/universe/service"
	"equity_bot/internal/notify"
	"equity_bot/internal/runner"
	"equity_bot/pkg/db"
	"equity_bot/pkg/logger"
	"equity_bot/pkg/tracing"
)

var (
	symbolsFlag         = flag.String("symbols", "", "comma-separated symbols to scan instead of the seed universe")
	limitFlag           = flag.Int("limit", 0, "cap the number of candidates, 0 = no cap")
	russellFlag         = flag.Bool("include-russell", false, "merge the cached Russell 2000 list into the candidates")
	noPersistFlag       = flag.Bool("no-persist", false, "skip the universe snapshot and database writes")
	outputFlag          = flag.String("output", "", "write aggregated signals to a CSV file")
	emailFlag           = flag.Bool("email", false, "email the scan summary to the configured recipient")
	refreshRussellFlag  = flag.Bool("refresh-russell", false, "download a fresh Russell 2000 constituents file first")
	refreshFundamentals = flag.Bool("refresh-fundamentals", false, "re-fetch cached fundamentals for the candidates first")
	scheduleFlag        = flag.Bool("schedule", false, "run as a daemon on the configured schedule")
)

func main() {
	flag.Parse()

	env := envcfg.Load()
	if err := logger.Init(env.Debug); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.SetServiceName("scan")

	if closeTracer := initTracing(env); closeTracer != nil {
		defer closeTracer()
	}

	if *scheduleFlag {
		runDaemon()
		return
	}
	if err := runOnce(); err != nil {
		logger.Fatal("scan failed: %v", err)
	}
}

// Пустой JAEGER_HOST оставляет noop-трейсер.
func initTracing(env *envcfg.Config) func() {
	if env.JaegerHost == "" {
		return nil
	}
	tracing.SetServiceName("scan")
	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: env.JaegerHost, Port: env.JaegerPort})
	if err != nil {
		logger.Warn("tracer init failed: %v", err)
		return nil
	}
	return closeTracer
}

func runOnce() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	prices := marketdata.NewStoreFromConfig(cfg)
	provider := marketdata.NewPriceProvider(prices, cfg)
	fundamentals := marketdata.NewFundamentalsClient(cfg)

	if *refreshRussellFlag {
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		dest := universe.RussellPath(cfg.DataDir)
		n, err := universe.RefreshRussellFile(ctx, client, universe.DefaultRussellURL, dest)
		if err != nil {
			return errors.Wrap(err, "refresh russell list")
		}
		logger.Info("russell list refreshed: %d symbols -> %s", n, dest)
	}
	if *refreshFundamentals {
		candidates := resolveCandidates(cfg)
		n, err := fundamentals.RefreshCache(ctx, candidates)
		if err != nil {
			return errors.Wrap(err, "refresh fundamentals")
		}
		logger.Info("fundamentals refreshed: %d of %d symbols", n, len(candidates))
	}

	strategies, err := strategy.NewStrategies(cfg)
	if err != nil {
		return errors.Wrap(err, "build strategies")
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	persist := !*noPersistFlag
	if persist && store.Enabled() {
		if err := store.EnsureSchema(ctx); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}

	scanner := runner.NewScanner(
		cfg,
		marketdata.NewWarmuper(provider, cfg),
		strategies,
		strategy.NewAggregatorFromConfig(cfg),
		analytics.NewRegimeAnalyzer(provider),
		portfolio.NewSizerFromConfig(cfg),
		universe.NewBuilder(universe.NewOverviewSource(fundamentals, prices), universe.NewSnapshotCacheFromConfig(cfg), cfg),
		store,
		notify.NewFromConfig(cfg),
		nil,
	)

	out, err := scanner.Run(ctx, runner.ScanRequest{
		Symbols:        splitSymbols(*symbolsFlag),
		IncludeRussell: *russellFlag,
		Limit:          *limitFlag,
		Persist:        persist,
	})
	if err != nil {
		return err
	}

	printSummary(out)

	if *outputFlag != "" {
		if err := writeSignalsCSV(*outputFlag, out.Signals); err != nil {
			return errors.Wrap(err, "write signals csv")
		}
		logger.Info("signals written to %s", *outputFlag)
	}
	if *emailFlag {
		sendScanEmail(cfg, out)
	}
	return nil
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

// resolveCandidates повторяет выбор сканера: явные -symbols либо
// сид-кандидаты (плюс Russell по флагу), с учётом -limit.
func resolveCandidates(cfg *config.Config) []string {
	list := splitSymbols(*symbolsFlag)
	if len(list) == 0 {
		var extras []string
		if *russellFlag {
			extras = append(extras, universe.RussellPath(cfg.DataDir))
		}
		list = universe.LoadSeedCandidates(cfg.Universe.SeedFile, extras...)
	}
	if *limitFlag > 0 && len(list) > *limitFlag {
		list = list[:*limitFlag]
	}
	return list
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

func printSummary(out *runner.ScanOutcome) {
	fmt.Printf("Scan %s: %d candidates, %d screened, %d signals\n",
		out.FinishedAt.Format("2006-01-02"), out.CandidateCount, len(out.Universe), len(out.Signals))
	fmt.Printf("Regime: %s (score %.2f, multiplier %.2f)\n",
		out.Regime.Name, out.Regime.Score, out.Regime.Multiplier)
	if out.WarmupFailed > 0 {
		fmt.Printf("Warmup failures: %d\n", out.WarmupFailed)
	}
	if len(out.Allocations) == 0 {
		fmt.Println("No positions sized.")
		return
	}
	renderAllocations(os.Stdout, out.Allocations)
}

func renderAllocations(w io.Writer, allocations []models.PositionAllocation) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Shares", "Entry", "Stop", "Allocation", "Confidence", "Sector"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, a := range allocations {
		table.Append([]string{
			a.Symbol,
			fmt.Sprintf("%d", a.Shares),
			fmt.Sprintf("%.2f", a.EntryPrice),
			fmt.Sprintf("%.2f", a.StopPrice),
			fmt.Sprintf("%.2f", a.Allocation),
			fmt.Sprintf("%.2f", a.Confidence),
			a.Sector,
		})
	}
	table.Render()
}

type signalRow struct {
	Symbol     string  `csv:"symbol"`
	Type       string  `csv:"type"`
	Strategy   string  `csv:"strategy"`
	Date       string  `csv:"date"`
	Confidence float64 `csv:"confidence"`
}

func writeSignalsCSV(path string, signals []models.Signal) error {
	rows := make([]signalRow, 0, len(signals))
	for _, sig := range signals {
		rows = append(rows, signalRow{
			Symbol:     sig.Symbol,
			Type:       string(sig.Type),
			Strategy:   sig.Strategy,
			Date:       sig.Date.Format("2006-01-02"),
			Confidence: sig.Confidence,
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.Marshal(&rows, f)
}

func sendScanEmail(cfg *config.Config, out *runner.ScanOutcome) {
	if cfg.Notify.Email.SMTPServer == "" || cfg.Notify.Email.Recipient == "" {
		logger.Warn("email requested but smtp is not configured")
		return
	}
	subject := fmt.Sprintf("Scan %s: %d signals", out.FinishedAt.Format("2006-01-02"), len(out.Signals))
	mail := notify.NewEmail(cfg.Notify.Email)
	if err := mail.SendAlert(subject, notify.ScanEmailBody(out.Universe)); err != nil {
		logger.Warn("scan email failed: %v", err)
	}
}
