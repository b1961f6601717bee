package service

import (
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"equity_bot/internal/indicators"
	"equity_bot/internal/modules/config"
	marketdata "equity_bot/internal/modules/marketdata/service"
	portfolio "equity_bot/internal/modules/portfolio/service"
	quotes "equity_bot/internal/modules/quotes/service"
	reports "equity_bot/internal/modules/reports/service"
)

const (
	dailyInterval = "1d"
	rsiPeriod     = 14
)

// QuoteSource — кэш последних сделок стримера котировок.
type QuoteSource interface {
	LastPrice(symbol string) (quotes.Quote, bool)
	Snapshot() map[string]quotes.Quote
}

// WatchlistRow — срез по символу: последняя сделка плюс техника по
// дневному кэшу. Отсутствующие значения опускаются.
type WatchlistRow struct {
	Symbol    string     `json:"symbol"`
	LastPrice *float64   `json:"last_price,omitempty"`
	QuoteAt   *time.Time `json:"quote_at,omitempty"`
	Close     *float64   `json:"close,omitempty"`
	FastEMA   *float64   `json:"fast_ema,omitempty"`
	SlowEMA   *float64   `json:"slow_ema,omitempty"`
	ATR       *float64   `json:"atr,omitempty"`
	RSI       *float64   `json:"rsi,omitempty"`
	Bars      int        `json:"bars"`
}

type Server struct {
	state   *State
	quotes  QuoteSource
	store   *marketdata.Store
	archive *reports.Archive
	ledger  *portfolio.PaperLedger
	health  *portfolio.HealthMonitor

	symbols   []string
	fastSpan  int
	slowSpan  int
	atrPeriod int
}

// *Server для fx.
func NewServer(
	cfg *config.Config,
	state *State,
	source QuoteSource,
	store *marketdata.Store,
	archive *reports.Archive,
	ledger *portfolio.PaperLedger,
	health *portfolio.HealthMonitor,
) *Server {
	return &Server{
		state:     state,
		quotes:    source,
		store:     store,
		archive:   archive,
		ledger:    ledger,
		health:    health,
		symbols:   cfg.Quotes.Symbols,
		fastSpan:  cfg.Trend.FastSpan,
		slowSpan:  cfg.Trend.SlowSpan,
		atrPeriod: cfg.Trend.ATRPeriod,
	}
}

func (s *Server) Livez(w http.ResponseWriter, r *http.Request) {
	// liveness: процесс жив
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	// readiness: сервис готов обслуживать трафик
	if !s.state.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	// полезный JSON для отладки
	resp := map[string]any{
		"ready":        s.state.Ready(),
		"wsConnected":  s.state.WSConnected(),
		"uptimeSec":    int64(s.state.Uptime().Seconds()),
		"lastTickUnix": unixOrZeroInt(s.state.LastTick()),
		"lastScanUnix": unixOrZeroInt(s.state.LastScan()),
	}
	writeJSON(w, resp)
}

// Watchlist отдаёт техсрез по каждому наблюдаемому символу. Символы без
// дневного кэша остаются в ответе с одними котировками.
func (s *Server) Watchlist(w http.ResponseWriter, r *http.Request) {
	rows := make([]WatchlistRow, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		rows = append(rows, s.watchRow(symbol))
	}
	writeJSON(w, rows)
}

func (s *Server) watchRow(symbol string) WatchlistRow {
	row := WatchlistRow{Symbol: symbol}
	if q, ok := s.quotes.LastPrice(symbol); ok {
		row.LastPrice = optional(q.Price)
		at := q.At
		row.QuoteAt = &at
	}

	series, err := s.store.Load(symbol, dailyInterval)
	if err != nil {
		return row
	}
	row.Bars = series.Len()

	closes := series.Closes()
	if n := len(closes); n > 0 {
		row.Close = optional(closes[n-1])
	}
	row.FastEMA = tailEMA(closes, s.fastSpan)
	row.SlowEMA = tailEMA(closes, s.slowSpan)
	row.RSI = tailRSI(closes, rsiPeriod)
	row.ATR = tailATR(series.Highs(), series.Lows(), closes, s.atrPeriod)
	return row
}

func (s *Server) Reports(w http.ResponseWriter, r *http.Request) {
	perf, err := s.archive.LoadPerformance()
	if err != nil {
		http.Error(w, "no reports yet", http.StatusNotFound)
		return
	}
	attr, err := s.archive.LoadAttribution()
	if err != nil {
		attr = nil
	}
	writeJSON(w, struct {
		Performance []reports.PerformanceRow `json:"performance"`
		Attribution []reports.AttributionRow `json:"attribution"`
	}{Performance: perf, Attribution: attr})
}

// PortfolioHealth оценивает портфель по комбинированной кривой и текущим
// позициям журнала, размеченным последними котировками.
func (s *Server) PortfolioHealth(w http.ResponseWriter, r *http.Request) {
	curve, err := s.archive.LoadCombinedCurve()
	if err != nil {
		http.Error(w, "no combined equity curve yet", http.StatusNotFound)
		return
	}

	prices := make(map[string]float64)
	for symbol, q := range s.quotes.Snapshot() {
		prices[symbol] = q.Price
	}
	positions := s.ledger.PositionValues(prices, nil, time.Now())

	report, err := s.health.Evaluate(curve, positions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func unixOrZeroInt(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func tailEMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	out, err := indicators.EMA(closes, period)
	if err != nil {
		return nil
	}
	return optional(out[len(out)-1])
}

func tailRSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}
	out, err := indicators.RSI(closes, period)
	if err != nil {
		return nil
	}
	return optional(out[len(out)-1])
}

func tailATR(highs, lows, closes []float64, period int) *float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}
	out, err := indicators.ATR(highs, lows, closes, period)
	if err != nil {
		return nil
	}
	return optional(out[len(out)-1])
}
