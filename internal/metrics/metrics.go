// Package metrics: счётчики Prometheus, общие для всего сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteTicks — сделки, принятые из потока котировок.
	QuoteTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_bot_quote_ticks_total",
		Help: "Trade ticks received from the quotes stream.",
	}, []string{"symbol"})

	// QuoteReconnects — переподключения WebSocket.
	QuoteReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "equity_bot_quote_reconnects_total",
		Help: "Quotes stream reconnect attempts.",
	})

	// ScanRuns — прогоны сканера по исходу.
	ScanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_bot_scan_runs_total",
		Help: "Scan runs by outcome.",
	}, []string{"status"})

	// SignalsEmitted — сигналы после агрегации и сайзинга.
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_bot_signals_emitted_total",
		Help: "Signals emitted by strategy and type.",
	}, []string{"strategy", "type"})

	// NotifySends — доставка уведомлений по каналам.
	NotifySends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_bot_notify_sends_total",
		Help: "Notification deliveries by channel and outcome.",
	}, []string{"channel", "status"})
)
