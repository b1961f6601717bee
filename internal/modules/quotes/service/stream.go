// Package service: поток котировок — WebSocket-клиент с подпиской по
// символам, кэшем последних сделок и автоматическим переподключением.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"equity_bot/internal/metrics"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

const (
	// keepalive ping, иначе источник рвёт соединение
	pingInterval = 20 * time.Second

	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
)

// HealthState отмечает состояние соединения и время последнего тика.
type HealthState interface {
	SetWSConnected(bool)
	TouchTick(time.Time)
}

// Quote — последняя сделка по символу.
type Quote struct {
	Symbol string
	Price  float64
	Volume float64
	At     time.Time
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Кадр источника: type "trade" несёт пачку сделок.
type tradeFrame struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		Millis int64   `json:"t"`
	} `json:"data"`
}

type Stream struct {
	url     string
	symbols []string
	dialer  *websocket.Dialer
	state   HealthState

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu   sync.RWMutex
	last map[string]Quote

	cancel context.CancelFunc
	done   chan struct{}
}

// *Stream для fx.
func NewStream(cfg *config.Config, state HealthState) *Stream {
	return &Stream{
		url:          cfg.Quotes.URL,
		symbols:      cfg.Quotes.Symbols,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:        state,
		reconnectMin: defaultReconnectMin,
		reconnectMax: defaultReconnectMax,
		last:         make(map[string]Quote),
	}
}

// SetSymbols задаёт список подписки до Start.
func (s *Stream) SetSymbols(symbols []string) {
	s.symbols = symbols
}

// Start запускает цикл подключения в фоне.
func (s *Stream) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop останавливает цикл и ждёт его завершения.
func (s *Stream) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// LastPrice — последняя сделка по символу.
func (s *Stream) LastPrice(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.last[symbol]
	return q, ok
}

// Snapshot — копия кэша последних сделок.
func (s *Stream) Snapshot() map[string]Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Quote, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	if s.url == "" || len(s.symbols) == 0 {
		logger.Warn("quotes stream disabled: url or symbols not configured")
		return
	}

	wait := s.reconnectMin
	for {
		err := s.connectOnce(ctx)
		s.state.SetWSConnected(false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("quotes stream: %v", err)
		}

		metrics.QuoteReconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > s.reconnectMax {
			wait = s.reconnectMax
		}
	}
}

func (s *Stream) connectOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	for _, sym := range s.symbols {
		if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbol: sym}); err != nil {
			return errors.Wrapf(err, "subscribe %s", sym)
		}
	}
	s.state.SetWSConnected(true)
	logger.Info("quotes stream connected, %d symbols", len(s.symbols))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"type": "ping"})
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close() // будит ReadMessage
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		s.handleMessage(msg)
	}
}

func (s *Stream) handleMessage(msg []byte) {
	var frame tradeFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Type != "trade" || len(frame.Data) == 0 {
		return
	}

	for _, trade := range frame.Data {
		if trade.Symbol == "" || trade.Price <= 0 {
			continue
		}
		at := time.Now()
		if trade.Millis > 0 {
			at = time.UnixMilli(trade.Millis)
		}
		s.mu.Lock()
		s.last[trade.Symbol] = Quote{
			Symbol: trade.Symbol,
			Price:  trade.Price,
			Volume: trade.Volume,
			At:     at,
		}
		s.mu.Unlock()
		s.state.TouchTick(at)
		metrics.QuoteTicks.WithLabelValues(trade.Symbol).Inc()
	}
}
