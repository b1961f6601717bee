package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"equity_bot/internal/helper"
	"equity_bot/internal/modules/config"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// LedgerTrade — строка бумажного журнала. Side сравнивается без учёта
// регистра.
type LedgerTrade struct {
	Symbol    string
	Side      string
	Quantity  int
	Price     float64
	Timestamp time.Time
	Fees      float64
}

type ledgerRow struct {
	Symbol    string  `csv:"symbol"`
	Side      string  `csv:"side"`
	Quantity  int     `csv:"quantity"`
	Price     float64 `csv:"price"`
	Timestamp string  `csv:"timestamp"`
	Fees      float64 `csv:"fees"`
}

// LedgerPosition — нетто-позиция: количество и средняя цена покупок.
type LedgerPosition struct {
	Symbol   string
	Quantity int
	AvgPrice float64
}

// PaperLedger — журнал бумажных сделок с FIFO-расчётом реализованного
// PnL на decimal-арифметике. При заданном пути каждая запись
// перезаписывает CSV целиком.
type PaperLedger struct {
	path string

	mu     sync.Mutex
	trades []LedgerTrade
}

// NewPaperLedger открывает журнал. Пустой путь — журнал только в памяти;
// существующий файл подхватывается.
func NewPaperLedger(path string) (*PaperLedger, error) {
	l := &PaperLedger{path: path}
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []ledgerRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	l.trades = make([]LedgerTrade, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: bad timestamp %q: %w", path, row.Timestamp, err)
		}
		l.trades = append(l.trades, LedgerTrade{
			Symbol:    row.Symbol,
			Side:      row.Side,
			Quantity:  row.Quantity,
			Price:     row.Price,
			Timestamp: ts,
			Fees:      row.Fees,
		})
	}
	return l, nil
}

func NewLedgerFromConfig(cfg *config.Config) (*PaperLedger, error) {
	return NewPaperLedger(filepath.Join(cfg.DataDir, "ledger.csv"))
}

// RecordTrade добавляет сделку и, если задан путь, переписывает файл.
func (l *PaperLedger) RecordTrade(trade LedgerTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, trade)
	if l.path == "" {
		return nil
	}
	return l.persistLocked()
}

func (l *PaperLedger) persistLocked() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ledger dir: %w", err)
		}
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	rows := make([]ledgerRow, 0, len(l.trades))
	for _, t := range l.trades {
		rows = append(rows, ledgerRow{
			Symbol:    t.Symbol,
			Side:      t.Side,
			Quantity:  t.Quantity,
			Price:     t.Price,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Fees:      t.Fees,
		})
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.path, err)
	}
	return nil
}

func (l *PaperLedger) Trades() []LedgerTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LedgerTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Positions возвращает нетто-позиции, отсортированные по символу.
// Средняя цена считается только по покупкам.
func (l *PaperLedger) Positions() []LedgerPosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	type acc struct {
		net     int
		buyQty  int64
		buyCost decimal.Decimal
	}
	bySymbol := make(map[string]*acc)
	for _, t := range l.trades {
		a := bySymbol[t.Symbol]
		if a == nil {
			a = &acc{}
			bySymbol[t.Symbol] = a
		}
		switch strings.ToLower(t.Side) {
		case SideBuy:
			a.net += t.Quantity
			a.buyQty += int64(t.Quantity)
			a.buyCost = a.buyCost.Add(decimal.NewFromFloat(t.Price).Mul(decimal.NewFromInt(int64(t.Quantity))))
		case SideSell:
			a.net -= t.Quantity
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]LedgerPosition, 0, len(symbols))
	for _, s := range symbols {
		a := bySymbol[s]
		if a.net == 0 {
			continue
		}
		avg := 0.0
		if a.buyQty > 0 {
			avg, _ = a.buyCost.Div(decimal.NewFromInt(a.buyQty)).Float64()
		}
		out = append(out, LedgerPosition{Symbol: s, Quantity: a.net, AvgPrice: avg})
	}
	return out
}

// RealizedPnL — реализованный PnL по FIFO: продажа матчится с самыми
// ранними лотами, комиссия продажи вычитается на каждый сматченный лот.
func (l *PaperLedger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	type lot struct {
		qty   int
		price decimal.Decimal
	}
	pnl := decimal.Zero
	inventory := make(map[string][]lot)

	for _, t := range l.trades {
		price := decimal.NewFromFloat(t.Price)
		switch strings.ToLower(t.Side) {
		case SideBuy:
			inventory[t.Symbol] = append(inventory[t.Symbol], lot{qty: t.Quantity, price: price})
		case SideSell:
			fees := decimal.NewFromFloat(t.Fees)
			remaining := t.Quantity
			lots := inventory[t.Symbol]
			for remaining > 0 && len(lots) > 0 {
				matched := lots[0].qty
				if remaining < matched {
					matched = remaining
				}
				pnl = pnl.Add(price.Sub(lots[0].price).Mul(decimal.NewFromInt(int64(matched)))).Sub(fees)
				lots[0].qty -= matched
				if lots[0].qty == 0 {
					lots = lots[1:]
				}
				remaining -= matched
			}
			inventory[t.Symbol] = lots
		}
	}

	f, _ := pnl.Float64()
	return f
}

// PositionValues оценивает нетто-позиции по карте последних цен; без
// цены позиция оценивается по средней цене покупки.
func (l *PaperLedger) PositionValues(prices map[string]float64, sectorMap map[string]string, date time.Time) []PositionValue {
	positions := l.Positions()
	out := make([]PositionValue, 0, len(positions))
	for _, pos := range positions {
		px := prices[pos.Symbol]
		if px <= 0 {
			px = pos.AvgPrice
		}
		out = append(out, PositionValue{
			Symbol: pos.Symbol,
			Sector: helper.NormSector(sectorMap[pos.Symbol]),
			Date:   date,
			Value:  float64(pos.Quantity) * px,
		})
	}
	return out
}
