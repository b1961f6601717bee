// Package service: исполнение просайзенных сигналов по историческим барам.
// Движок детерминирован и однопоточен: один прогон — одна серия, никакого
// общего состояния между вызовами Run.
package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"equity_bot/internal/helper"
	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

// SizeFunc превращает сигналы в план покупок при заданном капитале.
// Вызывается один раз на старте прогона от стартового капитала: план
// фиксируется заранее, по ходу меняется только исполнение (хватило
// денег на бар или нет).
type SizeFunc func(signals []models.Signal, equity float64) []models.PositionAllocation

// Engine прогоняет план по дневной серии и строит кривую капитала.
// Комиссия — доля от оборота, одинаковая на вход и на выход.
type Engine struct {
	transactionCost float64
}

func NewEngine(transactionCost float64) (*Engine, error) {
	if transactionCost < 0 {
		return nil, fmt.Errorf("transaction cost must be >= 0, got %v", transactionCost)
	}
	return &Engine{transactionCost: transactionCost}, nil
}

// *Engine для fx.
func NewEngineFromConfig(cfg *config.Config) (*Engine, error) {
	return NewEngine(cfg.Backtest.TransactionCost)
}

// Позиция живёт от одного BUY-филла до одного SELL целиком,
// частичных выходов нет.
type openPosition struct {
	shares     int
	entryPrice float64
	entryFees  float64
	entryDate  time.Time
	strategy   string
}

// plannedBuy — аллокация сайзера, сопоставленная конкретному BUY-сигналу.
type plannedBuy struct {
	alloc models.PositionAllocation
	sig   models.Signal
}

// Run исполняет сигналы по серии symbol. Покупки исполняются по цене входа
// из плана сайзера (урезаясь до того, что позволяет кэш), продажи — по цене
// из метаданных сигнала либо по close бара. Кривая капитала несёт ровно одну
// точку на каждый бар серии: кэш плюс mark-to-close открытых позиций.
func (e *Engine) Run(series *models.PriceSeries, signals []models.Signal, size SizeFunc, initialCapital float64, symbol string) (*models.BacktestResult, error) {
	if series.Len() == 0 {
		return nil, &models.EmptySeriesError{Symbol: symbol}
	}
	if initialCapital <= 0 {
		return nil, &models.InvalidCapitalError{Capital: initialCapital}
	}

	var planned []models.PositionAllocation
	if size != nil {
		planned = size(signals, initialCapital)
	}
	buys, sells := schedule(series, signals, planned)

	cash := initialCapital
	positions := map[string]openPosition{}
	var trades []models.TradeRecord
	curve := make(models.EquityCurve, 0, series.Len())

	for i := range series.Bars {
		bar := series.Bars[i]

		for _, pb := range buys[i] {
			if _, open := positions[pb.alloc.Symbol]; open {
				continue // переоткрытие не поддерживается
			}
			price := pb.alloc.EntryPrice
			if price <= 0 {
				continue
			}
			shares := pb.alloc.Shares
			if affordable := helper.FloorShares(cash, price*(1+e.transactionCost)); shares > affordable {
				shares = affordable
			}
			if shares <= 0 {
				continue
			}
			value := float64(shares) * price
			fees := value * e.transactionCost
			cash -= value + fees
			positions[pb.alloc.Symbol] = openPosition{
				shares:     shares,
				entryPrice: price,
				entryFees:  fees,
				entryDate:  bar.Date,
				strategy:   pb.sig.Strategy,
			}
			trades = append(trades, models.TradeRecord{
				Action:   models.SignalBuy,
				Symbol:   pb.alloc.Symbol,
				Date:     bar.Date,
				Shares:   shares,
				Price:    price,
				Value:    value,
				Fees:     fees,
				Strategy: pb.sig.Strategy,
			})
		}

		for _, sig := range sells[i] {
			pos, open := positions[sig.Symbol]
			if !open {
				continue // продавать нечего
			}
			price, ok := models.ResolveMetaPrice(sig.Meta)
			if !ok || price <= 0 {
				var err error
				price, err = closeFor(bar, sig.Symbol, symbol)
				if err != nil {
					return nil, err
				}
			}
			proceeds := float64(pos.shares) * price
			fees := proceeds * e.transactionCost
			pnl := proceeds - fees - float64(pos.shares)*pos.entryPrice - pos.entryFees
			cash += proceeds - fees
			delete(positions, sig.Symbol)
			trades = append(trades, models.TradeRecord{
				Action:   models.SignalSell,
				Symbol:   sig.Symbol,
				Date:     bar.Date,
				Shares:   pos.shares,
				Price:    price,
				Value:    proceeds,
				Fees:     fees,
				Strategy: sig.Strategy,
				PnL:      pnl,
			})
		}

		equity := cash
		for _, sym := range sortedSymbols(positions) {
			px, err := closeFor(bar, sym, symbol)
			if err != nil {
				return nil, err
			}
			equity += float64(positions[sym].shares) * px
		}
		curve = append(curve, models.EquityPoint{Date: bar.Date, Equity: equity})
	}

	final := curve.Last()
	return &models.BacktestResult{
		EquityCurve: curve,
		Trades:      trades,
		Metrics: map[string]float64{
			models.MetricFinal:       final,
			models.MetricTotalReturn: final/initialCapital - 1,
			models.MetricMaxDrawdown: curve.MaxDrawdown(),
			models.MetricNumTrades:   float64(len(trades)),
		},
	}, nil
}

// schedule раскладывает план покупок и SELL-сигналы по индексам баров.
// Номинальная дата сигнала выравнивается на первый бар с датой >= неё,
// сигналы за концом серии отбрасываются. Аллокации сайзера сопоставляются
// BUY-сигналам своего символа в порядке дат.
func schedule(series *models.PriceSeries, signals []models.Signal, planned []models.PositionAllocation) (buys map[int][]plannedBuy, sells map[int][]models.Signal) {
	buys = map[int][]plannedBuy{}
	sells = map[int][]models.Signal{}

	type queued struct {
		sig models.Signal
		idx int
	}
	queues := map[string][]queued{}

	ordered := make([]models.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	for _, sig := range ordered {
		idx := series.SearchDate(sig.Date)
		if idx >= series.Len() {
			continue
		}
		switch sig.Type {
		case models.SignalBuy:
			queues[sig.Symbol] = append(queues[sig.Symbol], queued{sig: sig, idx: idx})
		case models.SignalSell:
			sells[idx] = append(sells[idx], sig)
		}
	}

	for _, alloc := range planned {
		queue := queues[alloc.Symbol]
		if len(queue) == 0 {
			continue
		}
		head := queue[0]
		queues[alloc.Symbol] = queue[1:]
		buys[head.idx] = append(buys[head.idx], plannedBuy{alloc: alloc, sig: head.sig})
	}
	return buys, sells
}

// closeFor — close символа на баре: для символа прогона — его колонка close,
// для остальных — aux-колонки широкой таблицы.
func closeFor(bar models.PriceBar, sym, runSymbol string) (float64, error) {
	if sym == runSymbol && !math.IsNaN(bar.Close) {
		return bar.Close, nil
	}
	if v, ok := bar.AuxClose[sym]; ok && !math.IsNaN(v) {
		return v, nil
	}
	return 0, &models.MissingPriceDataError{Symbol: sym, Date: bar.Date}
}

func sortedSymbols(positions map[string]openPosition) []string {
	out := make([]string, 0, len(positions))
	for sym := range positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
