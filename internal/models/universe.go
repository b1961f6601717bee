package models

import (
	"math"
	"time"
)

// SymbolSnapshot — срез характеристик символа для скрининга вселенной.
// Строковые поля пустые, числовые NaN, когда источник данных ничего
// не дал.
type SymbolSnapshot struct {
	Symbol        string
	Name          string
	Sector        string
	Exchange      string
	MarketCap     float64
	LastPrice     float64
	AverageVolume float64
	DollarVolume  float64
	FloatShares   float64
	BidAskSpread  float64
	FetchedAt     time.Time
}

// Complete — снимок пригоден для скрининга: капитализация и долларовый
// оборот известны.
func (s SymbolSnapshot) Complete() bool {
	return !math.IsNaN(s.MarketCap) && !math.IsNaN(s.DollarVolume)
}
