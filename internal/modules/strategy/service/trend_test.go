package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/models"
)

// 60 баров плавного снижения 200→141 держат быструю EMA уверенно ниже
// медленной, затем один бар с выносом на 400 гарантирует кроссовер вверх
// ровно на нём. Истинный диапазон всех баров до выноса равен 2, поэтому
// ATR на пробойном баре считается точно: (13*2 + 260) / 14.
func trendBuyFixture() *models.PriceSeries {
	bars := make([]models.PriceBar, 0, 61)
	for i := 0; i < 60; i++ {
		c := 200 - float64(i)
		bars = append(bars, models.NewBar(day(i), c, c+1, c-1, c, 1000))
	}
	bars = append(bars, models.NewBar(day(60), 400, 401, 399, 400, 1000))
	return models.NewSeries("TEST", bars...)
}

// Зеркальная картина: рост 100→159, затем два провальных бара на 10 —
// кроссовер вниз случается на одном из них.
func trendSellFixture() *models.PriceSeries {
	bars := make([]models.PriceBar, 0, 62)
	for i := 0; i < 60; i++ {
		c := 100 + float64(i)
		bars = append(bars, models.NewBar(day(i), c, c+1, c-1, c, 1000))
	}
	bars = append(bars, models.NewBar(day(60), 10, 11, 9, 10, 1000))
	bars = append(bars, models.NewBar(day(61), 10, 11, 9, 10, 1000))
	return models.NewSeries("TEST", bars...)
}

func TestTrendBuyOnCrossover(t *testing.T) {
	strat := NewTrend(DefaultTrendParams())
	signals, err := strat.GenerateSignals("TEST", trendBuyFixture())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, models.SignalBuy, sig.Type)
	assert.Equal(t, models.StrategyTrend, sig.Strategy)
	assert.True(t, sig.Date.Equal(day(60)), "buy on the breakout bar, got %v", sig.Date)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)

	fast, ok := sig.Meta.Lookup(models.MetaFastEMA)
	require.True(t, ok)
	slow, ok := sig.Meta.Lookup(models.MetaSlowEMA)
	require.True(t, ok)
	assert.Greater(t, fast, slow)

	atr, ok := sig.Meta.Lookup(models.MetaATR)
	require.True(t, ok)
	assert.InDelta(t, (13*2.0+260)/14, atr, 1e-9)
	stop, ok := sig.Meta.Lookup(models.MetaStopPrice)
	require.True(t, ok)
	assert.InDelta(t, 400-2.0*(13*2.0+260)/14, stop, 1e-9)
}

func TestTrendSellOnCrossover(t *testing.T) {
	strat := NewTrend(DefaultTrendParams())
	signals, err := strat.GenerateSignals("TEST", trendSellFixture())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, models.SignalSell, sig.Type)
	assert.True(t, sig.Date.Equal(day(60)) || sig.Date.Equal(day(61)),
		"sell on one of the crash bars, got %v", sig.Date)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)

	_, ok := sig.Meta.Lookup(models.MetaFastEMA)
	assert.True(t, ok)
	_, ok = sig.Meta.Lookup(models.MetaSlowEMA)
	assert.True(t, ok)
	// на продаже стоп и ATR не заполняются
	_, ok = sig.Meta.Lookup(models.MetaATR)
	assert.False(t, ok)
	_, ok = sig.Meta.Lookup(models.MetaStopPrice)
	assert.False(t, ok)
}

func TestTrendShortSeries(t *testing.T) {
	bars := make([]models.PriceBar, 0, 59)
	for i := 0; i < 59; i++ {
		bars = append(bars, models.NewBar(day(i), 100, 101, 99, 100, 1000))
	}
	strat := NewTrend(DefaultTrendParams())
	signals, err := strat.GenerateSignals("TEST", models.NewSeries("TEST", bars...))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestTrendFlatSeriesNoSignals(t *testing.T) {
	bars := make([]models.PriceBar, 0, 100)
	for i := 0; i < 100; i++ {
		bars = append(bars, models.NewBar(day(i), 100, 101, 99, 100, 1000))
	}
	strat := NewTrend(DefaultTrendParams())
	signals, err := strat.GenerateSignals("TEST", models.NewSeries("TEST", bars...))
	require.NoError(t, err)
	assert.Empty(t, signals)
}
