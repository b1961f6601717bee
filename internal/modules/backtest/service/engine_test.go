package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/internal/helper"
	"equity_bot/internal/models"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func closeSeries(symbol string, closes ...float64) *models.PriceSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.NewBar(day(i), c, c, c, c, 1_000_000)
	}
	return models.NewSeries(symbol, bars...)
}

func fixedPlan(allocs ...models.PositionAllocation) SizeFunc {
	return func([]models.Signal, float64) []models.PositionAllocation { return allocs }
}

func mustEngine(t *testing.T, cost float64) *Engine {
	t.Helper()
	engine, err := NewEngine(cost)
	require.NoError(t, err)
	return engine
}

func TestEngineHalfCapitalRoundTrip(t *testing.T) {
	series := closeSeries("ASSET", 100, 102, 105, 108, 110)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(1), Strategy: models.StrategyTrend, Type: models.SignalBuy, Confidence: 0.9, Meta: models.MapMeta{models.MetaEntryPrice: 102}},
		{Symbol: "ASSET", Date: day(4), Strategy: models.StrategyTrend, Type: models.SignalSell, Confidence: 0.9, Meta: models.MapMeta{}},
	}

	// половина капитала в одну покупку
	var sizedWith []float64
	plan := func(sigs []models.Signal, equity float64) []models.PositionAllocation {
		sizedWith = append(sizedWith, equity)
		shares := helper.FloorShares(equity/2, 102)
		return []models.PositionAllocation{{
			Symbol:     "ASSET",
			Shares:     shares,
			Allocation: float64(shares) * 102,
			EntryPrice: 102,
		}}
	}

	result, err := mustEngine(t, 0).Run(series, signals, plan, 100000, "ASSET")
	require.NoError(t, err)

	// сайзер зовётся один раз, от стартового капитала
	assert.Equal(t, []float64{100000}, sizedWith)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, models.SignalBuy, buy.Action)
	assert.Equal(t, 490, buy.Shares)
	assert.Equal(t, 102.0, buy.Price)
	assert.Equal(t, 49980.0, buy.Value)
	assert.Equal(t, 0.0, buy.Fees)
	assert.Equal(t, day(1), buy.Date)
	assert.Equal(t, models.StrategyTrend, buy.Strategy)

	assert.Equal(t, models.SignalSell, sell.Action)
	assert.Equal(t, 490, sell.Shares)
	assert.Equal(t, 110.0, sell.Price) // цены в мете нет — исполняемся по close
	assert.Equal(t, 53900.0, sell.Value)
	assert.Equal(t, 3920.0, sell.PnL)
	assert.Equal(t, day(4), sell.Date)

	require.Len(t, result.EquityCurve, series.Len())
	assert.Equal(t, series.Dates(), result.EquityCurve.Dates())
	assert.Equal(t, []float64{100000, 100000, 101470, 102940, 103920}, result.EquityCurve.Values())

	assert.Equal(t, 103920.0, result.Metrics[models.MetricFinal])
	assert.InDelta(t, 0.0392, result.Metrics[models.MetricTotalReturn], 1e-9)
	assert.Equal(t, 0.0, result.Metrics[models.MetricMaxDrawdown])
	assert.Equal(t, 2.0, result.Metrics[models.MetricNumTrades])
}

func TestEngineEmptySeries(t *testing.T) {
	_, err := mustEngine(t, 0).Run(models.NewSeries("EMPTY"), nil, nil, 100000, "EMPTY")
	var target *models.EmptySeriesError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "EMPTY", target.Symbol)
}

func TestEngineInvalidCapital(t *testing.T) {
	series := closeSeries("ASSET", 100, 101)
	for _, capital := range []float64{0, -5000} {
		_, err := mustEngine(t, 0).Run(series, nil, nil, capital, "ASSET")
		var target *models.InvalidCapitalError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, capital, target.Capital)
	}
}

func TestEngineRejectsNegativeCost(t *testing.T) {
	_, err := NewEngine(-0.001)
	require.Error(t, err)

	_, err = NewEngine(0)
	require.NoError(t, err)
}

func TestEngineNoSignalsFlatCurve(t *testing.T) {
	series := closeSeries("ASSET", 100, 105, 95, 98)

	result, err := mustEngine(t, 0.001).Run(series, nil, nil, 50000, "ASSET")
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, []float64{50000, 50000, 50000, 50000}, result.EquityCurve.Values())
	assert.Equal(t, 0.0, result.Metrics[models.MetricTotalReturn])
	assert.Equal(t, 0.0, result.Metrics[models.MetricMaxDrawdown])
	assert.Equal(t, 0.0, result.Metrics[models.MetricNumTrades])
}

func TestEngineCapsSharesToAvailableCash(t *testing.T) {
	series := closeSeries("ASSET", 100, 100)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 100}},
	}
	// план на 20 акций, кэша с учётом комиссии хватает на 9
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 20, EntryPrice: 100})

	result, err := mustEngine(t, 0.001).Run(series, signals, plan, 1000, "ASSET")
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 9, result.Trades[0].Shares)
	assert.InDelta(t, 0.9, result.Trades[0].Fees, 1e-9)
	assert.InDelta(t, 999.1, result.EquityCurve[0].Equity, 1e-9)
}

func TestEngineChargesFeesBothWays(t *testing.T) {
	series := closeSeries("ASSET", 100, 110)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 100}},
		{Symbol: "ASSET", Date: day(1), Type: models.SignalSell, Meta: models.MapMeta{}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 10, EntryPrice: 100})

	result, err := mustEngine(t, 0.01).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.InDelta(t, 10, buy.Fees, 1e-9)
	assert.InDelta(t, 11, sell.Fees, 1e-9)
	// 1100 - 11 - 1000 - 10
	assert.InDelta(t, 79, sell.PnL, 1e-9)
	assert.InDelta(t, 10079, result.Metrics[models.MetricFinal], 1e-9)
}

func TestEngineAlignsSignalsToNextBar(t *testing.T) {
	bars := []models.PriceBar{
		models.NewBar(day(0), 100, 100, 100, 100, 1_000_000),
		models.NewBar(day(1), 101, 101, 101, 101, 1_000_000),
		models.NewBar(day(4), 104, 104, 104, 104, 1_000_000),
	}
	series := models.NewSeries("ASSET", bars...)
	signals := []models.Signal{
		// дата попадает в дыру серии — исполнение на следующем баре
		{Symbol: "ASSET", Date: day(2), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 104}},
		// за концом серии — отбрасывается
		{Symbol: "ASSET", Date: day(5), Type: models.SignalSell, Meta: models.MapMeta{}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 10, EntryPrice: 104})

	result, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, models.SignalBuy, result.Trades[0].Action)
	assert.Equal(t, day(4), result.Trades[0].Date)
}

func TestEngineSellsAtMetaPrice(t *testing.T) {
	series := closeSeries("ASSET", 100, 105)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 100}},
		{Symbol: "ASSET", Date: day(1), Type: models.SignalSell, Meta: models.MapMeta{models.MetaPrice: 111}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 10, EntryPrice: 100})

	result, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, 111.0, result.Trades[1].Price)
	assert.Equal(t, 110.0, result.Trades[1].PnL)
	assert.Equal(t, 10110.0, result.Metrics[models.MetricFinal])
}

func TestEngineIgnoresSellWithoutPosition(t *testing.T) {
	series := closeSeries("ASSET", 100, 101)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalSell, Meta: models.MapMeta{}},
	}

	result, err := mustEngine(t, 0).Run(series, signals, nil, 10000, "ASSET")
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, []float64{10000, 10000}, result.EquityCurve.Values())
}

func TestEngineMarksOpenPositionToClose(t *testing.T) {
	series := closeSeries("ASSET", 100, 120)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 100}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 5, EntryPrice: 100})

	result, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	// позиция не закрыта: сделка одна, капитал переоценивается по close
	assert.Equal(t, 1.0, result.Metrics[models.MetricNumTrades])
	assert.Equal(t, []float64{10000, 10100}, result.EquityCurve.Values())
}

func TestEngineSkipsRepeatBuyWhileOpen(t *testing.T) {
	series := closeSeries("ASSET", 100, 101, 102)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 100}},
		{Symbol: "ASSET", Date: day(1), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 101}},
	}
	plan := fixedPlan(
		models.PositionAllocation{Symbol: "ASSET", Shares: 5, EntryPrice: 100},
		models.PositionAllocation{Symbol: "ASSET", Shares: 5, EntryPrice: 101},
	)

	result, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, day(0), result.Trades[0].Date)
}

func TestEngineMarksForeignSymbolThroughAuxClose(t *testing.T) {
	bars := []models.PriceBar{
		models.NewBar(day(0), 100, 100, 100, 100, 1_000_000),
		models.NewBar(day(1), 101, 101, 101, 101, 1_000_000),
	}
	bars[0].AuxClose = map[string]float64{"OTHER": 55}
	bars[1].AuxClose = map[string]float64{"OTHER": 60}
	series := models.NewSeries("ASSET", bars...)

	signals := []models.Signal{
		{Symbol: "OTHER", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 50}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "OTHER", Shares: 5, EntryPrice: 50})

	result, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	require.NoError(t, err)

	// 10000 - 250 + 5*55, затем 5*60
	assert.Equal(t, []float64{10025, 10050}, result.EquityCurve.Values())
}

func TestEngineMissingPriceData(t *testing.T) {
	series := closeSeries("ASSET", 100, 101)
	signals := []models.Signal{
		{Symbol: "OTHER", Date: day(0), Type: models.SignalBuy, Meta: models.MapMeta{models.MetaEntryPrice: 50}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "OTHER", Shares: 5, EntryPrice: 50})

	_, err := mustEngine(t, 0).Run(series, signals, plan, 10000, "ASSET")
	var target *models.MissingPriceDataError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "OTHER", target.Symbol)
	assert.Equal(t, day(0), target.Date)
}

func TestEngineDeterministic(t *testing.T) {
	series := closeSeries("ASSET", 100, 102, 105, 108, 110)
	signals := []models.Signal{
		{Symbol: "ASSET", Date: day(1), Strategy: models.StrategyTrend, Type: models.SignalBuy, Confidence: 0.9, Meta: models.MapMeta{models.MetaEntryPrice: 102}},
		{Symbol: "ASSET", Date: day(4), Strategy: models.StrategyTrend, Type: models.SignalSell, Confidence: 0.9, Meta: models.MapMeta{}},
	}
	plan := fixedPlan(models.PositionAllocation{Symbol: "ASSET", Shares: 490, EntryPrice: 102})
	engine := mustEngine(t, 0)

	first, err := engine.Run(series, signals, plan, 100000, "ASSET")
	require.NoError(t, err)
	second, err := engine.Run(series, signals, plan, 100000, "ASSET")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
