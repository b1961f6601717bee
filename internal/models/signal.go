package models

import (
	"math"
	"sort"
	"time"
)

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Имя стратегии-агрегата в выходных сигналах.
const StrategyAggregated = "aggregated"

// Канонические ключи метаданных сигнала. Сайзер и движок резолвят цену
// входа/выхода цепочкой MetaPriceKeys, остальное читает отчётность.
const (
	MetaEntryPrice    = "entry_price"
	MetaBreakoutPrice = "breakout_price"
	MetaPrice         = "price"
	MetaClose         = "close"
	MetaStopPrice     = "stop_price"

	MetaFastEMA = "fast_ema"
	MetaSlowEMA = "slow_ema"
	MetaATR     = "atr"

	MetaLeftPeak       = "left_peak"
	MetaCupBottom      = "cup_bottom"
	MetaRightPeak      = "right_peak"
	MetaHandlePullback = "handle_pullback"
	MetaCupDepth       = "cup_depth"
	MetaRecoveryRatio  = "recovery_ratio"
	MetaBreakoutVolume = "breakout_volume"
	MetaAvgVolume      = "avg_volume"

	MetaConsolidationHigh = "consolidation_high"
	MetaConsolidationLow  = "consolidation_low"
	MetaRangePct          = "range_pct"

	MetaEarningsScore         = "earnings_score"
	MetaRelativeStrengthScore = "relative_strength_score"
	MetaPriceNearHighScore    = "price_near_high_score"
	MetaVolumeIncreaseScore   = "volume_increase_score"
	MetaTotalScore            = "total_score"
)

// MetaPriceKeys — порядок резолва цены из метаданных: первое найденное
// числовое значение останавливает цепочку.
var MetaPriceKeys = [...]string{MetaEntryPrice, MetaBreakoutPrice, MetaPrice, MetaClose}

type MetaField struct {
	Key   string
	Value float64
}

// SignalMeta — закрытый типизированный вариант метаданных вместо открытой
// map: у каждой стратегии свой состав полей, плюс MapMeta как свободный
// диагностический мешок для внешних вызовов.
type SignalMeta interface {
	// Lookup: значение по каноническому ключу; ok=false для
	// неизвестного ключа и для NaN.
	Lookup(key string) (float64, bool)
	// Fields: заполненные числовые поля в каноническом порядке
	// (детерминизм нужен агрегатору).
	Fields() []MetaField
}

// ResolveMetaPrice резолвит цену цепочкой MetaPriceKeys. Найденное
// значение <= 0 останавливает цепочку и возвращается как есть — решение
// пропустить такой сигнал принимает вызывающая сторона.
func ResolveMetaPrice(m SignalMeta) (float64, bool) {
	if m == nil {
		return 0, false
	}
	for _, key := range MetaPriceKeys {
		if v, ok := m.Lookup(key); ok {
			return v, true
		}
	}
	return 0, false
}

type Signal struct {
	Symbol     string
	Date       time.Time
	Strategy   string
	Type       SignalType
	Confidence float64
	Meta       SignalMeta
}

// BreakoutMeta — метаданные cup-and-handle: все измеренные уровни и даты.
type BreakoutMeta struct {
	LeftPeak       float64
	CupBottom      float64
	RightPeak      float64
	HandlePullback float64
	CupDepth       float64
	RecoveryRatio  float64
	BreakoutPrice  float64
	BreakoutVolume float64
	AvgVolume      float64

	LeftPeakDate  time.Time
	CupBottomDate time.Time
	RightPeakDate time.Time
}

func (m BreakoutMeta) Lookup(key string) (float64, bool) {
	switch key {
	case MetaLeftPeak:
		return m.LeftPeak, true
	case MetaCupBottom:
		return m.CupBottom, true
	case MetaRightPeak:
		return m.RightPeak, true
	case MetaHandlePullback:
		return m.HandlePullback, true
	case MetaCupDepth:
		return m.CupDepth, true
	case MetaRecoveryRatio:
		return m.RecoveryRatio, true
	case MetaBreakoutPrice:
		return m.BreakoutPrice, true
	case MetaBreakoutVolume:
		return m.BreakoutVolume, true
	case MetaAvgVolume:
		return m.AvgVolume, true
	}
	return 0, false
}

func (m BreakoutMeta) Fields() []MetaField {
	return []MetaField{
		{MetaLeftPeak, m.LeftPeak},
		{MetaCupBottom, m.CupBottom},
		{MetaRightPeak, m.RightPeak},
		{MetaHandlePullback, m.HandlePullback},
		{MetaCupDepth, m.CupDepth},
		{MetaRecoveryRatio, m.RecoveryRatio},
		{MetaBreakoutPrice, m.BreakoutPrice},
		{MetaBreakoutVolume, m.BreakoutVolume},
		{MetaAvgVolume, m.AvgVolume},
	}
}

// ScoreMeta — покомпонентный скоринг CAN-SLIM.
type ScoreMeta struct {
	EarningsScore         float64
	RelativeStrengthScore float64
	PriceNearHighScore    float64
	VolumeIncreaseScore   float64
	TotalScore            float64
}

func (m ScoreMeta) Lookup(key string) (float64, bool) {
	switch key {
	case MetaEarningsScore:
		return m.EarningsScore, true
	case MetaRelativeStrengthScore:
		return m.RelativeStrengthScore, true
	case MetaPriceNearHighScore:
		return m.PriceNearHighScore, true
	case MetaVolumeIncreaseScore:
		return m.VolumeIncreaseScore, true
	case MetaTotalScore:
		return m.TotalScore, true
	}
	return 0, false
}

func (m ScoreMeta) Fields() []MetaField {
	return []MetaField{
		{MetaEarningsScore, m.EarningsScore},
		{MetaRelativeStrengthScore, m.RelativeStrengthScore},
		{MetaPriceNearHighScore, m.PriceNearHighScore},
		{MetaVolumeIncreaseScore, m.VolumeIncreaseScore},
		{MetaTotalScore, m.TotalScore},
	}
}

// TrendMeta — EMA-кроссовер; StopPrice и ATR заполняются только на BUY
// (NaN = нет значения).
type TrendMeta struct {
	FastEMA   float64
	SlowEMA   float64
	ATR       float64
	StopPrice float64
}

func (m TrendMeta) Lookup(key string) (float64, bool) {
	var v float64
	switch key {
	case MetaFastEMA:
		v = m.FastEMA
	case MetaSlowEMA:
		v = m.SlowEMA
	case MetaATR:
		v = m.ATR
	case MetaStopPrice:
		v = m.StopPrice
	default:
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func (m TrendMeta) Fields() []MetaField {
	fields := []MetaField{
		{MetaFastEMA, m.FastEMA},
		{MetaSlowEMA, m.SlowEMA},
	}
	if !math.IsNaN(m.ATR) {
		fields = append(fields, MetaField{MetaATR, m.ATR})
	}
	if !math.IsNaN(m.StopPrice) {
		fields = append(fields, MetaField{MetaStopPrice, m.StopPrice})
	}
	return fields
}

// RangeMeta — пробой консолидации (Livermore).
type RangeMeta struct {
	ConsolidationHigh float64
	ConsolidationLow  float64
	RangePct          float64
	BreakoutPrice     float64
	BreakoutVolume    float64
	AvgVolume         float64
}

func (m RangeMeta) Lookup(key string) (float64, bool) {
	switch key {
	case MetaConsolidationHigh:
		return m.ConsolidationHigh, true
	case MetaConsolidationLow:
		return m.ConsolidationLow, true
	case MetaRangePct:
		return m.RangePct, true
	case MetaBreakoutPrice:
		return m.BreakoutPrice, true
	case MetaBreakoutVolume:
		return m.BreakoutVolume, true
	case MetaAvgVolume:
		return m.AvgVolume, true
	}
	return 0, false
}

func (m RangeMeta) Fields() []MetaField {
	return []MetaField{
		{MetaConsolidationHigh, m.ConsolidationHigh},
		{MetaConsolidationLow, m.ConsolidationLow},
		{MetaRangePct, m.RangePct},
		{MetaBreakoutPrice, m.BreakoutPrice},
		{MetaBreakoutVolume, m.BreakoutVolume},
		{MetaAvgVolume, m.AvgVolume},
	}
}

// MapMeta — свободный мешок для внешних вызовов и тестов.
// Fields отдаёт ключи отсортированными, иначе агрегат недетерминирован.
type MapMeta map[string]float64

func (m MapMeta) Lookup(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func (m MapMeta) Fields() []MetaField {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !math.IsNaN(m[k]) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	fields := make([]MetaField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, MetaField{k, m[k]})
	}
	return fields
}

// AggregateMeta — метаданные слитого сигнала: по каждому ключу —
// упорядоченный список значений всех слагаемых, плюс имена стратегий
// и их confidence параллельным списком. Keys хранит ключи в порядке
// первого появления, чтобы обходы были детерминированы.
//
// Lookup всегда ok=false: накопленные списки не скалярны, и цепочка
// резолва цены по агрегату проходит мимо — как в исходной системе.
type AggregateMeta struct {
	Keys        []string
	Values      map[string][]float64
	Strategies  []string
	Confidences []float64
}

func (m AggregateMeta) Lookup(string) (float64, bool) { return 0, false }

func (m AggregateMeta) Fields() []MetaField { return nil }
