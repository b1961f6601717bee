package models

import (
	"math"
	"sort"
	"time"
)

// Канонические имена полей бара. Стратегии объявляют required-поля этими
// именами, enrichment пишет производные колонки под ними же.
const (
	FieldOpen   = "open"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldClose  = "close"
	FieldVolume = "volume"

	FieldAverageVolume    = "average_volume"
	FieldVolumeChange     = "volume_change"
	FieldFiftyTwoWeekHigh = "fifty_two_week_high"
	FieldRelativeStrength = "relative_strength"
	FieldEarningsGrowth   = "earnings_growth"
	FieldFastEMA          = "fast_ema"
	FieldSlowEMA          = "slow_ema"
	FieldATR              = "atr"
)

// PriceBar — одна дневная сессия. Базовый OHLCV обязателен, производные
// поля заполняет enrichment; отсутствующее значение = NaN, не ноль.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	AverageVolume    float64
	VolumeChange     float64
	FiftyTwoWeekHigh float64
	RelativeStrength float64
	EarningsGrowth   float64
	FastEMA          float64
	SlowEMA          float64
	ATR              float64

	// Дополнительные close-колонки других символов (широкая таблица),
	// нужны бэктесту для mark-to-close чужих позиций.
	AuxClose map[string]float64
}

// NewBar создаёт бар с базовым OHLCV; все производные поля = NaN.
func NewBar(date time.Time, open, high, low, closePx, volume float64) PriceBar {
	nan := math.NaN()
	return PriceBar{
		Date:   Day(date),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,

		AverageVolume:    nan,
		VolumeChange:     nan,
		FiftyTwoWeekHigh: nan,
		RelativeStrength: nan,
		EarningsGrowth:   nan,
		FastEMA:          nan,
		SlowEMA:          nan,
		ATR:              nan,
	}
}

// Day нормализует время к календарной дате (UTC-полночь):
// внутри системы время суток значения не имеет.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Field возвращает значение поля по каноническому имени.
// ok=false для неизвестного имени или NaN-значения производного поля.
func (b PriceBar) Field(name string) (float64, bool) {
	var v float64
	switch name {
	case FieldOpen:
		v = b.Open
	case FieldHigh:
		v = b.High
	case FieldLow:
		v = b.Low
	case FieldClose:
		v = b.Close
	case FieldVolume:
		v = b.Volume
	case FieldAverageVolume:
		v = b.AverageVolume
	case FieldVolumeChange:
		v = b.VolumeChange
	case FieldFiftyTwoWeekHigh:
		v = b.FiftyTwoWeekHigh
	case FieldRelativeStrength:
		v = b.RelativeStrength
	case FieldEarningsGrowth:
		v = b.EarningsGrowth
	case FieldFastEMA:
		v = b.FastEMA
	case FieldSlowEMA:
		v = b.SlowEMA
	case FieldATR:
		v = b.ATR
	default:
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// SetField пишет производное поле по имени. Базовый OHLCV через SetField
// не меняется.
func (b *PriceBar) SetField(name string, v float64) bool {
	switch name {
	case FieldAverageVolume:
		b.AverageVolume = v
	case FieldVolumeChange:
		b.VolumeChange = v
	case FieldFiftyTwoWeekHigh:
		b.FiftyTwoWeekHigh = v
	case FieldRelativeStrength:
		b.RelativeStrength = v
	case FieldEarningsGrowth:
		b.EarningsGrowth = v
	case FieldFastEMA:
		b.FastEMA = v
	case FieldSlowEMA:
		b.SlowEMA = v
	case FieldATR:
		b.ATR = v
	default:
		return false
	}
	return true
}

// PriceSeries — бары одного символа, строго по возрастанию даты, без
// дублей. Стратегии и движок полагаются на порядок и НЕ проверяют его:
// кто наполняет серию, тот и сортирует (Sort ниже).
type PriceSeries struct {
	Symbol string
	Bars   []PriceBar
}

func NewSeries(symbol string, bars ...PriceBar) *PriceSeries {
	s := &PriceSeries{Symbol: symbol, Bars: bars}
	s.Sort()
	return s
}

func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Sort приводит серию к контрактному порядку по дате (stable —
// на случай дублей дата-ордер входа сохраняется).
func (s *PriceSeries) Sort() {
	sort.SliceStable(s.Bars, func(i, j int) bool {
		return s.Bars[i].Date.Before(s.Bars[j].Date)
	})
}

// SearchDate — первый индекс с датой >= d (len, если такой нет).
// Это и есть "aligned date" для сигналов бэктеста.
func (s *PriceSeries) SearchDate(d time.Time) int {
	d = Day(d)
	return sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(d)
	})
}

func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i := range s.Bars {
		out[i] = s.Bars[i].Date
	}
	return out
}

func (s *PriceSeries) Closes() []float64  { return s.column(FieldClose) }
func (s *PriceSeries) Highs() []float64   { return s.column(FieldHigh) }
func (s *PriceSeries) Lows() []float64    { return s.column(FieldLow) }
func (s *PriceSeries) Volumes() []float64 { return s.column(FieldVolume) }

// Column возвращает колонку по каноническому имени; для производных полей
// отсутствующие значения остаются NaN.
func (s *PriceSeries) Column(name string) []float64 { return s.column(name) }

func (s *PriceSeries) column(name string) []float64 {
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		v, ok := s.Bars[i].Field(name)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// HasField: базовые OHLCV-колонки есть всегда, производная колонка
// считается существующей, если хотя бы один бар несёт значение.
func (s *PriceSeries) HasField(name string) bool {
	switch name {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return true
	}
	for i := range s.Bars {
		if _, ok := s.Bars[i].Field(name); ok {
			return true
		}
	}
	return false
}

// MissingFields — подмножество required-полей, которых в серии нет совсем.
func (s *PriceSeries) MissingFields(required []string) []string {
	var missing []string
	for _, f := range required {
		if !s.HasField(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
