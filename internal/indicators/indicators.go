// Package indicators — тонкая обёртка над gct-ta плюс pandas-подобные
// роллинги с min-periods, которых в gct-ta нет. Все функции возвращают
// слайсы полной длины входа; прогрев у gct-ta забит нулями, поэтому
// границы валидности отдаём явно (FirstValid*).
package indicators

import (
	"errors"
	"fmt"
	"math"

	ta "github.com/thrasher-corp/gct-ta/indicators"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrNoData        = errors.New("no data")
	ErrLengthMismatch = errors.New("input lengths mismatch")
)

// EMA по ценам закрытия. Посев — SMA на индексе period-1, раньше значения
// не определены.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema: %w", ErrInvalidPeriod)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("ema: %w", ErrNoData)
	}
	return ta.EMA(values, period), nil
}

func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: %w", ErrInvalidPeriod)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("sma: %w", ErrNoData)
	}
	return ta.SMA(values, period), nil
}

// ATR (Wilder). Определён с индекса period.
func ATR(high, low, closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr: %w", ErrInvalidPeriod)
	}
	if len(high) == 0 || len(low) == 0 || len(closes) == 0 {
		return nil, fmt.Errorf("atr: %w", ErrNoData)
	}
	if len(high) != len(low) || len(low) != len(closes) {
		return nil, fmt.Errorf("atr: %w", ErrLengthMismatch)
	}
	return ta.ATR(high, low, closes, period), nil
}

func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: %w", ErrInvalidPeriod)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("rsi: %w", ErrNoData)
	}
	return ta.RSI(values, period), nil
}

// FirstValidEMA — первый индекс, начиная с которого EMA(period) осмыслена.
func FirstValidEMA(period int) int { return period - 1 }

// FirstValidATR — то же для ATR(period).
func FirstValidATR(period int) int { return period }

// RollingMean — скользящее среднее окна window: NaN, пока в окне меньше
// minPeriods не-NaN значений (семантика rolling().mean(min_periods=...)).
func RollingMean(values []float64, window, minPeriods int) []float64 {
	return rollingApply(values, window, minPeriods, func(sum float64, n int) float64 {
		return sum / float64(n)
	})
}

func rollingApply(values []float64, window, minPeriods int, agg func(sum float64, n int) float64) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	if minPeriods <= 0 {
		minPeriods = window
	}
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		sum, n := 0.0, 0
		for j := lo; j <= i; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		if n >= minPeriods {
			out[i] = agg(sum, n)
		}
	}
	return out
}

// RollingMax / RollingMin — скользящие экстремумы с тем же min-periods
// контрактом.
func RollingMax(values []float64, window, minPeriods int) []float64 {
	return rollingExtreme(values, window, minPeriods, func(a, b float64) bool { return a > b })
}

func RollingMin(values []float64, window, minPeriods int) []float64 {
	return rollingExtreme(values, window, minPeriods, func(a, b float64) bool { return a < b })
}

func rollingExtreme(values []float64, window, minPeriods int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	if minPeriods <= 0 {
		minPeriods = window
	}
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		best, n := math.NaN(), 0
		for j := lo; j <= i; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			if n == 0 || better(values[j], best) {
				best = values[j]
			}
			n++
		}
		if n >= minPeriods {
			out[i] = best
		}
	}
	return out
}

// PctChange — values[i]/values[i-periods] - 1; NaN за границей и на нуле.
func PctChange(values []float64, periods int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if periods <= 0 {
		return out
	}
	for i := periods; i < len(values); i++ {
		prev := values[i-periods]
		if math.IsNaN(prev) || math.IsNaN(values[i]) || prev == 0 {
			continue
		}
		out[i] = values[i]/prev - 1
	}
	return out
}
