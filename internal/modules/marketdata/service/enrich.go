package service

import (
	"math"
	"strings"

	"equity_bot/internal/indicators"
	"equity_bot/internal/models"
	"equity_bot/pkg/logger"
)

const (
	DefaultVolumeWindow   = 20
	DefaultStrengthWindow = 252
)

// EnrichSeries досчитывает скрининговые колонки поверх сырого OHLCV:
// среднего объёма, всплеск объёма, 52-недельный максимум, относительную
// силу и рост к прошлому году. Окна с запасом меньше истории не ждут:
// в начале серии метрики считаются по доступному хвосту.
// fundamentals перетирает известные колонки константой на всю серию.
func EnrichSeries(series *models.PriceSeries, volumeWindow, strengthWindow int, fundamentals map[string]float64) {
	if series == nil || series.Len() == 0 {
		return
	}
	if volumeWindow <= 0 {
		volumeWindow = DefaultVolumeWindow
	}
	if strengthWindow <= 0 {
		strengthWindow = DefaultStrengthWindow
	}

	n := series.Len()
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, bar := range series.Bars {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	avgVolume := indicators.RollingMean(volumes, volumeWindow, 1)
	rollMax := indicators.RollingMax(closes, strengthWindow, 1)
	rollMin := indicators.RollingMin(closes, strengthWindow, 1)
	growth := indicators.PctChange(closes, strengthWindow)

	for i := range series.Bars {
		bar := &series.Bars[i]
		bar.AverageVolume = avgVolume[i]
		bar.VolumeChange = volumeJump(volumes[i], avgVolume[i])
		bar.FiftyTwoWeekHigh = rollMax[i]
		bar.RelativeStrength = rangePosition(closes[i], rollMin[i], rollMax[i])
		if math.IsNaN(growth[i]) {
			bar.EarningsGrowth = 0
		} else {
			bar.EarningsGrowth = growth[i]
		}
	}

	for key, value := range fundamentals {
		name := strings.ToLower(key)
		applied := false
		for i := range series.Bars {
			applied = series.Bars[i].SetField(name, value)
			if !applied {
				break
			}
		}
		if !applied {
			logger.Debug("fundamental %q has no matching column, skipped", key)
		}
	}
}

func volumeJump(volume, avg float64) float64 {
	if math.IsNaN(avg) || avg == 0 {
		return 0
	}
	return volume/avg - 1
}

// rangePosition — положение цены внутри годового диапазона, [0, 1].
func rangePosition(closePx, low, high float64) float64 {
	span := high - low
	if math.IsNaN(span) || span == 0 {
		return 0
	}
	pos := (closePx - low) / span
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}
