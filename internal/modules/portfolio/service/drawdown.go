package service

import (
	"math"
	"time"

	"equity_bot/internal/models"
)

// DrawdownEvent — одна просадка: пик, дно и глубина в долях.
type DrawdownEvent struct {
	PeakDate    time.Time
	TroughDate  time.Time
	PeakValue   float64
	TroughValue float64
	DrawdownPct float64
}

// Drawdowns возвращает серию просадок ((v - cummax) / cummax, значения
// <= 0) и максимальную просадку положительной величиной.
func Drawdowns(curve models.EquityCurve) ([]float64, float64) {
	if len(curve) == 0 {
		return nil, 0
	}

	out := make([]float64, len(curve))
	runMax := math.Inf(-1)
	minDD := 0.0
	for i, p := range curve {
		if p.Equity > runMax {
			runMax = p.Equity
		}
		if runMax != 0 {
			out[i] = (p.Equity - runMax) / runMax
		}
		if out[i] < minDD {
			minDD = out[i]
		}
	}
	return out, math.Abs(minDD)
}

// DetectDrawdownEvents выделяет просадки глубже threshold. Событие
// фиксируется при первом пересечении порога; углубление того же дна
// нового события не даёт, новый максимум сбрасывает состояние.
func DetectDrawdownEvents(curve models.EquityCurve, threshold float64) []DrawdownEvent {
	if len(curve) == 0 {
		return nil
	}

	peak := curve[0]
	trough := curve[0]
	inDrawdown := false

	var events []DrawdownEvent
	for _, p := range curve {
		if p.Equity >= peak.Equity {
			peak = p
			trough = p
			inDrawdown = false
			continue
		}
		if p.Equity < trough.Equity {
			trough = p
			dd := 1 - trough.Equity/peak.Equity
			if dd >= threshold && !inDrawdown {
				events = append(events, DrawdownEvent{
					PeakDate:    peak.Date,
					TroughDate:  trough.Date,
					PeakValue:   peak.Equity,
					TroughValue: trough.Equity,
					DrawdownPct: dd,
				})
				inDrawdown = true
			}
		}
	}
	return events
}
