package service

import (
	"math"
	"sync"
	"time"

	"equity_bot/internal/models"
)

// DrawdownAlertParams — порог события и минимальный интервал между
// алертами в днях.
type DrawdownAlertParams struct {
	Threshold       float64
	MinIntervalDays int
}

func DefaultDrawdownAlertParams() DrawdownAlertParams {
	return DrawdownAlertParams{Threshold: 0.15, MinIntervalDays: 7}
}

// DrawdownAlertManager запоминает дату последнего алерта и глушит
// повторы чаще MinIntervalDays. Потокобезопасен.
type DrawdownAlertManager struct {
	params DrawdownAlertParams

	mu        sync.Mutex
	lastAlert time.Time
}

func NewDrawdownAlertManager(params DrawdownAlertParams) *DrawdownAlertManager {
	return &DrawdownAlertManager{params: params}
}

// ProcessEquityCurve возвращает события просадки, прошедшие троттлинг,
// и сдвигает дату последнего алерта.
func (m *DrawdownAlertManager) ProcessEquityCurve(curve models.EquityCurve) []DrawdownEvent {
	events := DetectDrawdownEvents(curve, m.params.Threshold)

	m.mu.Lock()
	defer m.mu.Unlock()

	var alerts []DrawdownEvent
	for _, event := range events {
		if !m.shouldAlertLocked(event.TroughDate) {
			continue
		}
		alerts = append(alerts, event)
		m.lastAlert = event.TroughDate
	}
	return alerts
}

func (m *DrawdownAlertManager) shouldAlertLocked(trough time.Time) bool {
	if m.lastAlert.IsZero() {
		return true
	}
	days := int(math.Floor(trough.Sub(m.lastAlert).Hours() / 24))
	return days >= m.params.MinIntervalDays
}
