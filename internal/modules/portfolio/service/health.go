package service

import (
	"errors"
	"fmt"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

var ErrEmptyEquityCurve = errors.New("equity curve is empty")

type HealthParams struct {
	SectorLimits map[string]float64
	Alert        DrawdownAlertParams
}

// HealthReport — сводка состояния портфеля для нотификаций и дашборда.
type HealthReport struct {
	MaxDrawdown    float64        `json:"max_drawdown"`
	DrawdownAlerts []string       `json:"drawdown_alerts"`
	SectorBreaches []SectorBreach `json:"sector_breaches"`
	PositionsCount int            `json:"positions_count"`
}

// HealthMonitor сводит мониторинг просадок и секторов в один отчёт.
// Держит состояние троттлинга алертов между вызовами.
type HealthMonitor struct {
	params HealthParams
	alerts *DrawdownAlertManager
}

func NewHealthMonitor(params HealthParams) *HealthMonitor {
	if params.Alert == (DrawdownAlertParams{}) {
		params.Alert = DefaultDrawdownAlertParams()
	}
	return &HealthMonitor{
		params: params,
		alerts: NewDrawdownAlertManager(params.Alert),
	}
}

func NewHealthMonitorFromConfig(cfg *config.Config) *HealthMonitor {
	limits := cfg.Portfolio.SectorLimits
	if len(limits) == 0 {
		limits = map[string]float64{"other": cfg.Monitors.SectorMaxShare}
	}
	return NewHealthMonitor(HealthParams{
		SectorLimits: limits,
		Alert: DrawdownAlertParams{
			Threshold:       cfg.Monitors.DrawdownWarning,
			MinIntervalDays: cfg.Monitors.AlertIntervalDays,
		},
	})
}

// Evaluate собирает отчёт: максимальная просадка, свежие алерты,
// нарушения секторных лимитов и число позиций.
func (h *HealthMonitor) Evaluate(curve models.EquityCurve, positions []PositionValue) (*HealthReport, error) {
	if len(curve) == 0 {
		return nil, ErrEmptyEquityCurve
	}

	_, maxDD := Drawdowns(curve)
	alerts := h.alerts.ProcessEquityCurve(curve)
	breaches := DetectSectorBreaches(positions, h.params.SectorLimits, 0)

	messages := make([]string, 0, len(alerts))
	for _, event := range alerts {
		messages = append(messages, fmt.Sprintf(
			"Drawdown %.2f%% from %s to %s",
			event.DrawdownPct*100,
			event.PeakDate.Format(dateLayout),
			event.TroughDate.Format(dateLayout),
		))
	}

	return &HealthReport{
		MaxDrawdown:    maxDD,
		DrawdownAlerts: messages,
		SectorBreaches: breaches,
		PositionsCount: len(positions),
	}, nil
}
