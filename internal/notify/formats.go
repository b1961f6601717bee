package notify

import (
	"fmt"
	"strings"

	"equity_bot/internal/models"
	portfolio "equity_bot/internal/modules/portfolio/service"
)

const (
	SubjectBacktest = "Backtest Performance Summary"
	SubjectScan     = "Universe Scan Results"
	SubjectHealth   = "Portfolio Health Alerts"
)

const scanEmailTop = 10

// BacktestEmailBody — сводка метрик, при наличии — атрибуция. CSV
// приходят уже отрендеренными.
func BacktestEmailBody(performanceCSV, attributionCSV string) string {
	var b strings.Builder
	b.WriteString("Performance metrics:\n")
	b.WriteString(performanceCSV)
	if attributionCSV != "" {
		b.WriteString("\nAttribution:\n")
		b.WriteString(attributionCSV)
	}
	return b.String()
}

// ScanEmailBody — размер вселенной и верх отбора.
func ScanEmailBody(universe []models.SymbolSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Universe size: %d", len(universe))

	top := universe
	if len(top) > scanEmailTop {
		top = top[:scanEmailTop]
	}
	if len(top) > 0 {
		b.WriteString("\nTop screened symbols:\n")
		b.WriteString("symbol,sector,market_cap,dollar_volume\n")
		for _, s := range top {
			fmt.Fprintf(&b, "%s,%s,%.0f,%.0f\n", s.Symbol, s.Sector, s.MarketCap, s.DollarVolume)
		}
	}
	return b.String()
}

// HealthEmailBody — просадка, свежие алерты и нарушения секторных
// лимитов.
func HealthEmailBody(report *portfolio.HealthReport) string {
	lines := []string{fmt.Sprintf("Max drawdown: %.2f%%", report.MaxDrawdown*100)}

	if len(report.DrawdownAlerts) > 0 {
		lines = append(lines, "\nDrawdown alerts:\n"+strings.Join(report.DrawdownAlerts, "\n"))
	}
	if len(report.SectorBreaches) > 0 {
		breaches := make([]string, 0, len(report.SectorBreaches))
		for _, breach := range report.SectorBreaches {
			breaches = append(breaches, fmt.Sprintf(
				"%s: %.2f%% (limit %.2f%%)",
				breach.Sector, breach.Allocation*100, breach.Limit*100,
			))
		}
		lines = append(lines, "\nSector breaches:\n"+strings.Join(breaches, "\n"))
	}
	return strings.Join(lines, "\n")
}
