package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"equity_bot/internal/models"
)

const dateLayout = "2006-01-02"

// PositionValue — оценка одной позиции для мониторов: стоимость на дату
// плюс сектор. Даты должны быть нормализованы (полночь UTC).
type PositionValue struct {
	Symbol string
	Sector string
	Date   time.Time
	Value  float64
}

type equityRow struct {
	Date   string   `csv:"date"`
	Equity *float64 `csv:"equity"`
}

// LoadEquityCurve читает кривую из CSV с колонками date и equity.
// Отсутствие колонки equity — ошибка.
func LoadEquityCurve(path string) (models.EquityCurve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open equity curve: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []equityRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse equity curve %s: %w", path, err)
	}

	curve := make(models.EquityCurve, 0, len(rows))
	for _, row := range rows {
		if row.Equity == nil {
			return nil, fmt.Errorf("equity curve %s: missing equity column", path)
		}
		date, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, fmt.Errorf("equity curve %s: bad date %q: %w", path, row.Date, err)
		}
		curve = append(curve, models.EquityPoint{Date: date, Equity: *row.Equity})
	}
	return curve, nil
}

// SaveEquityCurve пишет кривую в CSV, создавая каталог при необходимости.
func SaveEquityCurve(path string, curve models.EquityCurve) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("equity curve dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create equity curve: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	rows := make([]equityRow, 0, len(curve))
	for _, p := range curve {
		eq := p.Equity
		rows = append(rows, equityRow{Date: p.Date.Format(dateLayout), Equity: &eq})
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write equity curve %s: %w", path, err)
	}
	return nil
}

// EquityCurveFromPositions строит кривую из потока стоимостей позиций:
// суммы по датам накапливаются нарастающим итогом плюс кэш. Пустой вход
// даёт одну точку с кэшем на текущий момент.
func EquityCurveFromPositions(positions []PositionValue, cash float64) models.EquityCurve {
	if len(positions) == 0 {
		return models.EquityCurve{{Date: time.Now().UTC(), Equity: cash}}
	}

	byDate := make(map[time.Time]float64, len(positions))
	for _, p := range positions {
		byDate[p.Date] += p.Value
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	curve := make(models.EquityCurve, 0, len(dates))
	running := cash
	for _, d := range dates {
		running += byDate[d]
		curve = append(curve, models.EquityPoint{Date: d, Equity: running})
	}
	return curve
}
