package service

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	portfolio "equity_bot/internal/modules/portfolio/service"
	"equity_bot/pkg/logger"
)

// Archive — каталог с выгрузками бэктеста: сводка, атрибуция и
// комбинированная кривая лежат по фиксированным путям, их же читает
// дашборд.
type Archive struct {
	dir string
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// *Archive для fx.
func NewArchiveFromConfig(cfg *config.Config) *Archive {
	return NewArchive(filepath.Join(cfg.DataDir, "reports"))
}

func (a *Archive) Dir() string { return a.dir }

func (a *Archive) performancePath() string {
	return filepath.Join(a.dir, "performance", "metrics.csv")
}

func (a *Archive) attributionPath() string {
	return filepath.Join(a.dir, "performance", "attribution.csv")
}

func (a *Archive) summaryPath() string {
	return filepath.Join(a.dir, "combined", "summary.csv")
}

func (a *Archive) curvePath() string {
	return filepath.Join(a.dir, "combined", "equity_curve.csv")
}

// Save раскладывает результаты прогона по каталогу архива. В summary.csv
// уходит та же сводка, что и в metrics.csv: combined-каталог самодостаточен.
func (a *Archive) Save(performance []PerformanceRow, attribution []AttributionRow, combined models.EquityCurve) error {
	if err := writeCSV(a.performancePath(), &performance); err != nil {
		return err
	}
	logger.Info("performance metrics saved to %s", a.performancePath())

	if err := writeCSV(a.attributionPath(), &attribution); err != nil {
		return err
	}
	logger.Info("attribution saved to %s", a.attributionPath())

	if err := writeCSV(a.summaryPath(), &performance); err != nil {
		return err
	}
	logger.Info("combined summary saved to %s", a.summaryPath())

	if err := portfolio.SaveEquityCurve(a.curvePath(), combined); err != nil {
		return errors.Wrap(err, "save combined equity curve")
	}
	logger.Info("combined equity curve saved to %s", a.curvePath())
	return nil
}

func (a *Archive) LoadPerformance() ([]PerformanceRow, error) {
	var rows []PerformanceRow
	if err := readCSV(a.performancePath(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *Archive) LoadAttribution() ([]AttributionRow, error) {
	var rows []AttributionRow
	if err := readCSV(a.attributionPath(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *Archive) LoadCombinedCurve() (models.EquityCurve, error) {
	return portfolio.LoadEquityCurve(a.curvePath())
}

func writeCSV(path string, rows interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create report dir")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create report file")
	}
	defer f.Close()
	return gocsv.MarshalFile(rows, f)
}

func readCSV(path string, rows interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open report file")
	}
	defer f.Close()
	return gocsv.UnmarshalFile(f, rows)
}
