// Package service: исторические дневные бары — дисковый CSV-кэш,
// HTTP-провайдер с ретраями, обогащение производными колонками и
// параллельный прогрев кэша перед сканом.
package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

const dateLayout = "2006-01-02"

// Store — файловый кэш цен: <dir>/<interval>/<SYMBOL>.csv.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

// *Store для fx.
func NewStoreFromConfig(cfg *config.Config) *Store {
	return NewStore(filepath.Join(cfg.DataDir, "prices"))
}

type barRow struct {
	Date     string  `csv:"date"`
	Open     float64 `csv:"open"`
	High     float64 `csv:"high"`
	Low      float64 `csv:"low"`
	Close    float64 `csv:"close"`
	AdjClose float64 `csv:"adj_close"`
	Volume   float64 `csv:"volume"`
}

func (s *Store) Path(symbol, interval string) string {
	safe := strings.ReplaceAll(strings.ToUpper(symbol), "/", "-")
	return filepath.Join(s.dir, interval, safe+".csv")
}

// Save перезаписывает файл символа целиком, бары по возрастанию даты.
func (s *Store) Save(series *models.PriceSeries, interval string) error {
	path := s.Path(series.Symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	rows := make([]barRow, 0, series.Len())
	for _, bar := range series.Bars {
		rows = append(rows, barRow{
			Date:     bar.Date.Format(dateLayout),
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: bar.Close,
			Volume:   bar.Volume,
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create cache file")
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}

// Load читает кэш символа; производные колонки не хранятся и заново
// считаются обогащением.
func (s *Store) Load(symbol, interval string) (*models.PriceSeries, error) {
	f, err := os.Open(s.Path(symbol, interval))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []barRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.Wrap(err, "parse cache file")
	}
	bars := make([]models.PriceBar, 0, len(rows))
	for _, row := range rows {
		d, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, errors.Wrapf(err, "parse date %q", row.Date)
		}
		bars = append(bars, models.NewBar(d, row.Open, row.High, row.Low, row.Close, row.Volume))
	}
	return models.NewSeries(strings.ToUpper(symbol), bars...), nil
}

func (s *Store) ModTime(symbol, interval string) (time.Time, error) {
	info, err := os.Stat(s.Path(symbol, interval))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Satisfies: кэш годен, если файл свежее TTL и покрывает запрошенный
// диапазон с допуском (3 дня для дневных интервалов — выходные и
// праздники, иначе 1 день).
func (s *Store) Satisfies(req PriceRequest, ttlDays int, now time.Time) bool {
	mod, err := s.ModTime(req.Symbol, req.Interval)
	if err != nil {
		return false
	}
	if ttlDays > 0 && now.Sub(mod) > time.Duration(ttlDays)*24*time.Hour {
		return false
	}
	series, err := s.Load(req.Symbol, req.Interval)
	if err != nil || series.Len() == 0 {
		return false
	}

	tolerance := 24 * time.Hour
	if strings.HasSuffix(req.Interval, "d") {
		tolerance = 3 * 24 * time.Hour
	}
	first := series.Bars[0].Date
	last := series.Bars[series.Len()-1].Date
	if first.After(models.Day(req.Start).Add(tolerance)) {
		return false
	}
	if last.Before(models.Day(req.End).Add(-tolerance)) {
		return false
	}
	return true
}

// ClipSeries — бары внутри [start, end] включительно.
func ClipSeries(series *models.PriceSeries, start, end time.Time) *models.PriceSeries {
	start, end = models.Day(start), models.Day(end)
	var bars []models.PriceBar
	for _, bar := range series.Bars {
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		bars = append(bars, bar)
	}
	return models.NewSeries(series.Symbol, bars...)
}
