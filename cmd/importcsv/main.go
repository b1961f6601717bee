// Command importcsv переливает внешние CSV с дневными котировками в
// формат ценового кэша. Источники, имена колонок и формат даты
// описываются в .importcsv.yaml рядом с точкой запуска.
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"equity_bot/internal/models"
	marketdata "equity_bot/internal/modules/marketdata/service"
)

func setDefaults() {
	viper.SetDefault("out", "data/prices")
	viper.SetDefault("interval", "1d")
	viper.SetDefault("date_format", "2006-01-02")
	viper.SetDefault("columns.date", "date")
	viper.SetDefault("columns.open", "open")
	viper.SetDefault("columns.high", "high")
	viper.SetDefault("columns.low", "low")
	viper.SetDefault("columns.close", "close")
	viper.SetDefault("columns.volume", "volume")
}

// Имена колонок сравниваются без регистра.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func parsePrice(raw string) (float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(raw, 64)
}

// readSeries читает один источник целиком. Объём опционален, остальные
// колонки обязательны.
func readSeries(path, symbol, dateFormat string, cols map[string]string) (*models.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open source")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	idx := map[string]int{}
	for field, column := range cols {
		pos := columnIndex(header, column)
		if pos < 0 && field != "volume" {
			return nil, errors.Errorf("column %q not found", column)
		}
		idx[field] = pos
	}

	var bars []models.PriceBar
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		date, err := time.Parse(dateFormat, strings.TrimSpace(record[idx["date"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "parse date %q", record[idx["date"]])
		}
		var px [4]float64
		for i, field := range []string{"open", "high", "low", "close"} {
			v, err := parsePrice(record[idx[field]])
			if err != nil {
				return nil, errors.Wrapf(err, "parse %s at %s", field, date.Format("2006-01-02"))
			}
			px[i] = v
		}
		volume := 0.0
		if pos := idx["volume"]; pos >= 0 {
			if v, err := parsePrice(record[pos]); err == nil {
				volume = v
			}
		}
		bars = append(bars, models.NewBar(date, px[0], px[1], px[2], px[3], volume))
	}
	if len(bars) == 0 {
		return nil, errors.New("no data rows")
	}
	return models.NewSeries(symbol, bars...), nil
}

// Символ — имя файла без расширения, в верхнем регистре.
func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

func main() {
	viper.SetConfigName(".importcsv")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	patterns := viper.GetStringSlice("source")
	if len(patterns) == 0 {
		panic("has no source patterns in config")
	}
	files := make([]string, 0)
	for _, pattern := range patterns {
		f, err := filepath.Glob(pattern)
		if err != nil {
			panic(fmt.Errorf("get file glob: %w", err))
		}
		files = append(files, f...)
	}
	if len(files) == 0 {
		panic("source patterns matched no files")
	}

	store := marketdata.NewStore(viper.GetString("out"))
	interval := viper.GetString("interval")
	dateFormat := viper.GetString("date_format")

	// Почленно, чтобы частичный блок columns в конфиге не затирал дефолты.
	cols := map[string]string{}
	for _, field := range []string{"date", "open", "high", "low", "close", "volume"} {
		cols[field] = viper.GetString("columns." + field)
	}

	for _, file := range files {
		symbol := symbolFromPath(file)
		series, err := readSeries(file, symbol, dateFormat, cols)
		if err != nil {
			panic(fmt.Errorf("read %s: %w", file, err))
		}
		if err := store.Save(series, interval); err != nil {
			panic(fmt.Errorf("save %s: %w", symbol, err))
		}
		fmt.Printf("%s -> %s (%d bars)\n", file, store.Path(symbol, interval), series.Len())
	}
	fmt.Println("done")
}
