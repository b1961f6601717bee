package service

import (
	"sort"

	"equity_bot/internal/models"
)

// Strategy — то, что дергает сканер: по дневной серии отдать сигналы.
// Пустая или короткая серия — пустой результат без ошибки; отсутствующие
// обязательные поля — MissingFieldError со всем списком сразу.
type Strategy interface {
	Name() string
	RequiredFields() []string
	GenerateSignals(symbol string, series *models.PriceSeries) ([]models.Signal, error)
}

func checkRequired(name string, series *models.PriceSeries, required []string) error {
	missing := series.MissingFields(required)
	if len(missing) > 0 {
		return &models.MissingFieldError{Strategy: name, Fields: missing}
	}
	return nil
}

// sortedBars — копия баров по возрастанию даты; исходную серию не трогаем.
func sortedBars(s *models.PriceSeries) []models.PriceBar {
	bars := make([]models.PriceBar, s.Len())
	copy(bars, s.Bars)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}
