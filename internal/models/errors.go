package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MissingFieldError: у серии нет полей, которые стратегия объявила
// обязательными. Фатально для вызова стратегии, вызывающая сторона
// может пропустить стратегию и продолжить.
type MissingFieldError struct {
	Strategy string
	Fields   []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("strategy %s: series is missing required fields: %s",
		e.Strategy, strings.Join(e.Fields, ", "))
}

// InvalidCapitalError: бэктест запущен с капиталом <= 0.
type InvalidCapitalError struct {
	Capital float64
}

func (e *InvalidCapitalError) Error() string {
	return fmt.Sprintf("initial capital must be positive, got %.2f", e.Capital)
}

// EmptySeriesError: движку отдали пустую серию.
type EmptySeriesError struct {
	Symbol string
}

func (e *EmptySeriesError) Error() string {
	if e.Symbol == "" {
		return "price series is empty"
	}
	return fmt.Sprintf("price series for %s is empty", e.Symbol)
}

// MissingPriceDataError: движок не смог оценить открытую позицию —
// нет close ни в серии, ни в aux-колонках.
type MissingPriceDataError struct {
	Symbol string
	Date   time.Time
}

func (e *MissingPriceDataError) Error() string {
	return fmt.Sprintf("no close price for %s on %s", e.Symbol, e.Date.Format("2006-01-02"))
}

func IsMissingField(err error) bool {
	var target *MissingFieldError
	return errors.As(err, &target)
}
