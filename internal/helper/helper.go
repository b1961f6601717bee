package helper

import (
	"math"
	"strings"
)

// Clamp зажимает v в [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 — частый случай: confidence и скоринговые компоненты.
func Clamp01(v float64) float64 { return Clamp(v, 0, 1) }

// FloorShares — целое число акций, влезающее в бюджет по данной цене.
// Эпсилон гасит двоичный шум вида 49999.999999..., чтобы не терять акцию.
func FloorShares(budget, price float64) int {
	if price <= 0 {
		return 0
	}
	n := math.Floor(budget/price + 1e-9)
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int(n)
}

// NormSymbol — канонический вид тикера: обрезка, верхний регистр.
func NormSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormSector — сектора сравниваем в нижнем регистре, пустой = "other".
func NormSector(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "other"
	}
	return s
}

// ArgMax: индекс первого максимума (при равенстве побеждает ранний).
func ArgMax(xs []float64) int {
	best := -1
	for i, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > xs[best] {
			best = i
		}
	}
	return best
}

// ArgMin: индекс первого минимума.
func ArgMin(xs []float64) int {
	best := -1
	for i, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v < xs[best] {
			best = i
		}
	}
	return best
}
