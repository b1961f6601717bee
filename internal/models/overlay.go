package models

import "time"

// MacroOverlay — снимок макро-режима на момент скана.
type MacroOverlay struct {
	Regime     string
	Score      float64
	Multiplier float64
	Factors    map[string]float64
	Notes      string
	UpdatedAt  time.Time
}

// ConfidenceComponents — разложение итоговой уверенности: база из
// агрегата и два множителя поверх.
type ConfidenceComponents struct {
	Base               float64
	MacroMultiplier    float64
	EarningsMultiplier float64
	Final              float64
}

// OverlayMeta оборачивает метаданные сигнала макро-оверлеем и оценкой
// отчётности. Lookup и Fields делегируются внутренним метаданным, так
// что цепочка резолва цены и агрегация видят исходные поля.
type OverlayMeta struct {
	Inner      SignalMeta
	Macro      MacroOverlay
	Earnings   MapMeta // nil, когда фундаментальных метрик не было
	Components ConfidenceComponents
}

func (m OverlayMeta) Lookup(key string) (float64, bool) {
	if m.Inner == nil {
		return 0, false
	}
	return m.Inner.Lookup(key)
}

func (m OverlayMeta) Fields() []MetaField {
	if m.Inner == nil {
		return nil
	}
	return m.Inner.Fields()
}
