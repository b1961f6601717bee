package service

import (
	"sort"

	"equity_bot/internal/helper"
)

// SectorAllocation — доля сектора в суммарной стоимости позиций и его
// лимит.
type SectorAllocation struct {
	Sector     string  `json:"sector"`
	Allocation float64 `json:"allocation"`
	Limit      float64 `json:"limit"`
}

// SectorBreach — сектор, превысивший лимит.
type SectorBreach struct {
	Sector     string  `json:"sector"`
	Allocation float64 `json:"allocation"`
	Limit      float64 `json:"limit"`
}

// sectorLimit — цепочка лимитов: сектор -> "other" -> 1.0.
func sectorLimit(limits map[string]float64, sector string) float64 {
	if v, ok := limits[sector]; ok {
		return v
	}
	if v, ok := limits["other"]; ok {
		return v
	}
	return 1.0
}

// CalculateSectorAllocations считает долю каждого сектора от суммарной
// стоимости позиций. Имена секторов приводятся к нижнему регистру,
// вывод отсортирован по сектору.
func CalculateSectorAllocations(positions []PositionValue, limits map[string]float64) []SectorAllocation {
	if len(positions) == 0 {
		return nil
	}

	totals := make(map[string]float64)
	total := 0.0
	for _, p := range positions {
		totals[helper.NormSector(p.Sector)] += p.Value
		total += p.Value
	}
	if total == 0 {
		return nil
	}

	sectors := make([]string, 0, len(totals))
	for s := range totals {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	out := make([]SectorAllocation, 0, len(sectors))
	for _, sector := range sectors {
		out = append(out, SectorAllocation{
			Sector:     sector,
			Allocation: totals[sector] / total,
			Limit:      sectorLimit(limits, sector),
		})
	}
	return out
}

// DetectSectorBreaches возвращает сектора, чья доля превышает лимит
// с учётом допуска.
func DetectSectorBreaches(positions []PositionValue, limits map[string]float64, tolerance float64) []SectorBreach {
	var breaches []SectorBreach
	for _, alloc := range CalculateSectorAllocations(positions, limits) {
		if alloc.Allocation > alloc.Limit+tolerance {
			breaches = append(breaches, SectorBreach{
				Sector:     alloc.Sector,
				Allocation: alloc.Allocation,
				Limit:      alloc.Limit,
			})
		}
	}
	return breaches
}
