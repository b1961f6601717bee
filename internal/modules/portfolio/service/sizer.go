// Package service: сайзинг позиций и мониторинг портфеля — просадки,
// секторная концентрация, здоровье, бумажный журнал сделок.
package service

import (
	"math"
	"sort"

	"equity_bot/internal/helper"
	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

// RiskParams — лимиты риска сайзера. Ключи SectorLimits в нижнем
// регистре; "other" служит лимитом по умолчанию.
type RiskParams struct {
	MaxPositions   int
	IndividualStop float64
	SectorLimits   map[string]float64
}

type PositionSizer struct {
	params RiskParams
}

func NewSizer(params RiskParams) *PositionSizer {
	if params.SectorLimits == nil {
		params.SectorLimits = map[string]float64{}
	}
	return &PositionSizer{params: params}
}

func NewSizerFromConfig(cfg *config.Config) *PositionSizer {
	return NewSizer(RiskParams{
		MaxPositions:   cfg.Portfolio.MaxPositions,
		IndividualStop: cfg.Portfolio.IndividualStop,
		SectorLimits:   cfg.Portfolio.SectorLimits,
	})
}

// SizePositions раскладывает капитал по BUY-сигналам в порядке убывания
// confidence, пока не заполнит MaxPositions. Цена входа берётся из
// метаданных сигнала цепочкой models.MetaPriceKeys; сигнал без пригодной
// цены пропускается. Выход — в порядке обработки.
func (s *PositionSizer) SizePositions(signals []models.Signal, equity float64, sectorMap map[string]string) []models.PositionAllocation {
	if equity <= 0 {
		return nil
	}

	maxPositions := s.params.MaxPositions
	if maxPositions < 1 {
		maxPositions = 1
	}
	base := equity / float64(maxPositions)

	allocated := make(map[string]float64, len(s.params.SectorLimits))
	for sector := range s.params.SectorLimits {
		allocated[sector] = 0
	}

	buys := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Type == models.SignalBuy {
			buys = append(buys, sig)
		}
	}
	sort.SliceStable(buys, func(i, j int) bool { return buys[i].Confidence > buys[j].Confidence })

	out := make([]models.PositionAllocation, 0, maxPositions)
	for _, sig := range buys {
		if len(out) >= maxPositions {
			break
		}

		price, ok := models.ResolveMetaPrice(sig.Meta)
		if !ok || price <= 0 {
			continue
		}

		sector := helper.NormSector(sectorMap[sig.Symbol])

		limit := sectorLimit(s.params.SectorLimits, sector)
		remaining := equity*limit - allocated[sector]
		if remaining <= 0 {
			continue
		}

		budget := math.Min(base, remaining)
		shares := helper.FloorShares(budget, price)
		if shares <= 0 {
			continue
		}

		allocation := float64(shares) * price
		out = append(out, models.PositionAllocation{
			Symbol:     sig.Symbol,
			Shares:     shares,
			Allocation: allocation,
			Confidence: sig.Confidence,
			Sector:     sector,
			EntryPrice: price,
			StopPrice:  price * (1 - s.params.IndividualStop),
		})
		allocated[sector] += allocation
	}
	return out
}
