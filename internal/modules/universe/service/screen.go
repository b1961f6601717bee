package service

import (
	"math"
	"sort"
	"strings"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

// Screen фильтрует снимки по критериям отбора и возвращает прошедших
// по возрастанию капитализации. Снимки без капитализации или оборота
// выбывают сразу; float и спред без данных считаются нулями.
func Screen(snapshots []models.SymbolSnapshot, criteria config.UniverseConfig) []models.SymbolSnapshot {
	sectors := lowerSet(criteria.TargetSectors)
	exchanges := lowerSet(criteria.ExchangeWhitelist)

	var out []models.SymbolSnapshot
	for _, snap := range snapshots {
		if !snap.Complete() {
			continue
		}
		if snap.MarketCap < criteria.MarketCapMin || snap.MarketCap > criteria.MarketCapMax {
			continue
		}
		if snap.DollarVolume < criteria.MinDollarVolume {
			continue
		}
		if criteria.MinFloat > 0 && zeroIfNaN(snap.FloatShares) < criteria.MinFloat {
			continue
		}
		if criteria.MaxSpread > 0 && zeroIfNaN(snap.BidAskSpread) > criteria.MaxSpread {
			continue
		}
		if len(sectors) > 0 && !sectors[lowerOrNone(snap.Sector)] {
			continue
		}
		if len(exchanges) > 0 && !exchanges[lowerOrNone(snap.Exchange)] {
			continue
		}
		out = append(out, snap)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MarketCap < out[j].MarketCap })
	return out
}

func lowerSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return set
}

func lowerOrNone(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "none"
	}
	return strings.ToLower(v)
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
