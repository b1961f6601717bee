package service

import (
	"fmt"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
)

// NewStrategies собирает включённые стратегии из конфига.
// Пустой список strategies в yaml означает все четыре.
func NewStrategies(cfg *config.Config) ([]Strategy, error) {
	names := cfg.Strategies
	if len(names) == 0 {
		names = models.StrategyNames
	}

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case models.StrategyZanger:
			out = append(out, NewZanger(ZangerParams{
				CupLookback:       cfg.Zanger.CupLookback,
				HandleMin:         cfg.Zanger.HandleMin,
				HandleMax:         cfg.Zanger.HandleMax,
				CupDepthMin:       cfg.Zanger.CupDepthMin,
				CupDepthMax:       cfg.Zanger.CupDepthMax,
				RecoveryThreshold: cfg.Zanger.RecoveryThreshold,
				PullbackMin:       cfg.Zanger.PullbackMin,
				PullbackMax:       cfg.Zanger.PullbackMax,
				BreakoutThreshold: cfg.Zanger.BreakoutThreshold,
				VolumeMultiplier:  cfg.Zanger.VolumeMultiplier,
				VolumeWindow:      cfg.Zanger.VolumeWindow,
			}))
		case models.StrategyCANSLIM:
			strat, err := NewCanSlim(CanSlimParams{
				EarningsGrowthThreshold: cfg.CanSlim.EarningsGrowthThreshold,
				NearHighThreshold:       cfg.CanSlim.NearHighThreshold,
				VolumeIncreaseThreshold: cfg.CanSlim.VolumeIncreaseThreshold,
				MinScore:                cfg.CanSlim.MinScore,
				Weights: CanSlimWeights{
					Earnings:         cfg.CanSlim.WeightEarnings,
					RelativeStrength: cfg.CanSlim.WeightRelativeStrength,
					PriceNearHigh:    cfg.CanSlim.WeightPriceNearHigh,
					VolumeIncrease:   cfg.CanSlim.WeightVolumeIncrease,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("strategy %s: %w", name, err)
			}
			out = append(out, strat)
		case models.StrategyTrend:
			out = append(out, NewTrend(TrendParams{
				FastSpan:      cfg.Trend.FastSpan,
				SlowSpan:      cfg.Trend.SlowSpan,
				ATRPeriod:     cfg.Trend.ATRPeriod,
				ATRMultiplier: cfg.Trend.ATRMultiplier,
				MinBars:       cfg.Trend.MinBars,
			}))
		case models.StrategyLivermore:
			out = append(out, NewLivermore(LivermoreParams{
				ConsolidationWindow: cfg.Livermore.ConsolidationWindow,
				MaxRangePct:         cfg.Livermore.MaxRangePct,
				BreakoutThreshold:   cfg.Livermore.BreakoutThreshold,
				VolumeMultiplier:    cfg.Livermore.VolumeMultiplier,
				MinBars:             cfg.Livermore.MinBars,
			}))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}

// NewAggregatorFromConfig — агрегатор с весами и порогом из конфига.
func NewAggregatorFromConfig(cfg *config.Config) *SignalAggregator {
	return NewAggregator(AggregationParams{
		MinConfidence: cfg.Aggregation.MinConfidence,
		Weighting:     cfg.Aggregation.Weighting,
	})
}
