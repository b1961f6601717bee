package models

// Имена четырёх стратегий. Набор закрытый: фабрика, веса агрегатора и
// дашборд матчатся по этим именам исчерпывающе.
const (
	StrategyZanger    = "dan_zanger_cup_handle"
	StrategyCANSLIM   = "can_slim"
	StrategyTrend     = "trend_following"
	StrategyLivermore = "livermore_breakout"
)

// StrategyNames — канонический порядок (порядок прогона в раннере).
var StrategyNames = []string{
	StrategyZanger,
	StrategyCANSLIM,
	StrategyTrend,
	StrategyLivermore,
}
