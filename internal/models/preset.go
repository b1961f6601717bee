package models

// ScanSettings — перестраиваемые пресетом параметры скана: агрессивность
// отбора и лимиты риска. Остальное (веса стратегий, секторные лимиты)
// живёт в yaml-конфиге.
type ScanSettings struct {
	MaxPositions   int
	IndividualStop float64
	PortfolioStop  float64
	MinConfidence  float64 // порог агрегатора
}

type Preset struct {
	Name        string
	Description string
	Apply       func(s *ScanSettings)
}

var Presets = map[string]Preset{
	"safe": {
		Name:        "🟢 Консервативный",
		Description: "Мало позиций, короткий стоп, берём только уверенные сигналы",
		Apply: func(s *ScanSettings) {
			s.MaxPositions = 5
			s.IndividualStop = 0.05
			s.PortfolioStop = 0.15
			s.MinConfidence = 0.65
		},
	},
	"mid": {
		Name:        "🟡 Средний",
		Description: "Баланс диверсификации и порога отбора",
		Apply: func(s *ScanSettings) {
			s.MaxPositions = 10
			s.IndividualStop = 0.08
			s.PortfolioStop = 0.20
			s.MinConfidence = 0.50
		},
	},
	"aggr": {
		Name:        "🔴 Агрессивный",
		Description: "Широкий портфель, длинный стоп, низкий порог",
		Apply: func(s *ScanSettings) {
			s.MaxPositions = 15
			s.IndividualStop = 0.12
			s.PortfolioStop = 0.30
			s.MinConfidence = 0.40
		},
	},
}
