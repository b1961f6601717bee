package models

// PositionAllocation — решение сайзера по одному сигналу: сколько акций
// брать и с каким стопом. Неизменяемо после выдачи.
type PositionAllocation struct {
	Symbol     string
	Shares     int
	Allocation float64 // Shares * EntryPrice
	Confidence float64
	Sector     string
	EntryPrice float64
	StopPrice  float64
}
