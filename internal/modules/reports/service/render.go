package service

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderPerformanceTable печатает сводку стратегий таблицей.
func RenderPerformanceTable(w io.Writer, rows []PerformanceRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"strategy", "final equity", "total return", "cagr", "max drawdown", "sharpe"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, row := range rows {
		table.Append([]string{
			row.Strategy,
			fmt.Sprintf("%.2f", row.FinalEquity),
			fmt.Sprintf("%.2f%%", row.TotalReturn*100),
			fmt.Sprintf("%.2f%%", row.CAGR*100),
			fmt.Sprintf("%.2f%%", row.MaxDrawdown*100),
			fmt.Sprintf("%.2f", row.Sharpe),
		})
	}
	table.Render()
}

// RenderAttributionTable печатает вклад стратегий таблицей.
func RenderAttributionTable(w io.Writer, rows []AttributionRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"strategy", "return", "weight", "contribution"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, row := range rows {
		table.Append([]string{
			row.Strategy,
			fmt.Sprintf("%.2f%%", row.Return*100),
			fmt.Sprintf("%.2f%%", row.Weight*100),
			fmt.Sprintf("%.2f%%", row.Contribution*100),
		})
	}
	table.Render()
}
