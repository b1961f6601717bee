package service

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/pkg/logger"
)

func TestArchiveSaveAndLoadRoundTrip(t *testing.T) {
	require.NoError(t, logger.Init(true))
	archive := NewArchive(t.TempDir())

	performance := []PerformanceRow{
		{Strategy: "alpha", FinalEquity: 103920, TotalReturn: 0.0392, CAGR: 0.20999999999999996, MaxDrawdown: 0, Sharpe: 1.25},
		{Strategy: "beta", FinalEquity: 98500, TotalReturn: -0.015, CAGR: -0.07, MaxDrawdown: 0.042, Sharpe: -0.3},
	}
	attribution := []AttributionRow{
		{Strategy: "alpha", Return: 0.0392, Weight: 0.75, Contribution: 0.0294},
		{Strategy: "beta", Return: -0.015, Weight: 0.25, Contribution: -0.00375},
	}
	combined := curveOf(100000, 101200, 102750)

	require.NoError(t, archive.Save(performance, attribution, combined))

	for _, rel := range []string{
		filepath.Join("performance", "metrics.csv"),
		filepath.Join("performance", "attribution.csv"),
		filepath.Join("combined", "summary.csv"),
		filepath.Join("combined", "equity_curve.csv"),
	} {
		_, err := os.Stat(filepath.Join(archive.Dir(), rel))
		assert.NoError(t, err, rel)
	}

	loadedPerf, err := archive.LoadPerformance()
	require.NoError(t, err)
	assert.Equal(t, performance, loadedPerf)

	loadedAttr, err := archive.LoadAttribution()
	require.NoError(t, err)
	assert.Equal(t, attribution, loadedAttr)

	loadedCurve, err := archive.LoadCombinedCurve()
	require.NoError(t, err)
	assert.Equal(t, combined, loadedCurve)
}

func TestArchiveLoadMissingFile(t *testing.T) {
	archive := NewArchive(t.TempDir())
	_, err := archive.LoadPerformance()
	require.Error(t, err)
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer
	RenderPerformanceTable(&buf, []PerformanceRow{
		{Strategy: "alpha", FinalEquity: 103920, TotalReturn: 0.0392, CAGR: 0.059, MaxDrawdown: 0.01, Sharpe: 1.25},
	})
	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "103920.00")
	assert.Contains(t, out, "3.92%")

	buf.Reset()
	RenderAttributionTable(&buf, []AttributionRow{
		{Strategy: "alpha", Return: 0.0392, Weight: 1, Contribution: 0.0392},
	})
	out = buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "100.00%")
}
