package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pinEnv прижимает переменные, которые читает NewConfig, чтобы тест не
// зависел от окружения машины. Пустое значение = дефолт хелперов.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PRESET", "MIN_CONFIDENCE", "MAX_POSITIONS", "INDIVIDUAL_STOP",
		"PORTFOLIO_STOP", "CAPITAL", "TELEGRAM_TOKEN", "DATABASE_DSN",
		"SMTP_PASSWORD",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("CONFIG_FILE", "no_such_file.yaml")
}

func TestNewConfigDefaults(t *testing.T) {
	pinEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Portfolio.MaxPositions)
	assert.Equal(t, 0.08, cfg.Portfolio.IndividualStop)
	assert.Equal(t, 0.20, cfg.Portfolio.PortfolioStop)
	assert.Equal(t, 0.5, cfg.Aggregation.MinConfidence)
	assert.Equal(t, 100_000.0, cfg.Backtest.InitialCapital)
	assert.Empty(t, cfg.Preset)
}

func TestNewConfigPresets(t *testing.T) {
	cases := []struct {
		preset        string
		maxPositions  int
		individual    float64
		portfolio     float64
		minConfidence float64
	}{
		{"safe", 5, 0.05, 0.15, 0.65},
		{"mid", 10, 0.08, 0.20, 0.50},
		{"aggr", 15, 0.12, 0.30, 0.40},
		{" SAFE ", 5, 0.05, 0.15, 0.65}, // регистр и пробелы не важны
	}
	for _, tc := range cases {
		t.Run(tc.preset, func(t *testing.T) {
			pinEnv(t)
			t.Setenv("PRESET", tc.preset)

			cfg, err := NewConfig()
			require.NoError(t, err)

			assert.Equal(t, tc.maxPositions, cfg.Portfolio.MaxPositions)
			assert.Equal(t, tc.individual, cfg.Portfolio.IndividualStop)
			assert.Equal(t, tc.portfolio, cfg.Portfolio.PortfolioStop)
			assert.Equal(t, tc.minConfidence, cfg.Aggregation.MinConfidence)
		})
	}
}

func TestNewConfigPresetWinsOverEnv(t *testing.T) {
	pinEnv(t)
	t.Setenv("MIN_CONFIDENCE", "0.9")
	t.Setenv("MAX_POSITIONS", "50")
	t.Setenv("PRESET", "aggr")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Portfolio.MaxPositions)
	assert.Equal(t, 0.40, cfg.Aggregation.MinConfidence)
}

func TestNewConfigUnknownPreset(t *testing.T) {
	pinEnv(t)
	t.Setenv("PRESET", "yolo")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preset")
}

func TestNewConfigFromFile(t *testing.T) {
	pinEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "configs"), 0o755))
	body := `preset: mid
portfolio:
  max_positions: 3
  sector_limits:
    Technology: 0.4
aggregation:
  min_confidence: 0.7
universe:
  seed_file: seeds.csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "test.yaml"), []byte(body), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "test.yaml")

	cfg, err := NewConfig()
	require.NoError(t, err)

	// пресет применяется после файла и перекрывает его значения
	assert.Equal(t, 10, cfg.Portfolio.MaxPositions)
	assert.Equal(t, 0.50, cfg.Aggregation.MinConfidence)
	assert.Equal(t, "seeds.csv", cfg.Universe.SeedFile)
	assert.Equal(t, map[string]float64{"technology": 0.4}, cfg.Portfolio.SectorLimits)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Portfolio:   PortfolioConfig{MaxPositions: 10, IndividualStop: 0.08, PortfolioStop: 0.20},
			Aggregation: AggregationConfig{MinConfidence: 0.5},
			Universe:    UniverseConfig{MarketCapMin: 50_000_000, MarketCapMax: 2_000_000_000, MaxSpread: 0.03},
			CanSlim: CanSlimConfig{
				WeightEarnings:         0.25,
				WeightRelativeStrength: 0.25,
				WeightPriceNearHigh:    0.25,
				WeightVolumeIncrease:   0.25,
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		substr string
	}{
		{"zero positions", func(c *Config) { c.Portfolio.MaxPositions = 0 }, "max_positions"},
		{"individual stop out of range", func(c *Config) { c.Portfolio.IndividualStop = 1 }, "individual_stop"},
		{"portfolio stop out of range", func(c *Config) { c.Portfolio.PortfolioStop = 0 }, "portfolio_stop"},
		{"sector limit above one", func(c *Config) { c.Portfolio.SectorLimits = map[string]float64{"tech": 1.5} }, "sector_limits"},
		{"confidence above one", func(c *Config) { c.Aggregation.MinConfidence = 1.1 }, "min_confidence"},
		{"negative strategy weight", func(c *Config) { c.Aggregation.Weighting = map[string]float64{"trend_following": -0.5} }, "weighting"},
		{"canslim weights off scale", func(c *Config) { c.CanSlim.WeightEarnings = 0.5 }, "canslim weights"},
		{"negative transaction cost", func(c *Config) { c.Backtest.TransactionCost = -0.1 }, "transaction_cost"},
		{"inverted cap range", func(c *Config) { c.Universe.MarketCapMin = c.Universe.MarketCapMax }, "market_cap_min"},
		{"spread out of range", func(c *Config) { c.Universe.MaxSpread = 1 }, "max_spread"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			require.NoError(t, cfg.validate())

			tc.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.substr)
		})
	}
}
