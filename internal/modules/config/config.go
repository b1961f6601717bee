package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	env "equity_bot/internal/config"
	"equity_bot/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	presetENV         = "PRESET"
)

type ZangerConfig struct {
	CupLookback       int     `yaml:"cup_lookback"`
	HandleMin         int     `yaml:"handle_min"`
	HandleMax         int     `yaml:"handle_max"`
	CupDepthMin       float64 `yaml:"cup_depth_min"`
	CupDepthMax       float64 `yaml:"cup_depth_max"`
	RecoveryThreshold float64 `yaml:"recovery_threshold"`
	PullbackMin       float64 `yaml:"handle_pullback_min"`
	PullbackMax       float64 `yaml:"handle_pullback_max"`
	BreakoutThreshold float64 `yaml:"breakout_threshold"`
	VolumeMultiplier  float64 `yaml:"volume_multiplier"`
	VolumeWindow      int     `yaml:"volume_window"`
}

type CanSlimConfig struct {
	EarningsGrowthThreshold float64 `yaml:"earnings_growth_threshold"`
	NearHighThreshold       float64 `yaml:"near_high_threshold"`
	VolumeIncreaseThreshold float64 `yaml:"volume_increase_threshold"`
	MinScore                float64 `yaml:"min_score"`

	WeightEarnings         float64 `yaml:"weight_earnings"`
	WeightRelativeStrength float64 `yaml:"weight_relative_strength"`
	WeightPriceNearHigh    float64 `yaml:"weight_price_near_high"`
	WeightVolumeIncrease   float64 `yaml:"weight_volume_increase"`
}

type TrendConfig struct {
	FastSpan      int     `yaml:"fast_span"`
	SlowSpan      int     `yaml:"slow_span"`
	ATRPeriod     int     `yaml:"atr_period"`
	ATRMultiplier float64 `yaml:"atr_multiplier"`
	MinBars       int     `yaml:"min_bars"`
}

type LivermoreConfig struct {
	ConsolidationWindow int     `yaml:"consolidation_window"`
	MaxRangePct         float64 `yaml:"max_range_pct"`
	BreakoutThreshold   float64 `yaml:"breakout_threshold"`
	VolumeMultiplier    float64 `yaml:"volume_multiplier"`
	MinBars             int     `yaml:"min_bars"`
}

type AggregationConfig struct {
	MinConfidence float64            `yaml:"min_confidence"`
	Weighting     map[string]float64 `yaml:"weighting"`
}

type PortfolioConfig struct {
	MaxPositions   int                `yaml:"max_positions"`
	IndividualStop float64            `yaml:"individual_stop"`
	PortfolioStop  float64            `yaml:"portfolio_stop"`
	SectorLimits   map[string]float64 `yaml:"sector_limits"`
}

type BacktestConfig struct {
	TransactionCost float64 `yaml:"transaction_cost"`
	InitialCapital  float64 `yaml:"initial_capital"`
}

type MonitorsConfig struct {
	DrawdownWarning   float64 `yaml:"drawdown_warning"`
	DrawdownCritical  float64 `yaml:"drawdown_critical"`
	AlertIntervalDays int     `yaml:"alert_interval_days"`
	SectorMaxShare    float64 `yaml:"sector_max_share"`
	StaleDataDays     int     `yaml:"stale_data_days"`
}

type ScheduleConfig struct {
	ScanTime string   `yaml:"scan_time"` // "18:30" локального для Timezone времени
	Timezone string   `yaml:"timezone"`
	Weekdays []string `yaml:"weekdays"`
}

type MarketDataConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	CacheTTLDays   int     `yaml:"cache_ttl_days"`
	MaxRetries     int     `yaml:"max_retries"`
	BackoffSeconds float64 `yaml:"backoff_seconds"`
	RateLimitSleep float64 `yaml:"rate_limit_sleep_seconds"`
}

type UniverseConfig struct {
	MarketCapMin      float64  `yaml:"market_cap_min"`
	MarketCapMax      float64  `yaml:"market_cap_max"`
	MinDollarVolume   float64  `yaml:"min_dollar_volume"`
	MinFloat          float64  `yaml:"min_float"`
	MaxSpread         float64  `yaml:"max_spread"`
	TargetSectors     []string `yaml:"target_sectors"`
	ExchangeWhitelist []string `yaml:"exchange_whitelist"`
	CacheTTLDays      int      `yaml:"cache_ttl_days"`
	SeedFile          string   `yaml:"seed_file"`
}

type QuotesConfig struct {
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Recipient  string `yaml:"recipient"`
	UseTLS     bool   `yaml:"use_tls"`
}

type NotifyConfig struct {
	TelegramChatID int64       `yaml:"telegram_chat_id"`
	Email          EmailConfig `yaml:"email"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
	} `yaml:"service"`

	// Какие стратегии включены в скан. Пустой список = все четыре.
	Strategies []string `yaml:"strategies"`

	// Пресет параметров скана (safe/mid/aggr); перекрывает отдельные
	// значения порога и лимитов риска.
	Preset string `yaml:"preset"`

	Zanger    ZangerConfig    `yaml:"zanger"`
	CanSlim   CanSlimConfig   `yaml:"canslim"`
	Trend     TrendConfig     `yaml:"trend"`
	Livermore LivermoreConfig `yaml:"livermore"`

	Aggregation AggregationConfig `yaml:"aggregation"`
	Portfolio   PortfolioConfig   `yaml:"portfolio"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Monitors    MonitorsConfig    `yaml:"monitors"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Universe    UniverseConfig    `yaml:"universe"`
	Quotes      QuotesConfig      `yaml:"quotes"`
	Notify      NotifyConfig      `yaml:"notify"`

	// Данные
	DataDir       string        `yaml:"data_dir"`
	WarmupWorkers int           `yaml:"warmup_workers"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
}

func NewConfig() (*Config, error) {
	config := Config{
		Zanger: ZangerConfig{
			CupLookback:       120,
			HandleMin:         5,
			HandleMax:         15,
			CupDepthMin:       0.12,
			CupDepthMax:       0.35,
			RecoveryThreshold: 0.85,
			PullbackMin:       0.05,
			PullbackMax:       0.15,
			BreakoutThreshold: 0.02,
			VolumeMultiplier:  1.5,
			VolumeWindow:      20,
		},
		CanSlim: CanSlimConfig{
			EarningsGrowthThreshold: 0.25,
			NearHighThreshold:       0.15,
			VolumeIncreaseThreshold: 0.20,
			MinScore:                0.75,
			WeightEarnings:          0.25,
			WeightRelativeStrength:  0.25,
			WeightPriceNearHigh:     0.25,
			WeightVolumeIncrease:    0.25,
		},
		Trend: TrendConfig{
			FastSpan:      10,
			SlowSpan:      30,
			ATRPeriod:     14,
			ATRMultiplier: 2.0,
			MinBars:       60,
		},
		Livermore: LivermoreConfig{
			ConsolidationWindow: 20,
			MaxRangePct:         0.15,
			BreakoutThreshold:   0.02,
			VolumeMultiplier:    1.3,
			MinBars:             40,
		},
		Aggregation: AggregationConfig{
			MinConfidence: env.FloatFromEnv("MIN_CONFIDENCE", 0.5),
		},
		Portfolio: PortfolioConfig{
			MaxPositions:   env.IntFromEnv("MAX_POSITIONS", 10),
			IndividualStop: env.FloatFromEnv("INDIVIDUAL_STOP", 0.08),
			PortfolioStop:  env.FloatFromEnv("PORTFOLIO_STOP", 0.20),
		},
		Backtest: BacktestConfig{
			TransactionCost: env.FloatFromEnv("TRANSACTION_COST", 0.001),
			InitialCapital:  env.FloatFromEnv("CAPITAL", 100000),
		},
		Monitors: MonitorsConfig{
			DrawdownWarning:   0.10,
			DrawdownCritical:  0.20,
			AlertIntervalDays: 7,
			SectorMaxShare:    0.40,
			StaleDataDays:     5,
		},
		Schedule: ScheduleConfig{
			ScanTime: env.StrFromEnv("SCAN_TIME", "18:30"),
			Timezone: env.StrFromEnv("SCAN_TZ", "America/New_York"),
			Weekdays: []string{"mon", "tue", "wed", "thu", "fri"},
		},
		MarketData: MarketDataConfig{
			BaseURL:        env.StrFromEnv("MARKET_DATA_URL", "https://www.alphavantage.co/query"),
			APIKey:         env.StrFromEnv("ALPHA_VANTAGE_KEY", ""),
			CacheTTLDays:   env.IntFromEnv("PRICE_CACHE_TTL_DAYS", 7),
			MaxRetries:     3,
			BackoffSeconds: 5,
			RateLimitSleep: 60,
		},
		Universe: UniverseConfig{
			MarketCapMin:      50_000_000,
			MarketCapMax:      2_000_000_000,
			MinDollarVolume:   500_000,
			MinFloat:          10_000_000,
			MaxSpread:         0.03,
			TargetSectors:     []string{"Technology", "Biotechnology", "Energy", "Utilities"},
			ExchangeWhitelist: []string{"NYSE", "NASDAQ", "AMEX"},
			CacheTTLDays:      7,
		},
		Quotes: QuotesConfig{
			URL: env.StrFromEnv("QUOTES_WS_URL", ""),
		},
		Notify: NotifyConfig{
			TelegramChatID: int64(env.IntFromEnv("TELEGRAM_CHAT_ID", 0)),
			Email: EmailConfig{
				SMTPPort: 587,
				UseTLS:   true,
			},
		},

		DataDir:       env.StrFromEnv("DATA_DIR", "data"),
		WarmupWorkers: env.IntFromEnv("WARMUP_WORKERS", 4),
		HTTPTimeout:   env.DurationFromEnv("HTTP_TIMEOUT", "10s"),
	}

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		// без файла остаются дефолты + env
		log.Printf("config file not found (%v), using defaults", err)
	} else {
		defer func() {
			_ = file.Close()
		}()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		config.Notify.Email.Password = pass
	}

	if name := os.Getenv(presetENV); name != "" {
		config.Preset = name
	}
	if config.Preset != "" {
		name := strings.ToLower(strings.TrimSpace(config.Preset))
		preset, ok := models.Presets[name]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", config.Preset)
		}
		settings := models.ScanSettings{
			MaxPositions:   config.Portfolio.MaxPositions,
			IndividualStop: config.Portfolio.IndividualStop,
			PortfolioStop:  config.Portfolio.PortfolioStop,
			MinConfidence:  config.Aggregation.MinConfidence,
		}
		preset.Apply(&settings)
		config.Portfolio.MaxPositions = settings.MaxPositions
		config.Portfolio.IndividualStop = settings.IndividualStop
		config.Portfolio.PortfolioStop = settings.PortfolioStop
		config.Aggregation.MinConfidence = settings.MinConfidence
		log.Printf("scan preset %q applied (%s)", name, preset.Name)
	}

	// ключи секторов сверяем в нижнем регистре
	if len(config.Portfolio.SectorLimits) > 0 {
		normalized := make(map[string]float64, len(config.Portfolio.SectorLimits))
		for k, v := range config.Portfolio.SectorLimits {
			normalized[strings.ToLower(strings.TrimSpace(k))] = v
		}
		config.Portfolio.SectorLimits = normalized
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Portfolio.MaxPositions <= 0 {
		return fmt.Errorf("portfolio.max_positions must be > 0, got %d", c.Portfolio.MaxPositions)
	}
	if c.Portfolio.IndividualStop <= 0 || c.Portfolio.IndividualStop >= 1 {
		return fmt.Errorf("portfolio.individual_stop must be in (0, 1), got %v", c.Portfolio.IndividualStop)
	}
	if c.Portfolio.PortfolioStop <= 0 || c.Portfolio.PortfolioStop >= 1 {
		return fmt.Errorf("portfolio.portfolio_stop must be in (0, 1), got %v", c.Portfolio.PortfolioStop)
	}
	for sector, limit := range c.Portfolio.SectorLimits {
		if limit <= 0 || limit > 1 {
			return fmt.Errorf("portfolio.sector_limits[%s] must be in (0, 1], got %v", sector, limit)
		}
	}
	if c.Aggregation.MinConfidence < 0 || c.Aggregation.MinConfidence > 1 {
		return fmt.Errorf("aggregation.min_confidence must be in [0, 1], got %v", c.Aggregation.MinConfidence)
	}
	for name, w := range c.Aggregation.Weighting {
		if w < 0 {
			return fmt.Errorf("aggregation.weighting[%s] must be >= 0, got %v", name, w)
		}
	}
	// Сумма весов фиксирует шкалу скора: composite обязан жить в [0, 1].
	sum := c.CanSlim.WeightEarnings + c.CanSlim.WeightRelativeStrength +
		c.CanSlim.WeightPriceNearHigh + c.CanSlim.WeightVolumeIncrease
	if math.Abs(sum-1) > 0.01 {
		return fmt.Errorf("canslim weights must sum to 1, got %v", sum)
	}
	if c.Backtest.TransactionCost < 0 {
		return fmt.Errorf("backtest.transaction_cost must be >= 0, got %v", c.Backtest.TransactionCost)
	}
	if c.Universe.MarketCapMin >= c.Universe.MarketCapMax {
		return fmt.Errorf("universe.market_cap_min must be less than market_cap_max, got %v >= %v",
			c.Universe.MarketCapMin, c.Universe.MarketCapMax)
	}
	if c.Universe.MaxSpread <= 0 || c.Universe.MaxSpread >= 1 {
		return fmt.Errorf("universe.max_spread must be in (0, 1), got %v", c.Universe.MaxSpread)
	}
	return nil
}
