package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

// LoadFundamentals ищет фундаментальные показатели символа: сначала
// <dataDir>/fundamentals/<SYMBOL>.json (обёртка {"data": {...}} или
// плоский объект), затем строку в общем <dataDir>/fundamentals.csv.
// Ключи приводятся к нижнему регистру, нечисловые значения отбрасываются.
// Нет ни файла, ни строки — возвращается пустая карта.
func LoadFundamentals(dataDir, symbol string) map[string]float64 {
	symbol = strings.ToUpper(symbol)
	if out := loadJSONFundamentals(filepath.Join(dataDir, "fundamentals", symbol+".json")); out != nil {
		return out
	}
	return loadCSVFundamentals(filepath.Join(dataDir, "fundamentals.csv"), symbol)
}

func loadJSONFundamentals(path string) map[string]float64 {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload map[string]interface{}
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		logger.Warn("fundamentals file %s unreadable: %v", path, err)
		return nil
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		payload = data
	}
	out := map[string]float64{}
	for key, value := range payload {
		if v, ok := toFloat(value); ok {
			out[strings.ToLower(key)] = v
		}
	}
	return out
}

func loadCSVFundamentals(path, symbol string) map[string]float64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	// колонки файла заранее не известны, разбираем без схемы
	records, err := csv.NewReader(f).ReadAll()
	if err != nil || len(records) < 2 {
		return nil
	}
	header := records[0]
	symbolCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil
	}

	// при дублях символа берём последнюю строку
	var match []string
	for _, row := range records[1:] {
		if symbolCol < len(row) && strings.EqualFold(strings.TrimSpace(row[symbolCol]), symbol) {
			match = row
		}
	}
	if match == nil {
		return nil
	}
	out := map[string]float64{}
	for i, name := range header {
		if i == symbolCol || i >= len(match) {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(match[i]), 64); err == nil {
			out[strings.ToLower(strings.TrimSpace(name))] = v
		}
	}
	return out
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// FundamentalsClient обновляет JSON-кэш фундаментальных показателей
// из REST-источника (function=OVERVIEW).
type FundamentalsClient struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	dataDir  string
	throttle time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// *FundamentalsClient для fx.
func NewFundamentalsClient(cfg *config.Config) *FundamentalsClient {
	md := cfg.MarketData
	return &FundamentalsClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: md.BaseURL,
		apiKey:  md.APIKey,
		dataDir: cfg.DataDir,
		// пауза между символами, чтобы не упереться в лимит источника
		throttle: time.Duration(md.BackoffSeconds * float64(time.Second)),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// CompanyOverview возвращает сырой ответ источника; числовые значения
// в нём приходят строками, конверсией занимается LoadFundamentals.
func (c *FundamentalsClient) CompanyOverview(ctx context.Context, symbol string) (map[string]interface{}, error) {
	reqURL := fmt.Sprintf("%s?function=OVERVIEW&symbol=%s&apikey=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]interface{}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, key := range []string{"Note", "Information", "Error Message"} {
		if msg, ok := payload[key].(string); ok && msg != "" {
			return nil, &ProviderError{Symbol: symbol, Message: msg}
		}
	}
	if len(payload) == 0 {
		return nil, &ProviderError{Symbol: symbol, Message: "empty overview payload"}
	}
	return payload, nil
}

// RefreshCache перекачивает фундаментальные данные по списку символов в
// <dataDir>/fundamentals/. Недоступные символы пропускаются с warn,
// возвращается число обновлённых файлов.
func (c *FundamentalsClient) RefreshCache(ctx context.Context, symbols []string) (int, error) {
	dir := filepath.Join(c.dataDir, "fundamentals")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create fundamentals dir")
	}

	refreshed := 0
	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if i > 0 && c.throttle > 0 {
			c.sleep(c.throttle)
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		overview, err := c.CompanyOverview(ctx, symbol)
		if err != nil {
			logger.Warn("fundamentals refresh %s failed: %v", symbol, err)
			continue
		}
		wrapped := map[string]interface{}{
			"symbol":     symbol,
			"updated_at": c.now().UTC().Format(time.RFC3339),
			"data":       overview,
		}
		raw, err := sonic.Marshal(wrapped)
		if err != nil {
			logger.Warn("fundamentals refresh %s failed: %v", symbol, err)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, symbol+".json"), raw, 0o644); err != nil {
			return refreshed, errors.Wrapf(err, "write fundamentals %s", symbol)
		}
		refreshed++
	}
	return refreshed, nil
}
