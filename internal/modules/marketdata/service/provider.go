package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

// PriceRequest — запрос истории котировок за диапазон дат.
type PriceRequest struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval string
}

// PriceResult несёт серию и признак, что ответ пришёл из кэша.
type PriceResult struct {
	Series    *models.PriceSeries
	FromCache bool
}

type PriceProvider interface {
	PriceHistory(ctx context.Context, req PriceRequest) (PriceResult, error)
}

// ProviderError — фатальный ответ источника (неверный ключ, неизвестный
// символ, битый payload); ретраи бессмысленны.
type ProviderError struct {
	Symbol  string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("market data %s: %s", e.Symbol, e.Message)
}

type rateLimitError struct {
	retryAfter time.Duration
}

func (e rateLimitError) Error() string {
	return fmt.Sprintf("market data rate limited, retry after %s", e.retryAfter)
}

// HTTPProvider тянет дневные свечи из REST-источника и пишет их
// насквозь в Store.
type HTTPProvider struct {
	client         *http.Client
	store          *Store
	baseURL        string
	apiKey         string
	ttlDays        int
	maxRetries     int
	backoff        time.Duration
	rateLimitSleep time.Duration

	// подменяются в тестах
	now   func() time.Time
	sleep func(time.Duration)
}

func NewHTTPProvider(store *Store, cfg *config.Config) *HTTPProvider {
	md := cfg.MarketData
	return &HTTPProvider{
		client:         &http.Client{Timeout: 30 * time.Second},
		store:          store,
		baseURL:        md.BaseURL,
		apiKey:         md.APIKey,
		ttlDays:        md.CacheTTLDays,
		maxRetries:     md.MaxRetries,
		backoff:        time.Duration(md.BackoffSeconds * float64(time.Second)),
		rateLimitSleep: time.Duration(md.RateLimitSleep * float64(time.Second)),
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// PriceProvider для fx.
func NewPriceProvider(store *Store, cfg *config.Config) PriceProvider {
	return NewHTTPProvider(store, cfg)
}

// PriceHistory отдаёт бары из кэша, если он свежий и покрывает диапазон,
// иначе скачивает полную историю, кэширует и обрезает до запроса.
func (p *HTTPProvider) PriceHistory(ctx context.Context, req PriceRequest) (PriceResult, error) {
	if req.Symbol == "" {
		return PriceResult{}, errors.New("empty symbol")
	}
	if req.Interval == "" {
		req.Interval = "1d"
	}
	if !req.End.After(req.Start) {
		return PriceResult{}, errors.Errorf("invalid date range %s..%s", req.Start.Format(dateLayout), req.End.Format(dateLayout))
	}

	if p.store.Satisfies(req, p.ttlDays, p.now()) {
		cached, err := p.store.Load(req.Symbol, req.Interval)
		if err == nil {
			logger.Debug("price history %s served from cache", req.Symbol)
			return PriceResult{Series: ClipSeries(cached, req.Start, req.End), FromCache: true}, nil
		}
		logger.Warn("price cache read failed for %s: %v", req.Symbol, err)
	}

	series, err := p.fetchDaily(ctx, req.Symbol)
	if err != nil {
		return PriceResult{}, err
	}
	if series.Len() == 0 {
		return PriceResult{}, errors.Errorf("no price data returned for %s", req.Symbol)
	}
	if err := p.store.Save(series, req.Interval); err != nil {
		logger.Warn("price cache write failed for %s: %v", req.Symbol, err)
	}

	clipped := ClipSeries(series, req.Start, req.End)
	if clipped.Len() == 0 {
		return PriceResult{}, errors.Errorf("no price data for %s in %s..%s",
			req.Symbol, req.Start.Format(dateLayout), req.End.Format(dateLayout))
	}
	return PriceResult{Series: clipped}, nil
}

func (p *HTTPProvider) fetchDaily(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	attempts := p.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		series, err := p.fetchOnce(ctx, symbol)
		if err == nil {
			return series, nil
		}
		lastErr = err
		switch e := err.(type) {
		case rateLimitError:
			wait := p.rateLimitSleep
			if e.retryAfter > wait {
				wait = e.retryAfter
			}
			logger.Warn("market data rate limit for %s, waiting %s", symbol, wait)
			p.sleep(wait)
		case *ProviderError:
			return nil, err
		default:
			if attempt < attempts-1 {
				p.sleep(p.backoff)
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "fetch %s after %d attempts", symbol, attempts)
}

type dailyPayload struct {
	Note        string                       `json:"Note"`
	Information string                       `json:"Information"`
	ErrMessage  string                       `json:"Error Message"`
	Series      map[string]map[string]string `json:"Time Series (Daily)"`
}

func (p *HTTPProvider) fetchOnce(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	reqURL := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=full&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(sec) * time.Second
		}
		return nil, rateLimitError{retryAfter: retryAfter}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload dailyPayload
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Note != "" {
		return nil, rateLimitError{}
	}
	if payload.Information != "" {
		return nil, &ProviderError{Symbol: symbol, Message: payload.Information}
	}
	if payload.ErrMessage != "" {
		return nil, &ProviderError{Symbol: symbol, Message: payload.ErrMessage}
	}
	if len(payload.Series) == 0 {
		return nil, &ProviderError{Symbol: symbol, Message: "payload without daily series"}
	}

	bars := make([]models.PriceBar, 0, len(payload.Series))
	for dateStr, fields := range payload.Series {
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: fmt.Sprintf("bad bar date %q", dateStr)}
		}
		open, err := parseField(fields, "1. open")
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: err.Error()}
		}
		high, err := parseField(fields, "2. high")
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: err.Error()}
		}
		low, err := parseField(fields, "3. low")
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: err.Error()}
		}
		closePx, err := parseField(fields, "4. close")
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: err.Error()}
		}
		volume, err := parseField(fields, "5. volume")
		if err != nil {
			return nil, &ProviderError{Symbol: symbol, Message: err.Error()}
		}
		bars = append(bars, models.NewBar(d, open, high, low, closePx, volume))
	}
	return models.NewSeries(symbol, bars...), nil
}

func parseField(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("bar without %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q=%q", key, raw)
	}
	return v, nil
}
