package service

import (
	"context"
	"sync"
	"time"

	"equity_bot/internal/models"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

// Warmuper параллельно прогревает ценовой кэш перед сканом.
type Warmuper struct {
	provider PriceProvider

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

// *Warmuper для fx.
func NewWarmuper(provider PriceProvider, cfg *config.Config) *Warmuper {
	workers := cfg.WarmupWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Warmuper{
		provider: provider,
		sem:      make(chan struct{}, workers),
	}
}

// BatchResult — итог прогрева: серии по символам и ошибки по тем, кого
// прогреть не удалось.
type BatchResult struct {
	Results        map[string]*models.PriceSeries
	Failed         map[string]error
	FromCacheCount int
	FetchedCount   int
}

// WarmUp качает историю по каждому символу; упавшие символы не валят
// партию, их ошибки копятся в Failed.
func (w *Warmuper) WarmUp(ctx context.Context, symbols []string, start, end time.Time, interval string) BatchResult {
	batch := BatchResult{
		Results: map[string]*models.PriceSeries{},
		Failed:  map[string]error{},
	}
	if len(symbols) == 0 {
		return batch
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, sym := range symbols {
		sym := sym
		if sym == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			res, err := w.provider.PriceHistory(ctx, PriceRequest{
				Symbol:   sym,
				Start:    start,
				End:      end,
				Interval: interval,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("warmup %s failed: %v", sym, err)
				batch.Failed[sym] = err
				return
			}
			batch.Results[sym] = res.Series
			if res.FromCache {
				batch.FromCacheCount++
			} else {
				batch.FetchedCount++
			}
		}()
	}
	wg.Wait()

	logger.Info("warmup done: %d symbols (%d from cache, %d fetched), %d failed",
		len(batch.Results), batch.FromCacheCount, batch.FetchedCount, len(batch.Failed))
	return batch
}
