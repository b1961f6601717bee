package runner

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

// Manager гоняет скан по расписанию в фоновой горутине.
type Manager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	scanner *Scanner
	cfg     *config.Config

	now func() time.Time
}

// *Manager для fx.
func NewManager(scanner *Scanner, cfg *config.Config) *Manager {
	return &Manager{
		scanner: scanner,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start запускает воркер расписания (если ещё не запущен). Кривое
// расписание отлавливается сразу, до старта горутины.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("scan schedule already running")
	}
	if _, err := NextRun(m.now(), m.cfg.Schedule); err != nil {
		return errors.Wrap(err, "validate schedule")
	}

	// свой контекст: ctx хука fx живёт только на время старта
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

// Stop — мягко гасит воркер и ждёт его завершения.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		next, err := NextRun(m.now(), m.cfg.Schedule)
		if err != nil {
			logger.Warn("scan schedule broken, worker stopped: %v", err)
			return
		}
		logger.Info("next scan scheduled for %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(m.now())):
		}

		if _, err := m.scanner.Run(ctx, ScanRequest{Persist: true}); err != nil {
			logger.Warn("scheduled scan failed: %v", err)
		}
	}
}
