// Package service: постоянное хранение результатов — прогоны сканера с
// сигналами, итоги бэктестов и история метрик в Postgres.
package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"equity_bot/internal/models"
	"equity_bot/pkg/db"
)

// ErrDisabled возвращают методы стора, когда DSN не задан.
var ErrDisabled = errors.New("postgres store is disabled")

// Таблицы создаются по одной: пул работает расширенным протоколом,
// склеивать DDL в один Exec нельзя.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS scan_runs (
		id              UUID PRIMARY KEY,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL,
		symbols_scanned INTEGER NOT NULL,
		signals_found   INTEGER NOT NULL,
		regime          TEXT NOT NULL DEFAULT '',
		regime_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		notes           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS scan_signals (
		id          UUID PRIMARY KEY,
		scan_id     UUID NOT NULL REFERENCES scan_runs (id) ON DELETE CASCADE,
		symbol      TEXT NOT NULL,
		signal_date DATE NOT NULL,
		strategy    TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL,
		meta        JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS scan_signals_scan_idx ON scan_signals (scan_id)`,
	`CREATE INDEX IF NOT EXISTS scan_signals_symbol_idx ON scan_signals (symbol, signal_date)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id              UUID PRIMARY KEY,
		strategy        TEXT NOT NULL,
		symbols         JSONB NOT NULL DEFAULT '[]',
		start_date      DATE NOT NULL,
		end_date        DATE NOT NULL,
		initial_capital DOUBLE PRECISION NOT NULL,
		final_value     DOUBLE PRECISION NOT NULL,
		total_return    DOUBLE PRECISION NOT NULL,
		max_drawdown    DOUBLE PRECISION NOT NULL,
		num_trades      INTEGER NOT NULL,
		sharpe          DOUBLE PRECISION NOT NULL,
		cagr            DOUBLE PRECISION NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metric_history (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS metric_history_name_idx ON metric_history (name, recorded_at)`,
}

const (
	insertScanSQL = `
INSERT INTO scan_runs (id, started_at, finished_at, symbols_scanned, signals_found, regime, regime_score, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertSignalSQL = `
INSERT INTO scan_signals (id, scan_id, symbol, signal_date, strategy, signal_type, confidence, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`

	selectSignalsSQL = `
SELECT id, scan_id, symbol, signal_date, strategy, signal_type, confidence, meta, created_at
FROM scan_signals
ORDER BY created_at DESC, symbol
LIMIT $1`

	insertBacktestSQL = `
INSERT INTO backtest_runs (id, strategy, symbols, start_date, end_date, initial_capital, final_value,
	total_return, max_drawdown, num_trades, sharpe, cagr, created_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	selectBacktestsSQL = `
SELECT id, strategy, symbols, start_date, end_date, initial_capital, final_value,
	total_return, max_drawdown, num_trades, sharpe, cagr, created_at
FROM backtest_runs
ORDER BY created_at DESC
LIMIT $1`

	insertMetricSQL = `
INSERT INTO metric_history (name, value, recorded_at) VALUES ($1, $2, $3)`

	selectMetricsSQL = `
SELECT name, value, recorded_at FROM metric_history
WHERE name = $1 AND recorded_at >= $2
ORDER BY recorded_at`
)

type Store struct {
	db *db.PgTxManager
}

// *Store для fx; nil-менеджер означает выключенный стор.
func NewStore(manager *db.PgTxManager) *Store {
	return &Store{db: manager}
}

func (s *Store) Enabled() bool { return s != nil && s.db != nil }

// EnsureSchema создаёт таблицы при первом запуске.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		for _, stmt := range schemaDDL {
			if _, err := tx.Exec(ctxTx, stmt); err != nil {
				return errors.Wrap(err, "apply schema")
			}
		}
		return nil
	})
}

// ScanRecord — итог одного прогона сканера.
type ScanRecord struct {
	ID             uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	SymbolsScanned int
	Regime         string
	RegimeScore    float64
	Notes          string
}

// SaveScan пишет прогон и его сигналы одной транзакцией,
// возвращает id прогона.
func (s *Store) SaveScan(ctx context.Context, rec ScanRecord, signals []models.Signal) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, ErrDisabled
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, insertScanSQL,
			rec.ID, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.SymbolsScanned, len(signals),
			rec.Regime, rec.RegimeScore, rec.Notes)
		if err != nil {
			return errors.Wrap(err, "insert scan run")
		}
		for _, sig := range signals {
			metaJSON, err := sonic.Marshal(metaDocument(sig.Meta))
			if err != nil {
				return errors.Wrapf(err, "marshal meta for %s", sig.Symbol)
			}
			if _, err := tx.Exec(ctxTx, insertSignalSQL,
				uuid.New(), rec.ID, sig.Symbol, models.Day(sig.Date), sig.Strategy, string(sig.Type),
				sig.Confidence, string(metaJSON), rec.FinishedAt.UTC()); err != nil {
				return errors.Wrapf(err, "insert signal %s", sig.Symbol)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// SignalRecord — сигнал, прочитанный из БД.
type SignalRecord struct {
	ID         uuid.UUID
	ScanID     uuid.UUID
	Symbol     string
	Date       time.Time
	Strategy   string
	Type       models.SignalType
	Confidence float64
	Meta       map[string]interface{}
	CreatedAt  time.Time
}

// RecentSignals — последние сигналы по убыванию времени записи.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(ctx, selectSignalsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query signals")
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var (
			rec      SignalRecord
			sigType  string
			metaJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ScanID, &rec.Symbol, &rec.Date, &rec.Strategy,
			&sigType, &rec.Confidence, &metaJSON, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan signal row")
		}
		rec.Type = models.SignalType(sigType)
		if len(metaJSON) > 0 {
			if err := sonic.Unmarshal(metaJSON, &rec.Meta); err != nil {
				return nil, errors.Wrap(err, "decode signal meta")
			}
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate signals")
}

// BacktestRecord — сводка одного прогона бэктеста.
type BacktestRecord struct {
	ID             uuid.UUID
	Strategy       string
	Symbols        []string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalValue     float64
	TotalReturn    float64
	MaxDrawdown    float64
	NumTrades      int
	Sharpe         float64
	CAGR           float64
	CreatedAt      time.Time
}

// SaveBacktest пишет сводку прогона, возвращает её id.
func (s *Store) SaveBacktest(ctx context.Context, rec BacktestRecord) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, ErrDisabled
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	symbolsJSON, err := sonic.Marshal(rec.Symbols)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "marshal symbols")
	}
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, insertBacktestSQL,
			rec.ID, rec.Strategy, string(symbolsJSON), models.Day(rec.Start), models.Day(rec.End),
			rec.InitialCapital, rec.FinalValue, rec.TotalReturn, rec.MaxDrawdown, rec.NumTrades,
			rec.Sharpe, rec.CAGR, rec.CreatedAt.UTC())
		return errors.Wrap(err, "insert backtest run")
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// RecentBacktests — последние прогоны по убыванию времени записи.
func (s *Store) RecentBacktests(ctx context.Context, limit int) ([]BacktestRecord, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().Query(ctx, selectBacktestsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query backtests")
	}
	defer rows.Close()

	var out []BacktestRecord
	for rows.Next() {
		var (
			rec         BacktestRecord
			symbolsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Strategy, &symbolsJSON, &rec.Start, &rec.End,
			&rec.InitialCapital, &rec.FinalValue, &rec.TotalReturn, &rec.MaxDrawdown,
			&rec.NumTrades, &rec.Sharpe, &rec.CAGR, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan backtest row")
		}
		if len(symbolsJSON) > 0 {
			if err := sonic.Unmarshal(symbolsJSON, &rec.Symbols); err != nil {
				return nil, errors.Wrap(err, "decode symbols")
			}
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate backtests")
}

// MetricPoint — одно наблюдение метрики.
type MetricPoint struct {
	Name       string
	Value      float64
	RecordedAt time.Time
}

func (s *Store) RecordMetric(ctx context.Context, name string, value float64, at time.Time) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, insertMetricSQL, name, value, at.UTC())
		return errors.Wrap(err, "insert metric")
	})
}

// MetricHistory — наблюдения метрики с момента since по возрастанию.
func (s *Store) MetricHistory(ctx context.Context, name string, since time.Time) ([]MetricPoint, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	rows, err := s.db.Conn().Query(ctx, selectMetricsSQL, name, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query metrics")
	}
	defer rows.Close()

	var out []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.Name, &p.Value, &p.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scan metric row")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate metrics")
}

// metaDocument разворачивает типизированные метаданные в JSON-документ.
// У агрегата скалярных полей нет — вместо них списки слагаемых; оверлей
// добавляет вложенные секции поверх документа внутренних метаданных.
func metaDocument(meta models.SignalMeta) map[string]interface{} {
	switch m := meta.(type) {
	case nil:
		return map[string]interface{}{}
	case models.AggregateMeta:
		doc := map[string]interface{}{
			"strategies":  m.Strategies,
			"confidences": m.Confidences,
		}
		for _, key := range m.Keys {
			doc[key] = m.Values[key]
		}
		return doc
	case models.OverlayMeta:
		doc := metaDocument(m.Inner)
		doc["macro_overlay"] = map[string]interface{}{
			"regime":     m.Macro.Regime,
			"score":      m.Macro.Score,
			"multiplier": m.Macro.Multiplier,
			"factors":    m.Macro.Factors,
			"notes":      m.Macro.Notes,
			"updated_at": m.Macro.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if len(m.Earnings) > 0 {
			earnings := make(map[string]interface{}, len(m.Earnings))
			for _, f := range m.Earnings.Fields() {
				earnings[f.Key] = f.Value
			}
			doc["earnings_quality"] = earnings
		}
		doc["confidence_components"] = map[string]interface{}{
			"base_confidence":     m.Components.Base,
			"macro_multiplier":    m.Components.MacroMultiplier,
			"earnings_multiplier": m.Components.EarningsMultiplier,
			"final_confidence":    m.Components.Final,
		}
		return doc
	default:
		fields := meta.Fields()
		doc := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			doc[f.Key] = f.Value
		}
		return doc
	}
}
