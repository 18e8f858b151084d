package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/domain/repository"
)

// ClickHouseSignalHistory records every signal lifecycle event and per-cycle
// stats for offline analysis of signal quality. Entirely out of the hot path:
// the engine logs and continues on any write failure.
type ClickHouseSignalHistory struct {
	db          *sql.DB
	signalTable string
	cycleTable  string
}

func NewClickHouseSignalHistory(db *sql.DB, database string) repository.SignalHistory {
	return &ClickHouseSignalHistory{
		db:          db,
		signalTable: database + ".signal_events",
		cycleTable:  database + ".cycle_stats",
	}
}

func (h *ClickHouseSignalHistory) Init(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *ClickHouseSignalHistory) RecordSignal(ctx context.Context, event string, sig *models.Signal) error {
	if sig == nil {
		return nil
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, symbol, event, level, direction, pattern, price, change_pct, volume_ratio, freshness, catalyst_score) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		h.signalTable,
	)
	_, err := h.db.ExecContext(ctx, q,
		time.Now().UTC(),
		sig.Symbol,
		event,
		sig.Level.String(),
		string(sig.Direction),
		sig.Pattern,
		sig.Price,
		sig.ChangePct,
		sig.VolumeRatio,
		sig.Freshness,
		sig.CatalystScore,
	)
	if err != nil {
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

func (h *ClickHouseSignalHistory) RecordCycle(ctx context.Context, stats *models.CycleStats) error {
	if stats == nil {
		return nil
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, duration_ms, quotes_fetched, quotes_skipped, regime, thin_fraction, a0, a1, a2) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		h.cycleTable,
	)
	_, err := h.db.ExecContext(ctx, q,
		stats.UpdatedAt.UTC(),
		stats.CycleDuration.Milliseconds(),
		stats.QuotesFetched,
		stats.QuotesSkipped,
		stats.VolumeRegime,
		stats.ThinFraction,
		stats.A0Count,
		stats.A1Count,
		stats.A2Count,
	)
	if err != nil {
		return fmt.Errorf("insert cycle stats: %w", err)
	}
	return nil
}

func (h *ClickHouseSignalHistory) Close() error {
	return nil // connection managed by pkg/clickhouse
}

// HistorySchema returns the DDL the DI layer applies on start.
func HistorySchema(database string) []string {
	database = strings.TrimSpace(database)
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s.signal_events (ts DateTime, symbol String, event String, level String, direction String, pattern String, price Float64, change_pct Float64, volume_ratio Float64, freshness Float64, catalyst_score Float64) ENGINE=MergeTree ORDER BY (symbol, ts)",
			database,
		),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s.cycle_stats (ts DateTime, duration_ms Int64, quotes_fetched Int32, quotes_skipped Int32, regime String, thin_fraction Float64, a0 Int32, a1 Int32, a2 Int32) ENGINE=MergeTree ORDER BY ts",
			database,
		),
	}
}
