package repository

import (
	"context"
	"time"

	"SigPulse/internal/domain/models"
)

// QuoteSource pulls the latest quotes for a symbol list in one call.
// Partial or empty results are tolerated; missing symbols are simply absent.
type QuoteSource interface {
	Fetch(ctx context.Context, symbols []string) (map[string]*models.Quote, error)
	Close() error
}

// WatchlistSource loads the externally-ranked candidate set.
type WatchlistSource interface {
	Load(ctx context.Context) ([]*models.WatchlistEntry, error)
}

// CatalystSource resolves news catalysts for the watch-list symbols.
type CatalystSource interface {
	Fetch(ctx context.Context, symbols []string) (map[string]*models.Catalyst, error)
}

// SnapshotStore persists engine state between runs. Implementations must write
// atomically; readers never observe a partial document.
type SnapshotStore interface {
	WriteSnapshot(snap *models.Snapshot) error
	WriteCompact(snap *models.Snapshot, lines []string) error
	Restore() (*models.Snapshot, error)
}

// SignalPublisher emits signal lifecycle events to a downstream feed.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, event string, sig *models.Signal) error
	Close() error
}

// SignalHistory records emitted signals and cycle stats for offline analysis.
type SignalHistory interface {
	Init(ctx context.Context) error
	RecordSignal(ctx context.Context, event string, sig *models.Signal) error
	RecordCycle(ctx context.Context, stats *models.CycleStats) error
	Close() error
}

// SnapshotMirror republishes snapshots to a low-latency store for external tailing.
type SnapshotMirror interface {
	Mirror(ctx context.Context, snap *models.Snapshot, compact string) error
}

type Metrics interface {
	RecordCycle(duration time.Duration, quotes int)
	RecordSignal(event, level, symbol string)
	RecordLevelCounts(a0, a1, a2 int)
	RecordRegime(regime string, thinFraction float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
