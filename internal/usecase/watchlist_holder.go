package usecase

import (
	"context"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	applogger "SigPulse/pkg/logger"
)

// WatchlistHolder keeps the current watch-list, reloaded on its own interval.
// Read-mostly: the engine reads the ordered entries and symbol set every
// cycle; a failed reload keeps the previous list.
type WatchlistHolder struct {
	source   drepo.WatchlistSource
	interval time.Duration
	logger   *applogger.Logger

	mu      sync.RWMutex
	entries []*models.WatchlistEntry
	bySym   map[string]*models.WatchlistEntry
}

func NewWatchlistHolder(source drepo.WatchlistSource, interval time.Duration, logger *applogger.Logger) *WatchlistHolder {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &WatchlistHolder{
		source:   source,
		interval: interval,
		logger:   logger,
		bySym:    make(map[string]*models.WatchlistEntry),
	}
}

// Reload fetches the list once. Returns the entry count.
func (h *WatchlistHolder) Reload(ctx context.Context) (int, error) {
	entries, err := h.source.Load(ctx)
	if err != nil {
		return 0, err
	}
	bySym := make(map[string]*models.WatchlistEntry, len(entries))
	for _, e := range entries {
		bySym[e.Symbol] = e
	}
	h.mu.Lock()
	h.entries = entries
	h.bySym = bySym
	h.mu.Unlock()
	return len(entries), nil
}

// Run reloads until the context is cancelled. Meant for its own goroutine.
func (h *WatchlistHolder) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.Reload(ctx)
			if err != nil {
				if h.logger != nil {
					h.logger.Warn("watchlist reload failed", applogger.Error(err))
				}
				continue
			}
			if h.logger != nil {
				h.logger.Debug("watchlist reloaded", applogger.Int("entries", n))
			}
		}
	}
}

// Symbols returns the ordered symbol list.
func (h *WatchlistHolder) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Symbol
	}
	return out
}

// Entry looks up one symbol's watch-list entry.
func (h *WatchlistHolder) Entry(symbol string) (*models.WatchlistEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.bySym[symbol]
	return e, ok
}

// SymbolSet returns membership for pruning per-symbol engine state.
func (h *WatchlistHolder) SymbolSet() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.bySym))
	for sym := range h.bySym {
		out[sym] = true
	}
	return out
}
