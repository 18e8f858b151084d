package usecase

import (
	"context"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	applogger "SigPulse/pkg/logger"
)

// CatalystCache is the guarded swap-on-write cache between the background
// refresher and the poll loop. The writer builds a complete new snapshot and
// swaps the reference under the lock; readers hold it no longer than a
// pointer copy.
type CatalystCache struct {
	mu   sync.RWMutex
	snap map[string]*models.Catalyst
}

func NewCatalystCache() *CatalystCache {
	return &CatalystCache{snap: make(map[string]*models.Catalyst)}
}

// Snapshot returns the current complete snapshot. Never blocks on a refresh.
func (c *CatalystCache) Snapshot() map[string]*models.Catalyst {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Swap replaces the whole snapshot atomically.
func (c *CatalystCache) Swap(snap map[string]*models.Catalyst) {
	if snap == nil {
		snap = make(map[string]*models.Catalyst)
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// Merge folds one catalyst into a copy of the snapshot and swaps it in. Used
// by the streaming (kafka) feed, which delivers symbols one at a time.
func (c *CatalystCache) Merge(cat *models.Catalyst) {
	if cat == nil || cat.Symbol == "" {
		return
	}
	c.mu.Lock()
	next := make(map[string]*models.Catalyst, len(c.snap)+1)
	for k, v := range c.snap {
		next[k] = v
	}
	next[cat.Symbol] = cat
	c.snap = next
	c.mu.Unlock()
}

// CatalystRefresher polls the catalyst source on its own interval and swaps
// complete snapshots into the cache. Fire-and-forget from the engine's point
// of view: a failed refresh keeps the previous snapshot.
type CatalystRefresher struct {
	source   drepo.CatalystSource
	cache    *CatalystCache
	symbols  func() []string
	interval time.Duration
	logger   *applogger.Logger
}

func NewCatalystRefresher(
	source drepo.CatalystSource,
	cache *CatalystCache,
	symbols func() []string,
	interval time.Duration,
	logger *applogger.Logger,
) *CatalystRefresher {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &CatalystRefresher{
		source:   source,
		cache:    cache,
		symbols:  symbols,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes until the context is cancelled. Meant for its own goroutine.
func (r *CatalystRefresher) Run(ctx context.Context) {
	r.refresh(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *CatalystRefresher) refresh(ctx context.Context) {
	syms := r.symbols()
	if len(syms) == 0 {
		return
	}
	snap, err := r.source.Fetch(ctx, syms)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("catalyst refresh failed", applogger.Error(err))
		}
		return
	}
	r.cache.Swap(snap)
	if r.logger != nil {
		r.logger.Debug("catalyst snapshot swapped", applogger.Int("symbols", len(snap)))
	}
}
