package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	"SigPulse/internal/middleware"
	"SigPulse/internal/services/detect"
	applogger "SigPulse/pkg/logger"
)

// EngineConfig times the cooperative poll loop.
type EngineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MinSleep     time.Duration `yaml:"min_sleep"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{PollInterval: 5 * time.Second, MinSleep: 500 * time.Millisecond}
}

// EngineDeps bundles everything the engine orchestrates. The per-symbol state
// (deltas, hysteresis, cooldown, quote hashes) is owned exclusively by the
// poll loop; the catalyst cache is the only cross-goroutine surface.
type EngineDeps struct {
	Source     drepo.QuoteSource
	Watchlist  *WatchlistHolder
	Catalysts  *CatalystCache
	Classifier *detect.Classifier
	Regime     *detect.VolumeRegimeDetector
	Deltas     *detect.DeltaTracker
	Hysteresis *detect.GateHysteresis
	Cooldown   *detect.DynamicCooldown
	Hours      *detect.ActiveHours
	Curve      *detect.VolumeCurve
	Lifecycle  *LifecycleManager
	Store      drepo.SnapshotStore
	Mirror     drepo.SnapshotMirror        // optional
	Pipeline   *middleware.PublishPipeline // optional
	History    drepo.SignalHistory         // optional
	Metrics    drepo.Metrics
	Logger     *applogger.Logger
}

// Engine drives one poll cycle at a time: fetch → dirty-skip → classify →
// lifecycle → persist → sleep. It also carries the query surface served by
// the HTTP handlers.
type Engine struct {
	cfg  EngineConfig
	deps EngineDeps

	quoteHash map[string]uint64
	wasInside bool

	statsMu        sync.RWMutex
	lastStats      models.CycleStats
	disabledReason string
}

func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	def := DefaultEngineConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = def.MinSleep
	}
	return &Engine{cfg: cfg, deps: deps, quoteHash: make(map[string]uint64)}
}

// Disable marks the engine as non-polling; the query surface keeps serving
// the last good state and snapshots carry the reason.
func (e *Engine) Disable(reason string) {
	e.statsMu.Lock()
	e.disabledReason = reason
	e.statsMu.Unlock()
}

// DisabledReason returns the reason polling is off, or "".
func (e *Engine) DisabledReason() string {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.disabledReason
}

// RestoreState reloads the persisted snapshot so a restart does not
// re-announce signals that are still legitimately active. Failures degrade
// to a cold start.
func (e *Engine) RestoreState(now time.Time) {
	snap, err := e.deps.Store.Restore()
	if err != nil {
		e.deps.Logger.Warn("snapshot restore failed", applogger.Error(err))
		e.deps.Metrics.RecordError("restore")
		return
	}
	if snap == nil {
		return
	}
	n := e.deps.Lifecycle.Restore(snap, now)
	e.deps.Logger.Info("state restored", applogger.Int("signals", n))
}

// Run drives the poll loop until the context is cancelled. Cancellation is
// cooperative, checked once per iteration.
func (e *Engine) Run(ctx context.Context) {
	if reason := e.DisabledReason(); reason != "" {
		e.deps.Logger.Error("engine disabled", applogger.String("reason", reason))
		e.persist(ctx, time.Now()) // snapshot still carries the reason
		<-ctx.Done()
		return
	}

	for {
		start := time.Now()
		e.RunCycle(ctx, start)
		elapsed := time.Since(start)

		sleep := e.cfg.PollInterval - elapsed
		if sleep < e.cfg.MinSleep {
			sleep = e.cfg.MinSleep
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// RunCycle executes one full cycle. Exported so tests can drive the engine
// with a controlled clock.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) {
	start := time.Now()

	inside := e.deps.Hours.Within(now)
	if inside && !e.wasInside {
		// fresh session: stale pre-session prices must not feed comparisons
		e.deps.Deltas.ResetHistory()
		e.quoteHash = make(map[string]uint64)
	}
	e.wasInside = inside

	keep := e.deps.Watchlist.SymbolSet()
	e.pruneState(keep)

	symbols := e.deps.Watchlist.Symbols()
	quotes, err := e.deps.Source.Fetch(ctx, symbols)
	if err != nil {
		// degrade to an empty-quote cycle; retries belong upstream
		e.deps.Logger.Warn("quote fetch failed", applogger.Error(err))
		e.deps.Metrics.RecordError("fetch")
		quotes = map[string]*models.Quote{}
	}

	regime := e.deps.Regime.Update(quotes)
	factors := e.deps.Regime.AdjustedThresholds()
	catalysts := e.deps.Catalysts.Snapshot()

	skipped := 0
	for sym, q := range quotes {
		entry, ok := e.deps.Watchlist.Entry(sym)
		if !ok {
			continue
		}
		e.deps.Metrics.RecordLastPrice(sym, q.Price)

		h := quoteFingerprint(q)
		if prev, seen := e.quoteHash[sym]; seen && prev == h {
			skipped++
			continue
		}
		e.quoteHash[sym] = h

		proposal := e.deps.Classifier.Classify(q, entry, catalysts[sym], now)
		if proposal == nil {
			continue
		}
		event := e.deps.Lifecycle.Apply(proposal)
		if event == "" {
			continue
		}
		if proposal.Level == models.LevelA0 {
			// the one place an A0 emission is recorded against cooldown
			e.deps.Cooldown.RecordTransition(sym, proposal.Direction, now)
		}
		// The lifecycle map owns proposal now; emit a copy so the pipeline's
		// retry buffer never aliases a signal later cycles mutate.
		e.emit(ctx, event, proposal.Clone())
	}

	if inside {
		// HOLIDAY_SUSPECT suspends emission only; held signals are judged
		// against the relaxed thin-session factors, not the suspend wall.
		requalFactors := factors
		if regime == detect.RegimeHolidaySuspect {
			requalFactors = detect.ThresholdFactors{Change: 1.2, Volume: 1.2}
		}
		rqm := e.requalMetrics(quotes, now)
		flat := func(sym string) bool {
			cfg := e.deps.Classifier.Config()
			return e.deps.Deltas.FlatOver(sym, cfg.StaleVelocityPolls, cfg.StaleVelocityEpsPct)
		}
		for _, ev := range e.deps.Lifecycle.Requalify(now, rqm, requalFactors, flat) {
			e.emit(ctx, ev.Event, ev.Signal)
		}
	}

	a0, a1, a2 := e.deps.Lifecycle.Counts(now)
	stats := models.CycleStats{
		UpdatedAt:      now,
		PollInterval:   e.cfg.PollInterval,
		CycleDuration:  time.Since(start),
		QuotesFetched:  len(quotes),
		QuotesSkipped:  skipped,
		VolumeRegime:   string(regime),
		ThinFraction:   e.deps.Regime.ThinFraction(),
		A0Count:        a0,
		A1Count:        a1,
		A2Count:        a2,
		DisabledReason: e.DisabledReason(),
	}
	e.statsMu.Lock()
	e.lastStats = stats
	e.statsMu.Unlock()

	e.persist(ctx, now)

	e.deps.Metrics.RecordCycle(stats.CycleDuration, stats.QuotesFetched)
	e.deps.Metrics.RecordLevelCounts(a0, a1, a2)
	e.deps.Metrics.RecordRegime(string(regime), stats.ThinFraction)
	if e.deps.History != nil {
		if err := e.deps.History.RecordCycle(ctx, &stats); err != nil {
			e.deps.Metrics.RecordError("history_cycle")
		}
	}

	e.deps.Logger.Info("cycle complete",
		applogger.Int("quotes", stats.QuotesFetched),
		applogger.Int("skipped", skipped),
		applogger.Int("a0", a0),
		applogger.Int("a1", a1),
		applogger.Int("a2", a2),
		applogger.String("regime", string(regime)),
		applogger.Duration("duration_ms", stats.CycleDuration),
	)
}

// emit fans a lifecycle event out to metrics, the feed pipeline, and history.
// Every sink failure is isolated; the cycle never aborts on one.
func (e *Engine) emit(ctx context.Context, event string, sig *models.Signal) {
	e.deps.Metrics.RecordSignal(event, sig.Level.String(), sig.Symbol)
	if e.deps.Pipeline != nil {
		if err := e.deps.Pipeline.Publish(ctx, event, sig); err != nil {
			e.deps.Logger.Warn("signal publish failed",
				applogger.String("symbol", sig.Symbol), applogger.Error(err))
		}
	}
	if e.deps.History != nil {
		if err := e.deps.History.RecordSignal(ctx, event, sig); err != nil {
			e.deps.Metrics.RecordError("history_signal")
		}
	}
}

// requalMetrics recomputes the current-cycle measurements held signals are
// judged against, using the same time-of-day volume normalization as the
// classifier.
func (e *Engine) requalMetrics(quotes map[string]*models.Quote, now time.Time) map[string]RequalMetrics {
	frac := e.deps.Curve.ExpectedFraction(now)
	out := make(map[string]RequalMetrics, len(quotes))
	for sym, q := range quotes {
		entry, ok := e.deps.Watchlist.Entry(sym)
		if !ok || !q.Valid() {
			continue
		}
		avg := entry.AverageVolume
		if avg <= 0 {
			avg = q.AverageVolume
		}
		if avg <= 0 {
			continue
		}
		out[sym] = RequalMetrics{
			AbsChangePct: math.Abs((q.Price/q.PreviousClose - 1) * 100),
			VolumeRatio:  (q.Volume / avg) / frac,
			ATRPercent:   entry.ATRPercent,
		}
	}
	return out
}

func (e *Engine) persist(ctx context.Context, now time.Time) {
	signals := e.deps.Lifecycle.ActiveSignals(now)
	e.statsMu.RLock()
	stats := e.lastStats
	reason := e.disabledReason
	e.statsMu.RUnlock()
	stats.DisabledReason = reason

	snap := &models.Snapshot{Stats: stats, Signals: signals}
	if err := e.deps.Store.WriteSnapshot(snap); err != nil {
		e.deps.Logger.Warn("snapshot write failed", applogger.Error(err))
		e.deps.Metrics.RecordError("persist")
	}

	lines := make([]string, 0, len(signals))
	for _, sig := range signals {
		lines = append(lines, compactLine(sig, now))
	}
	if err := e.deps.Store.WriteCompact(snap, lines); err != nil {
		e.deps.Logger.Warn("compact write failed", applogger.Error(err))
		e.deps.Metrics.RecordError("persist_compact")
	}

	if e.deps.Mirror != nil {
		compact := ""
		for _, l := range lines {
			compact += l + "\n"
		}
		if err := e.deps.Mirror.Mirror(ctx, snap, compact); err != nil {
			e.deps.Metrics.RecordError("mirror")
		}
	}
}

// compactLine renders one symbol for the tail-friendly secondary snapshot.
func compactLine(sig *models.Signal, now time.Time) string {
	tick := sig.Detail["tick"]
	streak := sig.Detail["streak"]
	return fmt.Sprintf("%s %s %s tick=%s streak=%s price=%.2f chg=%.2f%% vr=%.2f age=%ds cat=%.2f",
		sig.Symbol,
		sig.Level.String(),
		sig.Direction,
		tick,
		streak,
		sig.Price,
		sig.ChangePct,
		sig.VolumeRatio,
		int(sig.Age(now).Seconds()),
		sig.CatalystScore,
	)
}

func (e *Engine) pruneState(keep map[string]bool) {
	e.deps.Deltas.Prune(keep)
	e.deps.Hysteresis.Prune(keep)
	e.deps.Cooldown.Prune(keep)
	e.deps.Lifecycle.Prune(keep)
	for sym := range e.quoteHash {
		if !keep[sym] {
			delete(e.quoteHash, sym)
		}
	}
}

// GetActiveSignals returns all non-expired signals, severity first.
func (e *Engine) GetActiveSignals() []*models.Signal {
	return e.deps.Lifecycle.ActiveSignals(time.Now())
}

// GetA0Signals returns only immediate-action signals.
func (e *Engine) GetA0Signals() []*models.Signal {
	return e.deps.Lifecycle.SignalsAtLevel(models.LevelA0, time.Now())
}

// GetA1Signals returns only watch-closely signals.
func (e *Engine) GetA1Signals() []*models.Signal {
	return e.deps.Lifecycle.SignalsAtLevel(models.LevelA1, time.Now())
}

// Stats returns the last completed cycle's metadata.
func (e *Engine) Stats() models.CycleStats {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.lastStats
}

// quoteFingerprint hashes the classification-relevant quote fields. An
// unchanged fingerprint means the upstream did not tick and classification is
// skipped this cycle.
func quoteFingerprint(q *models.Quote) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v float64) {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	put(q.Price)
	put(q.Volume)
	return h.Sum64()
}
