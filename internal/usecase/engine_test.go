package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/middleware"
	"SigPulse/internal/services/detect"
	applogger "SigPulse/pkg/logger"
)

type fakeQuoteSource struct {
	quotes map[string]*models.Quote
	err    error
}

func (s *fakeQuoteSource) Fetch(_ context.Context, _ []string) (map[string]*models.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]*models.Quote, len(s.quotes))
	for k, v := range s.quotes {
		cp := *v
		out[k] = &cp
	}
	return out, nil
}

func (s *fakeQuoteSource) Close() error { return nil }

type fakeWatchlistSource struct {
	entries []*models.WatchlistEntry
}

func (s *fakeWatchlistSource) Load(context.Context) ([]*models.WatchlistEntry, error) {
	return s.entries, nil
}

type memorySnapshotStore struct {
	mu       sync.Mutex
	snap     *models.Snapshot
	lines    []string
	restored *models.Snapshot
}

func (s *memorySnapshotStore) WriteSnapshot(snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

func (s *memorySnapshotStore) WriteCompact(_ *models.Snapshot, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
	return nil
}

func (s *memorySnapshotStore) Restore() (*models.Snapshot, error) {
	return s.restored, nil
}

type recordingMetrics struct {
	mu      sync.Mutex
	signals []string
	errors  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordCycle(time.Duration, int) {}
func (m *recordingMetrics) RecordSignal(event, level, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, event+":"+level+":"+symbol)
}
func (m *recordingMetrics) RecordLevelCounts(int, int, int) {}
func (m *recordingMetrics) RecordRegime(string, float64)    {}
func (m *recordingMetrics) RecordLastPrice(string, float64) {}
func (m *recordingMetrics) RecordLatency(string, float64)   {}
func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *recordingMetrics) signalEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.signals...)
}

type flakySignalPublisher struct {
	mu   sync.Mutex
	err  error
	sigs []*models.Signal
}

func (p *flakySignalPublisher) PublishSignal(_ context.Context, _ string, sig *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sigs = append(p.sigs, sig)
	return nil
}

func (p *flakySignalPublisher) Close() error { return nil }

func (p *flakySignalPublisher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *flakySignalPublisher) published() []*models.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Signal(nil), p.sigs...)
}

type engineFixture struct {
	engine  *Engine
	source  *fakeQuoteSource
	store   *memorySnapshotStore
	metrics *recordingMetrics
	now     time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	hours, err := detect.NewActiveHours(detect.ActiveHoursConfig{})
	if err != nil {
		t.Fatalf("active hours: %v", err)
	}
	loc := hours.Location()
	now := time.Date(2024, time.October, 8, 16, 5, 0, 0, loc)

	thresholds := detect.DefaultThresholdConfig()
	curve := detect.NewVolumeCurve(loc)
	regime := detect.NewVolumeRegimeDetector()
	deltas := detect.NewDeltaTracker(thresholds.StaleVelocityPolls + 4)
	hysteresis := detect.NewGateHysteresis(detect.DefaultHysteresisConfig(), thresholds.Boundaries())
	cooldown := detect.NewDynamicCooldown(detect.DefaultCooldownConfig())
	classifier := detect.NewClassifier(thresholds, hours, curve, regime, hysteresis, cooldown, deltas)

	wl := NewWatchlistHolder(&fakeWatchlistSource{entries: []*models.WatchlistEntry{
		{Symbol: "ACME", AverageVolume: 1_000_000},
	}}, time.Minute, logger)
	if _, err := wl.Reload(context.Background()); err != nil {
		t.Fatalf("watchlist reload: %v", err)
	}

	source := &fakeQuoteSource{quotes: map[string]*models.Quote{
		"ACME": {Symbol: "ACME", Price: 125, PreviousClose: 100, Volume: 3_000_000},
	}}
	store := &memorySnapshotStore{}
	mets := newRecordingMetrics()

	engine := NewEngine(EngineConfig{PollInterval: 5 * time.Second}, EngineDeps{
		Source:     source,
		Watchlist:  wl,
		Catalysts:  NewCatalystCache(),
		Classifier: classifier,
		Regime:     regime,
		Deltas:     deltas,
		Hysteresis: hysteresis,
		Cooldown:   cooldown,
		Hours:      hours,
		Curve:      curve,
		Lifecycle:  NewLifecycleManager(DefaultLifecycleConfig(), thresholds),
		Store:      store,
		Metrics:    mets,
		Logger:     logger,
	})
	return &engineFixture{engine: engine, source: source, store: store, metrics: mets, now: now}
}

func TestRunCycleFiresAndPersists(t *testing.T) {
	fx := newEngineFixture(t)
	fx.engine.RunCycle(context.Background(), fx.now)

	sigs := fx.engine.deps.Lifecycle.ActiveSignals(fx.now)
	if len(sigs) != 1 || sigs[0].Symbol != "ACME" || sigs[0].Level != models.LevelA0 {
		t.Fatalf("active set = %+v, want one ACME A0", sigs)
	}

	events := fx.metrics.signalEvents()
	if len(events) != 1 || events[0] != "fired:A0:ACME" {
		t.Fatalf("signal events = %v, want [fired:A0:ACME]", events)
	}

	stats := fx.engine.Stats()
	if stats.QuotesFetched != 1 || stats.A0Count != 1 || stats.QuotesSkipped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.VolumeRegime != string(detect.RegimeNormal) {
		t.Fatalf("regime = %q, want NORMAL", stats.VolumeRegime)
	}

	if fx.store.snap == nil || len(fx.store.snap.Signals) != 1 {
		t.Fatalf("snapshot = %+v, want one persisted signal", fx.store.snap)
	}
	if len(fx.store.lines) != 1 || !strings.HasPrefix(fx.store.lines[0], "ACME A0 LONG") {
		t.Fatalf("compact lines = %v", fx.store.lines)
	}
}

func TestRunCycleSkipsUnchangedQuotes(t *testing.T) {
	fx := newEngineFixture(t)
	fx.engine.RunCycle(context.Background(), fx.now)
	fx.engine.RunCycle(context.Background(), fx.now.Add(5*time.Second))

	stats := fx.engine.Stats()
	if stats.QuotesSkipped != 1 {
		t.Fatalf("skipped = %d, want 1 for an unchanged fingerprint", stats.QuotesSkipped)
	}
	if events := fx.metrics.signalEvents(); len(events) != 1 {
		t.Fatalf("signal events = %v, want no re-announcement", events)
	}
}

func TestRunCycleFetchErrorDegrades(t *testing.T) {
	fx := newEngineFixture(t)
	fx.source.err = errors.New("upstream down")

	fx.engine.RunCycle(context.Background(), fx.now)

	stats := fx.engine.Stats()
	if stats.QuotesFetched != 0 {
		t.Fatalf("quotesFetched = %d, want 0", stats.QuotesFetched)
	}
	if fx.metrics.errors["fetch"] != 1 {
		t.Fatalf("fetch errors = %d, want 1", fx.metrics.errors["fetch"])
	}
	if fx.store.snap == nil {
		t.Fatalf("snapshot must still be written on a failed fetch cycle")
	}
}

func TestRunCycleExpiresOldSignals(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.engine.RunCycle(ctx, fx.now)

	// Past MaxLifetime with an unchanged quote: the only event this cycle
	// must be the expiry.
	fx.engine.RunCycle(ctx, fx.now.Add(500*time.Second))

	if sigs := fx.engine.deps.Lifecycle.ActiveSignals(fx.now.Add(500 * time.Second)); len(sigs) != 0 {
		t.Fatalf("active set = %+v, want empty after expiry", sigs)
	}
	events := fx.metrics.signalEvents()
	if len(events) != 2 || events[1] != "expired:A0:ACME" {
		t.Fatalf("signal events = %v, want expiry second", events)
	}
}

func TestRunCycleRecordsCooldownOnFire(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.engine.RunCycle(ctx, fx.now)

	// New tick keeps the quote dirty; the recorded A0 now holds re-fires.
	fx.source.quotes["ACME"].Price = 126
	fx.engine.RunCycle(ctx, fx.now.Add(5*time.Second))

	sigs := fx.engine.deps.Lifecycle.ActiveSignals(fx.now.Add(5 * time.Second))
	if len(sigs) != 1 || sigs[0].Level != models.LevelA0 {
		t.Fatalf("active set = %+v, want the original A0 retained", sigs)
	}
	// The held A1 proposal is lower severity, so no second lifecycle event.
	if events := fx.metrics.signalEvents(); len(events) != 1 {
		t.Fatalf("signal events = %v, want one", events)
	}
}

func TestRunCycleBufferedEventKeepsFiredShape(t *testing.T) {
	fx := newEngineFixture(t)
	pub := &flakySignalPublisher{err: errors.New("feed down")}
	pipeline := middleware.NewPublishPipeline(pub, fx.metrics, middleware.WithBufferSize(10))
	fx.engine.deps.Pipeline = pipeline

	ctx := context.Background()
	// Publish fails, so the fired event sits in the retry buffer.
	fx.engine.RunCycle(ctx, fx.now)

	// Past A0MaxAge the stored signal is demoted and annotated in place. The
	// buffered event must keep the shape it had when it fired.
	fx.engine.RunCycle(ctx, fx.now.Add(200*time.Second))
	sigs := fx.engine.deps.Lifecycle.ActiveSignals(fx.now.Add(200 * time.Second))
	if len(sigs) != 1 || sigs[0].Level != models.LevelA1 {
		t.Fatalf("active set = %+v, want the demoted A1", sigs)
	}

	pub.setErr(nil)
	pipeline.Start(ctx)
	defer pipeline.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := pub.published(); len(got) > 0 {
			if got[0].Level != models.LevelA0 {
				t.Fatalf("flushed level = %v, want A0 as fired", got[0].Level)
			}
			if _, ok := got[0].Detail["aged_out"]; ok {
				t.Fatalf("flushed detail = %v, carries the later demotion", got[0].Detail)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered event never flushed")
}

func TestRestoreStateReloadsSnapshot(t *testing.T) {
	fx := newEngineFixture(t)
	fx.store.restored = &models.Snapshot{Signals: []*models.Signal{
		{Symbol: "ACME", Level: models.LevelA1, Direction: models.DirectionLong, FiredAt: fx.now.Add(-time.Minute), LevelSinceAt: fx.now.Add(-time.Minute)},
	}}

	fx.engine.RestoreState(fx.now)
	sigs := fx.engine.deps.Lifecycle.ActiveSignals(fx.now)
	if len(sigs) != 1 || sigs[0].Symbol != "ACME" || sigs[0].Level != models.LevelA1 {
		t.Fatalf("active set = %+v, want restored ACME A1", sigs)
	}
}

func TestDisableCarriesReason(t *testing.T) {
	fx := newEngineFixture(t)
	fx.engine.Disable("watchlist unavailable")

	if got := fx.engine.DisabledReason(); got != "watchlist unavailable" {
		t.Fatalf("disabled reason = %q", got)
	}
	fx.engine.RunCycle(context.Background(), fx.now)
	if fx.store.snap.Stats.DisabledReason != "watchlist unavailable" {
		t.Fatalf("snapshot stats = %+v, want the disabled reason carried", fx.store.snap.Stats)
	}
}
