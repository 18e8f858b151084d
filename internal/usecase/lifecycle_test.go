package usecase

import (
	"testing"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/services/detect"
)

func newTestLifecycle() *LifecycleManager {
	return NewLifecycleManager(DefaultLifecycleConfig(), detect.DefaultThresholdConfig())
}

func proposal(symbol string, level models.Level, dir models.Direction, firedAt time.Time) *models.Signal {
	return &models.Signal{
		Symbol:       symbol,
		Level:        level,
		Direction:    dir,
		Pattern:      models.PatternMomentum,
		Freshness:    1.0,
		FiredAt:      firedAt,
		LevelSinceAt: firedAt,
	}
}

func normalFactors() detect.ThresholdFactors {
	return detect.ThresholdFactors{Change: 1.0, Volume: 1.0}
}

func TestApplyTransitions(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()

	if got := m.Apply(proposal("ACME", models.LevelA1, models.DirectionLong, t0)); got != EventFired {
		t.Fatalf("first apply = %q, want %q", got, EventFired)
	}
	// Same or lower severity in the same direction leaves the record alone.
	if got := m.Apply(proposal("ACME", models.LevelA1, models.DirectionLong, t0)); got != "" {
		t.Fatalf("same level apply = %q, want no event", got)
	}
	if got := m.Apply(proposal("ACME", models.LevelA2, models.DirectionLong, t0)); got != "" {
		t.Fatalf("lower level apply = %q, want no event", got)
	}
	if got := m.Apply(proposal("ACME", models.LevelA0, models.DirectionLong, t0)); got != EventPromoted {
		t.Fatalf("upgrade apply = %q, want %q", got, EventPromoted)
	}
	// A direction change replaces even at a lower severity.
	if got := m.Apply(proposal("ACME", models.LevelA2, models.DirectionShort, t0)); got != EventRedirected {
		t.Fatalf("direction change apply = %q, want %q", got, EventRedirected)
	}

	sigs := m.ActiveSignals(t0)
	if len(sigs) != 1 || sigs[0].Level != models.LevelA2 || sigs[0].Direction != models.DirectionShort {
		t.Fatalf("active set after redirect = %+v", sigs)
	}
}

func TestApplyNilAndNone(t *testing.T) {
	m := newTestLifecycle()
	if got := m.Apply(nil); got != "" {
		t.Fatalf("nil apply = %q, want no event", got)
	}
	p := proposal("ACME", models.LevelNone, models.DirectionLong, time.Now())
	if got := m.Apply(p); got != "" {
		t.Fatalf("none-level apply = %q, want no event", got)
	}
}

func TestRequalifyExpiry(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("OLD", models.LevelA0, models.DirectionLong, t0.Add(-481*time.Second)))
	m.Apply(proposal("NEW", models.LevelA2, models.DirectionLong, t0))

	events := m.Requalify(t0, nil, normalFactors(), nil)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Event != EventExpired || events[0].Signal.Symbol != "OLD" {
		t.Fatalf("event = %+v, want OLD expired", events[0])
	}
	if sigs := m.ActiveSignals(t0); len(sigs) != 1 || sigs[0].Symbol != "NEW" {
		t.Fatalf("active set = %+v, want only NEW", sigs)
	}
}

func TestRequalifyDisqualifiesBelowFloor(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA1, models.DirectionLong, t0.Add(-time.Minute)))

	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 0.4, VolumeRatio: 0.8},
	}
	events := m.Requalify(t0, metrics, normalFactors(), nil)
	if len(events) != 1 || events[0].Event != EventDisqualified {
		t.Fatalf("events = %+v, want one disqualified", events)
	}
	if sigs := m.ActiveSignals(t0); len(sigs) != 0 {
		t.Fatalf("active set = %+v, want empty", sigs)
	}
}

func TestRequalifyLargeMoveSurvivesWithoutVolume(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA1, models.DirectionLong, t0.Add(-time.Minute)))

	// Volume faded entirely; the move alone clears the volume-free path.
	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 7.0, VolumeRatio: 0.1},
	}
	if events := m.Requalify(t0, metrics, normalFactors(), nil); len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
	if sigs := m.ActiveSignals(t0); len(sigs) != 1 {
		t.Fatalf("active set = %+v, want ACME retained", sigs)
	}
}

func TestRequalifyMissingMetricsKeepsSignal(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA2, models.DirectionLong, t0.Add(-time.Minute)))

	if events := m.Requalify(t0, map[string]RequalMetrics{}, normalFactors(), nil); len(events) != 0 {
		t.Fatalf("events = %+v, want none without metrics", events)
	}
	if sigs := m.ActiveSignals(t0); len(sigs) != 1 {
		t.Fatalf("active set = %+v, want ACME retained", sigs)
	}
}

func TestRequalifyAgeCapDemotes(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA0, models.DirectionLong, t0.Add(-200*time.Second)))

	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 6.0, VolumeRatio: 3.0},
	}
	events := m.Requalify(t0, metrics, normalFactors(), nil)
	if len(events) != 1 || events[0].Event != EventDemoted {
		t.Fatalf("events = %+v, want one demoted", events)
	}
	sigs := m.ActiveSignals(t0)
	if len(sigs) != 1 || sigs[0].Level != models.LevelA1 {
		t.Fatalf("active set = %+v, want A1 after the age cap", sigs)
	}
	if sigs[0].Detail["aged_out"] == "" {
		t.Fatalf("demoted signal missing aged_out detail: %+v", sigs[0].Detail)
	}
}

func TestRequalifyATRShortensAgeCap(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	p := proposal("ACME", models.LevelA0, models.DirectionLong, t0.Add(-120*time.Second))
	p.ATRPercent = 4.0 // allowance drops from 180s to 90s
	m.Apply(p)

	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 6.0, VolumeRatio: 3.0, ATRPercent: 4.0},
	}
	events := m.Requalify(t0, metrics, normalFactors(), nil)
	if len(events) != 1 || events[0].Event != EventDemoted {
		t.Fatalf("events = %+v, want demotion at 120s for a 4%% ATR name", events)
	}
}

func TestRequalifyFlatHalvesAgeCap(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA0, models.DirectionLong, t0.Add(-100*time.Second)))

	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 6.0, VolumeRatio: 3.0},
	}
	flat := func(string) bool { return true }
	events := m.Requalify(t0, metrics, normalFactors(), flat)
	if len(events) != 1 || events[0].Event != EventDemoted {
		t.Fatalf("events = %+v, want demotion at 100s when velocity is flat", events)
	}
}

func TestRequalifyFreshnessDecay(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("ACME", models.LevelA2, models.DirectionLong, t0.Add(-120*time.Second)))

	metrics := map[string]RequalMetrics{
		"ACME": {AbsChangePct: 2.0, VolumeRatio: 2.0},
	}
	m.Requalify(t0, metrics, normalFactors(), nil)
	sigs := m.ActiveSignals(t0)
	if len(sigs) != 1 {
		t.Fatalf("active set = %+v, want one signal", sigs)
	}
	// One half-life elapsed.
	if f := sigs[0].Freshness; f < 0.49 || f > 0.51 {
		t.Fatalf("freshness = %v, want 0.5 after one half-life", f)
	}
}

func TestActiveSignalsOrdering(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()

	a2 := proposal("CCC", models.LevelA2, models.DirectionLong, t0)
	a0 := proposal("AAA", models.LevelA0, models.DirectionLong, t0)
	a1Fresh := proposal("BBB", models.LevelA1, models.DirectionLong, t0)
	a1Stale := proposal("DDD", models.LevelA1, models.DirectionLong, t0)
	a1Stale.Freshness = 0.3
	for _, p := range []*models.Signal{a2, a0, a1Fresh, a1Stale} {
		m.Apply(p)
	}

	sigs := m.ActiveSignals(t0)
	want := []string{"AAA", "BBB", "DDD", "CCC"}
	if len(sigs) != len(want) {
		t.Fatalf("active set size = %d, want %d", len(sigs), len(want))
	}
	for i, sym := range want {
		if sigs[i].Symbol != sym {
			t.Fatalf("order[%d] = %s, want %s", i, sigs[i].Symbol, sym)
		}
	}

	// Returned signals are copies; mutating one must not touch the store.
	sigs[0].Level = models.LevelA2
	if again := m.ActiveSignals(t0); again[0].Symbol != "AAA" || again[0].Level != models.LevelA0 {
		t.Fatalf("store mutated through a returned copy: %+v", again[0])
	}
}

func TestSignalsAtLevelAndCounts(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("AAA", models.LevelA0, models.DirectionLong, t0))
	m.Apply(proposal("BBB", models.LevelA1, models.DirectionLong, t0))
	m.Apply(proposal("CCC", models.LevelA1, models.DirectionShort, t0))

	if got := m.SignalsAtLevel(models.LevelA1, t0); len(got) != 2 {
		t.Fatalf("A1 signals = %d, want 2", len(got))
	}
	a0, a1, a2 := m.Counts(t0)
	if a0 != 1 || a1 != 2 || a2 != 0 {
		t.Fatalf("counts = %d/%d/%d, want 1/2/0", a0, a1, a2)
	}
}

func TestRestoreSkipsExpired(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	snap := &models.Snapshot{
		Signals: []*models.Signal{
			proposal("LIVE", models.LevelA1, models.DirectionLong, t0.Add(-time.Minute)),
			proposal("DEAD", models.LevelA0, models.DirectionLong, t0.Add(-500*time.Second)),
			nil,
			proposal("", models.LevelA1, models.DirectionLong, t0),
		},
	}
	if n := m.Restore(snap, t0); n != 1 {
		t.Fatalf("restored = %d, want 1", n)
	}
	if sigs := m.ActiveSignals(t0); len(sigs) != 1 || sigs[0].Symbol != "LIVE" {
		t.Fatalf("active set = %+v, want only LIVE", sigs)
	}
	if n := m.Restore(nil, t0); n != 0 {
		t.Fatalf("nil snapshot restored = %d, want 0", n)
	}
}

func TestPruneDropsDelisted(t *testing.T) {
	m := newTestLifecycle()
	t0 := time.Now()
	m.Apply(proposal("KEEP", models.LevelA1, models.DirectionLong, t0))
	m.Apply(proposal("DROP", models.LevelA1, models.DirectionLong, t0))

	m.Prune(map[string]bool{"KEEP": true})
	if sigs := m.ActiveSignals(t0); len(sigs) != 1 || sigs[0].Symbol != "KEEP" {
		t.Fatalf("active set = %+v, want only KEEP", sigs)
	}
}
