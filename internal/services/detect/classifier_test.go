package detect

import (
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	hours, err := NewActiveHours(ActiveHoursConfig{})
	if err != nil {
		t.Fatalf("active hours: %v", err)
	}
	cfg := DefaultThresholdConfig()
	return NewClassifier(
		cfg,
		hours,
		NewVolumeCurve(hours.Location()),
		NewVolumeRegimeDetector(),
		NewGateHysteresis(DefaultHysteresisConfig(), cfg.Boundaries()),
		NewDynamicCooldown(DefaultCooldownConfig()),
		NewDeltaTracker(cfg.StaleVelocityPolls+4),
	)
}

// 16:05 on a Tuesday: inside the session, intraday pacing fraction 1.0, so the
// volume ratio in tests is exactly volume/averageVolume.
func lateSession(t *testing.T) time.Time {
	t.Helper()
	return nyTime(t, 2024, time.October, 8, 16, 5)
}

func TestClassifySpikeFiresA0(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	q := &models.Quote{Symbol: "ACME", Price: 125, PreviousClose: 100, Volume: 3_000_000}
	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}

	sig := c.Classify(q, entry, nil, now)
	if sig == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if sig.Level != models.LevelA0 {
		t.Fatalf("level = %v, want A0", sig.Level)
	}
	if sig.Direction != models.DirectionLong {
		t.Fatalf("direction = %v, want LONG", sig.Direction)
	}
	if sig.Pattern != models.PatternMomentum {
		t.Fatalf("pattern = %q, want %q", sig.Pattern, models.PatternMomentum)
	}
	if sig.ChangePct < 24.9 || sig.ChangePct > 25.1 {
		t.Fatalf("changePct = %v, want 25", sig.ChangePct)
	}
	if sig.VolumeRatio < 2.99 || sig.VolumeRatio > 3.01 {
		t.Fatalf("volumeRatio = %v, want 3.0", sig.VolumeRatio)
	}
	if sig.Detail["tick"] != string(TickFlat) {
		t.Fatalf("tick detail = %q, want flat on the first poll", sig.Detail["tick"])
	}
}

func TestClassifyFallingKnifeDemotes(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	first := &models.Quote{Symbol: "ACME", Price: 125, PreviousClose: 100, Volume: 3_000_000}
	if sig := c.Classify(first, entry, nil, now); sig == nil || sig.Level != models.LevelA0 {
		t.Fatalf("first poll: expected A0, got %+v", sig)
	}

	second := &models.Quote{Symbol: "ACME", Price: 123, PreviousClose: 100, Volume: 3_000_000}
	sig := c.Classify(second, entry, nil, now.Add(10*time.Second))
	if sig == nil {
		t.Fatalf("second poll: expected a signal, got nil")
	}
	if sig.Level != models.LevelA1 {
		t.Fatalf("level = %v, want A1 after falling-knife demotion", sig.Level)
	}
	if sig.Detail["falling_knife"] != "demoted" {
		t.Fatalf("falling_knife detail = %q, want demoted", sig.Detail["falling_knife"])
	}
}

func TestClassifyBreakoutUpgradesA1(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000, PriorDayHigh: 104}
	first := &models.Quote{Symbol: "ACME", Price: 103.5, PreviousClose: 100, Volume: 2_000_000}
	if sig := c.Classify(first, entry, nil, now); sig == nil || sig.Level != models.LevelA1 {
		t.Fatalf("first poll: expected A1, got %+v", sig)
	}

	// 31s later so the hysteresis hold has elapsed before the upgrade.
	second := &models.Quote{Symbol: "ACME", Price: 104.5, PreviousClose: 100, Volume: 2_000_000}
	sig := c.Classify(second, entry, nil, now.Add(31*time.Second))
	if sig == nil {
		t.Fatalf("second poll: expected a signal, got nil")
	}
	if sig.Pattern != models.PatternHighBreakout {
		t.Fatalf("pattern = %q, want %q", sig.Pattern, models.PatternHighBreakout)
	}
	if sig.Level != models.LevelA0 {
		t.Fatalf("level = %v, want A0 after key-level cross", sig.Level)
	}
	if sig.Detail["key_level"] != "104.00" {
		t.Fatalf("key_level detail = %q, want 104.00", sig.Detail["key_level"])
	}
}

func TestClassifyStaleVelocityDemotes(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	q := &models.Quote{Symbol: "ACME", Price: 106, PreviousClose: 100, Volume: 500_000}

	var sig *models.Signal
	for i := 0; i < 5; i++ {
		sig = c.Classify(q, entry, nil, now.Add(time.Duration(i)*10*time.Second))
	}
	if sig == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if sig.Level != models.LevelA2 {
		t.Fatalf("level = %v, want A2 after stale-velocity demotion", sig.Level)
	}
	if sig.Detail["stale_velocity"] != "demoted" {
		t.Fatalf("stale_velocity detail = %q, want demoted", sig.Detail["stale_velocity"])
	}
}

func TestClassifyCatalystPromotesA2(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	q := &models.Quote{Symbol: "ACME", Price: 102, PreviousClose: 100, Volume: 1_800_000}
	cat := &models.Catalyst{Symbol: "ACME", CatalystScore: 0.9, UpdatedAt: now.Add(-5 * time.Minute)}

	sig := c.Classify(q, entry, cat, now)
	if sig == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if sig.Level != models.LevelA0 {
		t.Fatalf("level = %v, want A0 after catalyst promotion", sig.Level)
	}
	if sig.Detail["promotion"] != models.PatternCatalystUpgrade {
		t.Fatalf("promotion detail = %q, want %q", sig.Detail["promotion"], models.PatternCatalystUpgrade)
	}
	if sig.CatalystScore != 0.9 {
		t.Fatalf("catalystScore = %v, want 0.9", sig.CatalystScore)
	}
}

func TestClassifyStaleCatalystDoesNotPromote(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	q := &models.Quote{Symbol: "ACME", Price: 102, PreviousClose: 100, Volume: 1_800_000}
	cat := &models.Catalyst{Symbol: "ACME", CatalystScore: 0.9, UpdatedAt: now.Add(-time.Hour)}

	sig := c.Classify(q, entry, cat, now)
	if sig == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if sig.Level != models.LevelA2 {
		t.Fatalf("level = %v, want A2 when the catalyst is stale", sig.Level)
	}
}

func TestClassifyCooldownHoldsSecondA0(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	c.cooldown.RecordTransition("ACME", models.DirectionLong, now)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	q := &models.Quote{Symbol: "ACME", Price: 125, PreviousClose: 100, Volume: 3_000_000}
	sig := c.Classify(q, entry, nil, now.Add(10*time.Second))
	if sig == nil {
		t.Fatalf("expected a signal, got nil")
	}
	if sig.Level != models.LevelA1 {
		t.Fatalf("level = %v, want A1 while the cooldown holds", sig.Level)
	}
	if sig.Detail["held"] != "cooldown" {
		t.Fatalf("held detail = %q, want cooldown", sig.Detail["held"])
	}
}

func TestClassifyDisconfirmedDirectionHolds(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	first := &models.Quote{Symbol: "ACME", Price: 80, PreviousClose: 100, Volume: 3_000_000}
	if sig := c.Classify(first, entry, nil, now); sig == nil || sig.Direction != models.DirectionShort {
		t.Fatalf("first poll: expected a SHORT signal, got %+v", sig)
	}

	// Still deeply down but ticking up against the SHORT direction.
	second := &models.Quote{Symbol: "ACME", Price: 80.5, PreviousClose: 100, Volume: 3_000_000}
	sig := c.Classify(second, entry, nil, now.Add(10*time.Second))
	if sig == nil {
		t.Fatalf("second poll: expected a signal, got nil")
	}
	if sig.Level != models.LevelA1 {
		t.Fatalf("level = %v, want A1 on a disconfirmed direction", sig.Level)
	}
	if sig.Detail["held"] != "unconfirmed_direction" {
		t.Fatalf("held detail = %q, want unconfirmed_direction", sig.Detail["held"])
	}
}

func TestClassifyGuardLeavesNoState(t *testing.T) {
	c := newTestClassifier(t)
	now := lateSession(t)

	entry := &models.WatchlistEntry{Symbol: "TINY", AverageVolume: 500}
	q := &models.Quote{Symbol: "TINY", Price: 130, PreviousClose: 100, Volume: 5_000}

	for i := 0; i < 2; i++ {
		if sig := c.Classify(q, entry, nil, now.Add(time.Duration(i)*10*time.Second)); sig != nil {
			t.Fatalf("poll %d: expected nil below the average-volume floor, got %+v", i, sig)
		}
	}
	if _, ok := c.deltas.PreviousPrice("TINY"); ok {
		t.Fatalf("rejected symbol must not accumulate delta history")
	}
}

func TestClassifyHolidaySuspectYieldsNothing(t *testing.T) {
	hours, err := NewActiveHours(ActiveHoursConfig{})
	if err != nil {
		t.Fatalf("active hours: %v", err)
	}
	cfg := DefaultThresholdConfig()
	regime := NewVolumeRegimeDetector()
	c := NewClassifier(
		cfg,
		hours,
		NewVolumeCurve(hours.Location()),
		regime,
		NewGateHysteresis(DefaultHysteresisConfig(), cfg.Boundaries()),
		NewDynamicCooldown(DefaultCooldownConfig()),
		NewDeltaTracker(cfg.StaleVelocityPolls+4),
	)
	now := lateSession(t)

	// 4 of 5 symbols trading under half their average marks the session suspect.
	suspect := regime.Update(map[string]*models.Quote{
		"AAA": {Symbol: "AAA", Volume: 100_000, AverageVolume: 1_000_000},
		"BBB": {Symbol: "BBB", Volume: 200_000, AverageVolume: 1_000_000},
		"CCC": {Symbol: "CCC", Volume: 300_000, AverageVolume: 1_000_000},
		"DDD": {Symbol: "DDD", Volume: 400_000, AverageVolume: 1_000_000},
		"EEE": {Symbol: "EEE", Volume: 900_000, AverageVolume: 1_000_000},
	})
	if suspect != RegimeHolidaySuspect {
		t.Fatalf("regime = %v, want HOLIDAY_SUSPECT", suspect)
	}

	q := &models.Quote{Symbol: "ACME", Price: 125, PreviousClose: 100, Volume: 3_000_000}
	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	cat := &models.Catalyst{Symbol: "ACME", CatalystScore: 0.9, UpdatedAt: now.Add(-5 * time.Minute)}

	// Even a hard spike with a fresh catalyst produces nothing while suspect.
	if sig := c.Classify(q, entry, cat, now); sig != nil {
		t.Fatalf("suspect session classified %+v, want nil", sig)
	}

	// The same spike fires once the session looks normal again.
	normal := regime.Update(map[string]*models.Quote{
		"EEE": {Symbol: "EEE", Volume: 900_000, AverageVolume: 1_000_000},
	})
	if normal != RegimeNormal {
		t.Fatalf("regime = %v, want NORMAL", normal)
	}
	sig := c.Classify(q, entry, nil, now.Add(5*time.Second))
	if sig == nil || sig.Level != models.LevelA0 {
		t.Fatalf("normal session: expected A0, got %+v", sig)
	}
}

func TestClassifyOutsideHoursNil(t *testing.T) {
	c := newTestClassifier(t)
	saturday := nyTime(t, 2024, time.October, 12, 12, 0)

	entry := &models.WatchlistEntry{Symbol: "ACME", AverageVolume: 1_000_000}
	q := &models.Quote{Symbol: "ACME", Price: 150, PreviousClose: 100, Volume: 5_000_000}
	if sig := c.Classify(q, entry, nil, saturday); sig != nil {
		t.Fatalf("expected nil outside active hours, got %+v", sig)
	}
}
