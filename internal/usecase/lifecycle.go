package usecase

import (
	"math"
	"sort"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/services/detect"
)

// Signal lifecycle events, published downstream and recorded in history.
const (
	EventFired        = "fired"
	EventPromoted     = "promoted"
	EventRedirected   = "redirected"
	EventDemoted      = "demoted"
	EventDisqualified = "disqualified"
	EventExpired      = "expired"
)

// LifecycleConfig bounds how long signals live at each level.
type LifecycleConfig struct {
	MaxLifetime       time.Duration `yaml:"max_lifetime"`
	A0MaxAge          time.Duration `yaml:"a0_max_age"`
	A1MaxAge          time.Duration `yaml:"a1_max_age"`
	FreshnessHalfLife time.Duration `yaml:"freshness_half_life"`
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MaxLifetime:       480 * time.Second,
		A0MaxAge:          180 * time.Second,
		A1MaxAge:          300 * time.Second,
		FreshnessHalfLife: 120 * time.Second,
	}
}

// RequalMetrics carries the current-cycle measurements a held signal is
// re-qualified against.
type RequalMetrics struct {
	AbsChangePct float64
	VolumeRatio  float64
	ATRPercent   float64
}

// LifecycleManager owns the active-signal set: one non-expired signal per
// symbol, replaced only by a strictly more severe proposal or a direction
// change. Safe for concurrent reads from the query surface while the poll
// loop mutates.
type LifecycleManager struct {
	mu         sync.RWMutex
	cfg        LifecycleConfig
	thresholds detect.ThresholdConfig
	signals    map[string]*models.Signal
}

func NewLifecycleManager(cfg LifecycleConfig, thresholds detect.ThresholdConfig) *LifecycleManager {
	def := DefaultLifecycleConfig()
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = def.MaxLifetime
	}
	if cfg.A0MaxAge <= 0 {
		cfg.A0MaxAge = def.A0MaxAge
	}
	if cfg.A1MaxAge <= 0 {
		cfg.A1MaxAge = def.A1MaxAge
	}
	if cfg.FreshnessHalfLife <= 0 {
		cfg.FreshnessHalfLife = def.FreshnessHalfLife
	}
	return &LifecycleManager{cfg: cfg, thresholds: thresholds, signals: make(map[string]*models.Signal)}
}

// Apply admits a fresh classification. Returns the lifecycle event, or ""
// when the existing record wins and stays untouched this cycle.
func (m *LifecycleManager) Apply(proposal *models.Signal) string {
	if proposal == nil || proposal.Level == models.LevelNone {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.signals[proposal.Symbol]
	if !ok {
		m.signals[proposal.Symbol] = proposal
		return EventFired
	}
	if proposal.Direction != existing.Direction {
		m.signals[proposal.Symbol] = proposal
		return EventRedirected
	}
	if proposal.Level > existing.Level {
		m.signals[proposal.Symbol] = proposal
		return EventPromoted
	}
	return ""
}

// LifecycleEvent is one state change produced by the per-cycle pass. Signal
// is a copy taken at event time, safe to hand downstream.
type LifecycleEvent struct {
	Event  string
	Signal *models.Signal
}

// Requalify runs the per-cycle lifecycle pass: unconditional expiry, floor
// re-qualification against current metrics, momentum-aware age capping, and
// freshness decay. Not called while the session is outside active hours,
// which freezes every signal in place.
func (m *LifecycleManager) Requalify(
	now time.Time,
	metrics map[string]RequalMetrics,
	factors detect.ThresholdFactors,
	flat func(symbol string) bool,
) []LifecycleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []LifecycleEvent
	emit := func(event string, sig *models.Signal) {
		events = append(events, LifecycleEvent{Event: event, Signal: sig.Clone()})
	}

	for sym, sig := range m.signals {
		if sig.Age(now) > m.cfg.MaxLifetime {
			delete(m.signals, sym)
			emit(EventExpired, sig)
			continue
		}

		rm, haveMetrics := metrics[sym]
		if haveMetrics && !m.meetsFloor(rm, factors) {
			delete(m.signals, sym)
			emit(EventDisqualified, sig)
			continue
		}

		atr := sig.ATRPercent
		if haveMetrics && rm.ATRPercent > 0 {
			atr = rm.ATRPercent
		}
		isFlat := flat != nil && flat(sym)
		demoted := m.capAge(sig, now, atr, isFlat)
		sig.Freshness = m.freshness(sig, now, atr)
		if demoted {
			emit(EventDemoted, sig)
		}
	}
	return events
}

// meetsFloor checks whether current metrics still justify at least an A2 (or
// the volume-free large-move path, which carries no A2-level volume).
func (m *LifecycleManager) meetsFloor(rm RequalMetrics, f detect.ThresholdFactors) bool {
	t := m.thresholds
	if rm.AbsChangePct >= t.A2ChangePct*f.Change && rm.VolumeRatio >= t.A2VolumeRatio*f.Volume {
		return true
	}
	if rm.AbsChangePct >= t.A2SurgeChangePct*f.Change && rm.VolumeRatio >= t.A2SurgeVolumeRatio*f.Volume {
		return true
	}
	return rm.AbsChangePct >= t.A1SoloChangePct*f.Change
}

// capAge force-demotes a signal that has outlived its level. The allowance
// shrinks for high-ATR instruments and halves when recent velocity is flat.
func (m *LifecycleManager) capAge(sig *models.Signal, now time.Time, atrPct float64, isFlat bool) bool {
	var base time.Duration
	switch sig.Level {
	case models.LevelA0:
		base = m.cfg.A0MaxAge
	case models.LevelA1:
		base = m.cfg.A1MaxAge
	default:
		return false
	}

	allowed := base
	if atrPct > 0 {
		allowed = time.Duration(float64(base) / (1.0 + atrPct/4.0))
	}
	if isFlat {
		allowed /= 2
	}
	if now.Sub(sig.LevelSinceAt) <= allowed {
		return false
	}

	switch sig.Level {
	case models.LevelA0:
		sig.Level = models.LevelA1
	case models.LevelA1:
		sig.Level = models.LevelA2
	}
	sig.LevelSinceAt = now
	sig.Annotate("aged_out", now.UTC().Format(time.RFC3339))
	return true
}

// freshness decays exponentially since firing, with the half-life shortened
// for higher-ATR instruments. Monotonically non-increasing for a fixed FiredAt.
func (m *LifecycleManager) freshness(sig *models.Signal, now time.Time, atrPct float64) float64 {
	hl := float64(m.cfg.FreshnessHalfLife)
	if atrPct > 0 {
		hl /= 1.0 + atrPct/2.0
	}
	age := float64(now.Sub(sig.FiredAt))
	if age <= 0 {
		return 1.0
	}
	return math.Exp2(-age / hl)
}

// ActiveSignals returns non-expired signals sorted by severity ascending
// (A0 first), then freshness descending. Expiry filtering is unconditional.
func (m *LifecycleManager) ActiveSignals(now time.Time) []*models.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Signal, 0, len(m.signals))
	for _, sig := range m.signals {
		if sig.Age(now) > m.cfg.MaxLifetime {
			continue
		}
		out = append(out, sig.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level // A0 carries the highest ordinal
		}
		return out[i].Freshness > out[j].Freshness
	})
	return out
}

// SignalsAtLevel filters ActiveSignals to one level.
func (m *LifecycleManager) SignalsAtLevel(level models.Level, now time.Time) []*models.Signal {
	all := m.ActiveSignals(now)
	out := make([]*models.Signal, 0, len(all))
	for _, sig := range all {
		if sig.Level == level {
			out = append(out, sig)
		}
	}
	return out
}

// Counts tallies active signals per level.
func (m *LifecycleManager) Counts(now time.Time) (a0, a1, a2 int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sig := range m.signals {
		if sig.Age(now) > m.cfg.MaxLifetime {
			continue
		}
		switch sig.Level {
		case models.LevelA0:
			a0++
		case models.LevelA1:
			a1++
		case models.LevelA2:
			a2++
		}
	}
	return
}

// Restore reloads persisted signals still under the maximum lifetime, so a
// restart does not re-announce alerts that are legitimately active.
func (m *LifecycleManager) Restore(snap *models.Snapshot, now time.Time) int {
	if snap == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, sig := range snap.Signals {
		if sig == nil || sig.Symbol == "" || sig.Level == models.LevelNone {
			continue
		}
		if sig.Age(now) > m.cfg.MaxLifetime {
			continue
		}
		m.signals[sig.Symbol] = sig
		restored++
	}
	return restored
}

// Prune drops signals for symbols no longer on the watch-list.
func (m *LifecycleManager) Prune(keep map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym := range m.signals {
		if !keep[sym] {
			delete(m.signals, sym)
		}
	}
}
