package detect

import (
	"math"
	"time"

	"SigPulse/internal/domain/models"
)

// HysteresisConfig controls the anti-flap level filter.
type HysteresisConfig struct {
	MarginPct      float64       `yaml:"margin_pct"`       // band around a level boundary where flips are suppressed
	MinHoldSeconds time.Duration `yaml:"min_hold_seconds"` // level changes allowed after this hold regardless of margin
}

func DefaultHysteresisConfig() HysteresisConfig {
	return HysteresisConfig{MarginPct: 2.0, MinHoldSeconds: 30 * time.Second}
}

type hysteresisState struct {
	level models.Level
	at    time.Time
}

// GateHysteresis suppresses level flapping near threshold boundaries. Every
// observable level must pass through Evaluate; state changes nowhere else.
type GateHysteresis struct {
	cfg        HysteresisConfig
	boundaries map[models.Level]float64 // changePct boundary per proposed level
	m          map[string]*hysteresisState
}

func NewGateHysteresis(cfg HysteresisConfig, boundaries map[models.Level]float64) *GateHysteresis {
	if cfg.MarginPct <= 0 {
		cfg.MarginPct = DefaultHysteresisConfig().MarginPct
	}
	if cfg.MinHoldSeconds <= 0 {
		cfg.MinHoldSeconds = DefaultHysteresisConfig().MinHoldSeconds
	}
	return &GateHysteresis{cfg: cfg, boundaries: boundaries, m: make(map[string]*hysteresisState)}
}

// Evaluate filters a proposed level against the last accepted one. A proposal
// inside the margin band around its boundary is rejected until MinHoldSeconds
// have elapsed since the last accepted transition; rejection returns the prior
// level and persists nothing.
func (g *GateHysteresis) Evaluate(symbol string, proposed models.Level, volumeRatio, absChangePct float64, now time.Time) models.Level {
	st, ok := g.m[symbol]
	if !ok {
		g.m[symbol] = &hysteresisState{level: proposed, at: now}
		return proposed
	}
	if proposed == st.level {
		return st.level
	}

	clear := true
	if boundary, ok := g.boundaries[proposed]; ok && boundary > 0 {
		clear = math.Abs(absChangePct-boundary) > g.cfg.MarginPct
	}
	held := now.Sub(st.at) >= g.cfg.MinHoldSeconds

	if !clear && !held {
		return st.level
	}
	st.level = proposed
	st.at = now
	return proposed
}

// Current returns the last accepted level for display purposes.
func (g *GateHysteresis) Current(symbol string) (models.Level, bool) {
	st, ok := g.m[symbol]
	if !ok {
		return models.LevelNone, false
	}
	return st.level, true
}

// Prune drops state for symbols no longer on the watch-list.
func (g *GateHysteresis) Prune(keep map[string]bool) {
	for sym := range g.m {
		if !keep[sym] {
			delete(g.m, sym)
		}
	}
}
