package detect

import (
	"time"

	"SigPulse/internal/domain/models"
)

// CooldownConfig controls adaptive A0 re-fire suppression.
type CooldownConfig struct {
	Base     time.Duration `yaml:"base"`
	Min      time.Duration `yaml:"min"`
	Max      time.Duration `yaml:"max"`
	RingSize int           `yaml:"ring_size"`
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Base:     90 * time.Second,
		Min:      30 * time.Second,
		Max:      10 * time.Minute,
		RingSize: 6,
	}
}

type cooldownTransition struct {
	at        time.Time
	direction models.Direction
}

type cooldownState struct {
	lastA0 time.Time
	ring   []cooldownTransition // bounded, oldest first
}

// DynamicCooldown spaces successive A0 emissions per symbol. The spacing
// stretches in thin sessions and for symbols whipsawing between directions,
// and shrinks when the market is busy or a fresh catalyst justifies urgency.
type DynamicCooldown struct {
	cfg CooldownConfig
	m   map[string]*cooldownState
}

func NewDynamicCooldown(cfg CooldownConfig) *DynamicCooldown {
	def := DefaultCooldownConfig()
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Min <= 0 {
		cfg.Min = def.Min
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = def.RingSize
	}
	return &DynamicCooldown{cfg: cfg, m: make(map[string]*cooldownState)}
}

// Compute returns the current cooldown duration for a symbol.
func (c *DynamicCooldown) Compute(symbol string, regime ActivityRegime, hasNewsCatalyst bool) time.Duration {
	regimeFactor := 1.0
	switch regime {
	case ActivityThin:
		regimeFactor = 2.0
	case ActivityHigh:
		regimeFactor = 0.4
	}

	oscillationFactor := 1.0
	if st, ok := c.m[symbol]; ok {
		flips := 0
		for i := 1; i < len(st.ring); i++ {
			if st.ring[i].direction != st.ring[i-1].direction {
				flips++
			}
		}
		if flips >= 3 {
			oscillationFactor = 1.0 + 0.5*float64(flips)
			if oscillationFactor > 3.0 {
				oscillationFactor = 3.0
			}
		}
	}

	newsFactor := 1.0
	if hasNewsCatalyst {
		newsFactor = 0.3
	}

	d := time.Duration(float64(c.cfg.Base) * regimeFactor * oscillationFactor * newsFactor)
	if d < c.cfg.Min {
		d = c.cfg.Min
	}
	if d > c.cfg.Max {
		d = c.cfg.Max
	}
	return d
}

// CheckCooldown reports whether a new A0 may fire for the symbol. A symbol
// with no recorded A0 is always clear.
func (c *DynamicCooldown) CheckCooldown(symbol string, regime ActivityRegime, hasNewsCatalyst bool, now time.Time) bool {
	st, ok := c.m[symbol]
	if !ok || st.lastA0.IsZero() {
		return true
	}
	return now.Sub(st.lastA0) >= c.Compute(symbol, regime, hasNewsCatalyst)
}

// RecordTransition marks an A0 emission. Call only immediately before a new A0
// actually fires; recording on every evaluation corrupts the oscillation signal.
func (c *DynamicCooldown) RecordTransition(symbol string, direction models.Direction, now time.Time) {
	st, ok := c.m[symbol]
	if !ok {
		st = &cooldownState{}
		c.m[symbol] = st
	}
	st.lastA0 = now
	st.ring = append(st.ring, cooldownTransition{at: now, direction: direction})
	if len(st.ring) > c.cfg.RingSize {
		st.ring = st.ring[len(st.ring)-c.cfg.RingSize:]
	}
}

// Prune drops state for symbols no longer on the watch-list.
func (c *DynamicCooldown) Prune(keep map[string]bool) {
	for sym := range c.m {
		if !keep[sym] {
			delete(c.m, sym)
		}
	}
}
