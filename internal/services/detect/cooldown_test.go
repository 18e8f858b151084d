package detect

import (
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

func TestCooldownRegimeStretch(t *testing.T) {
	c := NewDynamicCooldown(DefaultCooldownConfig())

	thin := c.Compute("X", ActivityThin, false)
	normal := c.Compute("X", ActivityNormal, false)
	high := c.Compute("X", ActivityHigh, false)

	if !(thin > normal && normal > high) {
		t.Fatalf("expected thin > normal > high, got %v %v %v", thin, normal, high)
	}
	if thin != 180*time.Second {
		t.Fatalf("thin cooldown = %v, want 180s", thin)
	}
	if high != 36*time.Second {
		t.Fatalf("high cooldown = %v, want 36s", high)
	}
}

func TestCooldownOscillationStretch(t *testing.T) {
	c := NewDynamicCooldown(DefaultCooldownConfig())
	now := time.Now()

	// Four alternating-direction A0s is three flips.
	dirs := []models.Direction{
		models.DirectionLong, models.DirectionShort,
		models.DirectionLong, models.DirectionShort,
	}
	for i, d := range dirs {
		c.RecordTransition("X", d, now.Add(time.Duration(i)*time.Minute))
	}

	got := c.Compute("X", ActivityNormal, false)
	want := time.Duration(float64(90*time.Second) * 2.5)
	if got != want {
		t.Fatalf("oscillating symbol cooldown = %v, want %v", got, want)
	}
}

func TestCooldownNewsShrinkClampedToMin(t *testing.T) {
	c := NewDynamicCooldown(DefaultCooldownConfig())
	got := c.Compute("X", ActivityNormal, true)
	if got != 30*time.Second {
		t.Fatalf("news cooldown = %v, want clamp at 30s", got)
	}
}

func TestCheckCooldown(t *testing.T) {
	c := NewDynamicCooldown(DefaultCooldownConfig())
	now := time.Now()

	if !c.CheckCooldown("X", ActivityNormal, false, now) {
		t.Fatalf("symbol with no prior A0 must be clear")
	}
	c.RecordTransition("X", models.DirectionLong, now)
	if c.CheckCooldown("X", ActivityNormal, false, now.Add(10*time.Second)) {
		t.Fatalf("10s after an A0 the symbol must be held")
	}
	if !c.CheckCooldown("X", ActivityNormal, false, now.Add(95*time.Second)) {
		t.Fatalf("past base cooldown the symbol must be clear")
	}
}

func TestCooldownRingBounded(t *testing.T) {
	cfg := DefaultCooldownConfig()
	c := NewDynamicCooldown(cfg)
	now := time.Now()
	for i := 0; i < cfg.RingSize*3; i++ {
		c.RecordTransition("X", models.DirectionLong, now.Add(time.Duration(i)*time.Second))
	}
	if n := len(c.m["X"].ring); n != cfg.RingSize {
		t.Fatalf("ring grew to %d, want %d", n, cfg.RingSize)
	}
}
