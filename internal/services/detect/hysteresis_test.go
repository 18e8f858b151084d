package detect

import (
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

func testBoundaries() map[models.Level]float64 {
	return DefaultThresholdConfig().Boundaries()
}

func TestHysteresisFirstObservationAccepted(t *testing.T) {
	h := NewGateHysteresis(DefaultHysteresisConfig(), testBoundaries())
	now := time.Now()
	got := h.Evaluate("X", models.LevelA2, 1.5, 1.6, now)
	if got != models.LevelA2 {
		t.Fatalf("first observation must be accepted, got %s", got)
	}
}

func TestHysteresisSuppressesFlapInsideMargin(t *testing.T) {
	h := NewGateHysteresis(DefaultHysteresisConfig(), testBoundaries())
	now := time.Now()
	h.Evaluate("X", models.LevelA2, 1.5, 1.6, now)

	// A1 boundary is 3.0; 4.0 is inside the 2.0 margin band, hold not elapsed.
	got := h.Evaluate("X", models.LevelA1, 2.0, 4.0, now.Add(5*time.Second))
	if got != models.LevelA2 {
		t.Fatalf("borderline flip inside hold must keep prior level, got %s", got)
	}

	// A rejected proposal persists nothing: the prior state clock still runs.
	got = h.Evaluate("X", models.LevelA1, 2.0, 4.0, now.Add(31*time.Second))
	if got != models.LevelA1 {
		t.Fatalf("after min hold the flip must pass, got %s", got)
	}
}

func TestHysteresisClearsMarginImmediately(t *testing.T) {
	h := NewGateHysteresis(DefaultHysteresisConfig(), testBoundaries())
	now := time.Now()
	h.Evaluate("X", models.LevelA2, 1.5, 1.6, now)

	// 6.0 is 3.0 past the A1 boundary, beyond the margin: no hold applies.
	got := h.Evaluate("X", models.LevelA1, 2.0, 6.0, now.Add(time.Second))
	if got != models.LevelA1 {
		t.Fatalf("clear margin transition must pass immediately, got %s", got)
	}
}

func TestHysteresisSameLevelNoop(t *testing.T) {
	h := NewGateHysteresis(DefaultHysteresisConfig(), testBoundaries())
	now := time.Now()
	h.Evaluate("X", models.LevelA1, 2.0, 3.5, now)
	got := h.Evaluate("X", models.LevelA1, 2.0, 3.5, now.Add(time.Second))
	if got != models.LevelA1 {
		t.Fatalf("same level must pass through, got %s", got)
	}
}
