package detect

import (
	"testing"
	"time"
)

func TestDeltaFirstObservationIsFlat(t *testing.T) {
	tr := NewDeltaTracker(5)
	d := tr.Update("AAPL", 100, 1e6, time.Now())
	if d.Tick != TickFlat {
		t.Fatalf("expected flat tick, got %s", d.Tick)
	}
	if d.Streak != 0 || d.DPrice != 0 {
		t.Fatalf("expected zero delta, got %+v", d)
	}
	if _, ok := tr.PreviousPrice("AAPL"); ok {
		t.Fatalf("previous price should need two observations")
	}
}

func TestDeltaStreaks(t *testing.T) {
	tr := NewDeltaTracker(5)
	now := time.Now()
	tr.Update("X", 100, 0, now)
	d := tr.Update("X", 101, 0, now.Add(5*time.Second))
	if d.Tick != TickUp || d.Streak != 1 {
		t.Fatalf("expected up streak 1, got %s/%d", d.Tick, d.Streak)
	}
	d = tr.Update("X", 102, 0, now.Add(10*time.Second))
	if d.Streak != 2 {
		t.Fatalf("expected streak 2, got %d", d.Streak)
	}
	d = tr.Update("X", 101, 0, now.Add(15*time.Second))
	if d.Tick != TickDown || d.Streak != -1 {
		t.Fatalf("down move must reset streak, got %s/%d", d.Tick, d.Streak)
	}

	prev, ok := tr.PreviousPrice("X")
	if !ok || prev != 102 {
		t.Fatalf("expected previous price 102, got %v/%v", prev, ok)
	}
}

func TestDeltaFlatEpsilon(t *testing.T) {
	tr := NewDeltaTracker(5)
	now := time.Now()
	tr.Update("X", 100, 0, now)
	d := tr.Update("X", 100.004, 0, now.Add(5*time.Second))
	if d.Tick != TickFlat {
		t.Fatalf("sub-epsilon move must be flat, got %s", d.Tick)
	}
}

func TestFlatOver(t *testing.T) {
	tr := NewDeltaTracker(8)
	now := time.Now()
	for i := 0; i < 5; i++ {
		tr.Update("X", 100.0, 0, now.Add(time.Duration(i)*5*time.Second))
	}
	if !tr.FlatOver("X", 4, 0.10) {
		t.Fatalf("unchanged price over 4 polls must be flat")
	}
	tr.Update("X", 101.0, 0, now.Add(30*time.Second))
	if tr.FlatOver("X", 4, 0.10) {
		t.Fatalf("1%% move inside window must not be flat")
	}
	if tr.FlatOver("Y", 4, 0.10) {
		t.Fatalf("unknown symbol must never be flat")
	}
}

func TestDeltaPruneAndReset(t *testing.T) {
	tr := NewDeltaTracker(5)
	now := time.Now()
	tr.Update("A", 1, 0, now)
	tr.Update("B", 1, 0, now)
	tr.Prune(map[string]bool{"A": true})
	if _, ok := tr.m["B"]; ok {
		t.Fatalf("pruned symbol must be gone")
	}
	tr.ResetHistory()
	if len(tr.m) != 0 {
		t.Fatalf("reset must clear all state")
	}
}
