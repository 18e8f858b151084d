package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSnapshotStore(filepath.Join(dir, "snapshot.json"), filepath.Join(dir, "compact.txt"))

	now := time.Date(2024, time.October, 8, 20, 5, 0, 0, time.UTC)
	snap := &models.Snapshot{
		Stats: models.CycleStats{
			UpdatedAt:     now,
			PollInterval:  5 * time.Second,
			QuotesFetched: 42,
			VolumeRegime:  "NORMAL",
			A0Count:       1,
		},
		Signals: []*models.Signal{
			{
				Symbol:    "ACME",
				Level:     models.LevelA0,
				Direction: models.DirectionLong,
				Pattern:   models.PatternMomentum,
				Price:     125,
				ChangePct: 25,
				Freshness: 0.8,
				FiredAt:   now.Add(-time.Minute),
			},
		},
	}
	if err := store.WriteSnapshot(snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got == nil || len(got.Signals) != 1 {
		t.Fatalf("restored = %+v, want one signal", got)
	}
	sig := got.Signals[0]
	if sig.Symbol != "ACME" || sig.Level != models.LevelA0 || sig.Direction != models.DirectionLong {
		t.Fatalf("restored signal = %+v", sig)
	}
	if got.Stats.QuotesFetched != 42 || got.Stats.A0Count != 1 {
		t.Fatalf("restored stats = %+v", got.Stats)
	}

	// The level round-trips through its text label, not a bare ordinal.
	raw, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !strings.Contains(string(raw), `"level": "A0"`) {
		t.Fatalf("snapshot body missing readable level:\n%s", raw)
	}
}

func TestRestoreMissingFile(t *testing.T) {
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "absent.json"), "")
	snap, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if snap != nil {
		t.Fatalf("restored = %+v, want nil for a missing file", snap)
	}
}

func TestRestoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewFileSnapshotStore(path, "")
	if _, err := store.Restore(); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestWriteCompact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compact.txt")
	store := NewFileSnapshotStore(filepath.Join(dir, "snapshot.json"), path)

	snap := &models.Snapshot{Stats: models.CycleStats{
		UpdatedAt:    time.Date(2024, time.October, 8, 20, 5, 0, 0, time.UTC),
		PollInterval: 5 * time.Second,
		VolumeRegime: "NORMAL",
		A0Count:      1,
	}}
	lines := []string{"ACME A0 LONG tick=up streak=3 price=125.00 chg=25.00% vr=3.00 age=60s cat=0.00"}
	if err := store.WriteCompact(snap, lines); err != nil {
		t.Fatalf("write compact: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(b)
	if !strings.HasPrefix(body, "# updated=2024-10-08T20:05:00Z") {
		t.Fatalf("missing metadata header:\n%s", body)
	}
	if !strings.Contains(body, "a0=1") || !strings.Contains(body, "regime=NORMAL") {
		t.Fatalf("metadata incomplete:\n%s", body)
	}
	if !strings.Contains(body, lines[0]) {
		t.Fatalf("symbol line missing:\n%s", body)
	}
}

func TestWriteCompactDisabled(t *testing.T) {
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"), "")
	if err := store.WriteCompact(&models.Snapshot{}, []string{"x"}); err != nil {
		t.Fatalf("write compact with no path: %v", err)
	}
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store := NewFileSnapshotStore(path, "")

	for i := 0; i < 3; i++ {
		if err := store.WriteSnapshot(&models.Snapshot{Stats: models.CycleStats{QuotesFetched: i}}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	got, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.Stats.QuotesFetched != 2 {
		t.Fatalf("quotesFetched = %d, want the last write", got.Stats.QuotesFetched)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only the snapshot", len(entries))
	}
}
