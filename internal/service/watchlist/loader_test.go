package watchlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

func writeWatchlist(t *testing.T, entries []*models.WatchlistEntry) string {
	t.Helper()
	b, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "watchlist.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeWatchlist(t, []*models.WatchlistEntry{
		{Symbol: "ACME", Score: 0.9, AverageVolume: 1_000_000},
		{Symbol: "OTHR", Score: 0.5},
		nil,
		{Score: 0.1}, // no symbol, skipped
	})
	loader := New(path, 0, time.Second)

	entries, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Symbol != "ACME" || entries[0].AverageVolume != 1_000_000 {
		t.Fatalf("first entry = %+v", entries[0])
	}
}

func TestLoadCapsAtMaxSize(t *testing.T) {
	path := writeWatchlist(t, []*models.WatchlistEntry{
		{Symbol: "AAA"}, {Symbol: "BBB"}, {Symbol: "CCC"},
	})
	loader := New(path, 2, time.Second)

	entries, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[1].Symbol != "BBB" {
		t.Fatalf("entries = %+v, want the first two in order", entries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := New(filepath.Join(t.TempDir(), "absent.json"), 0, time.Second)
	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatalf("want error for a missing file")
	}
}

func TestLoadMalformedBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := New(path, 0, time.Second)
	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestLoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]*models.WatchlistEntry{{Symbol: "ACME", Score: 0.9}})
	}))
	defer srv.Close()

	loader := New(srv.URL, 0, time.Second)
	entries, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Symbol != "ACME" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestDeriveEarnings(t *testing.T) {
	now := time.Date(2024, time.October, 8, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		date      string
		wantToday bool
		wantSoon  bool
	}{
		{"same day", "2024-10-08T21:00:00Z", true, true},
		{"in three days", "2024-10-11T12:00:00Z", false, true},
		{"in two weeks", "2024-10-22T12:00:00Z", false, false},
		{"yesterday", "2024-10-07T12:00:00Z", false, false},
		{"unix seconds same day", "1728421200", true, true},
		{"unparseable", "next tuesday", false, false},
		{"empty", "", false, false},
	}
	for _, tc := range cases {
		e := &models.WatchlistEntry{Symbol: "ACME", EarningsDate: tc.date}
		deriveEarnings(e, now)
		if e.EarningsToday != tc.wantToday || e.EarningsSoon != tc.wantSoon {
			t.Fatalf("%s: today=%v soon=%v, want today=%v soon=%v",
				tc.name, e.EarningsToday, e.EarningsSoon, tc.wantToday, tc.wantSoon)
		}
	}

	// Upstream flags win over the derived date.
	e := &models.WatchlistEntry{Symbol: "ACME", EarningsSoon: true, EarningsDate: "2024-10-22T12:00:00Z"}
	deriveEarnings(e, now)
	if !e.EarningsSoon || e.EarningsToday {
		t.Fatalf("preset flags mutated: %+v", e)
	}
}
