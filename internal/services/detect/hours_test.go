package detect

import (
	"testing"
	"time"
)

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestActiveHoursWindow(t *testing.T) {
	h, err := NewActiveHours(DefaultActiveHoursConfig())
	if err != nil {
		t.Fatalf("new active hours: %v", err)
	}

	// Tuesday 2024-10-08
	if !h.Within(nyTime(t, 2024, time.October, 8, 10, 0)) {
		t.Fatalf("weekday mid-session must be inside")
	}
	if !h.Within(nyTime(t, 2024, time.October, 8, 4, 0)) {
		t.Fatalf("open hour is inclusive")
	}
	if h.Within(nyTime(t, 2024, time.October, 8, 20, 0)) {
		t.Fatalf("close hour is exclusive")
	}
	if h.Within(nyTime(t, 2024, time.October, 8, 3, 59)) {
		t.Fatalf("pre-open must be outside")
	}
	// Saturday
	if h.Within(nyTime(t, 2024, time.October, 12, 10, 0)) {
		t.Fatalf("weekend must be outside")
	}
}

func TestActiveHoursRejectsBadConfig(t *testing.T) {
	if _, err := NewActiveHours(ActiveHoursConfig{Timezone: "America/New_York", OpenHour: 10, CloseHour: 4}); err == nil {
		t.Fatalf("inverted window must error")
	}
	if _, err := NewActiveHours(ActiveHoursConfig{Timezone: "Not/AZone", OpenHour: 4, CloseHour: 20}); err == nil {
		t.Fatalf("unknown timezone must error")
	}
}

func TestVolumeCurveInterpolation(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	c := NewVolumeCurve(loc)

	if got := c.ExpectedFraction(nyTime(t, 2024, time.October, 8, 3, 0)); got != volumeFractionFloor {
		t.Fatalf("pre-curve fraction = %v, want floor %v", got, volumeFractionFloor)
	}
	if got := c.ExpectedFraction(nyTime(t, 2024, time.October, 8, 10, 0)); got != 0.25 {
		t.Fatalf("10:00 fraction = %v, want 0.25", got)
	}
	got := c.ExpectedFraction(nyTime(t, 2024, time.October, 8, 9, 45))
	want := 0.08 + (0.25-0.08)*0.5
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("9:45 fraction = %v, want %v", got, want)
	}
	if got := c.ExpectedFraction(nyTime(t, 2024, time.October, 8, 18, 0)); got != 1.0 {
		t.Fatalf("post-close fraction = %v, want 1.0", got)
	}
}
