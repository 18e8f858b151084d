package detect

import (
	"fmt"
	"time"
)

// ActiveHoursConfig bounds the session window in exchange-local time.
type ActiveHoursConfig struct {
	Timezone  string `yaml:"timezone"`
	OpenHour  int    `yaml:"open_hour"`
	CloseHour int    `yaml:"close_hour"`
}

func DefaultActiveHoursConfig() ActiveHoursConfig {
	return ActiveHoursConfig{Timezone: "America/New_York", OpenHour: 4, CloseHour: 20}
}

// ActiveHours gates signal production to Monday–Friday, 04:00–20:00
// exchange-local by default. Outside the window no signals are produced and
// existing signals are frozen.
type ActiveHours struct {
	loc       *time.Location
	openHour  int
	closeHour int
}

func NewActiveHours(cfg ActiveHoursConfig) (*ActiveHours, error) {
	def := DefaultActiveHoursConfig()
	if cfg.Timezone == "" {
		cfg.Timezone = def.Timezone
	}
	if cfg.OpenHour == 0 && cfg.CloseHour == 0 {
		cfg.OpenHour, cfg.CloseHour = def.OpenHour, def.CloseHour
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid active hours %d-%d", cfg.OpenHour, cfg.CloseHour)
	}
	return &ActiveHours{loc: loc, openHour: cfg.OpenHour, closeHour: cfg.CloseHour}, nil
}

// Within reports whether t falls inside the active session window.
func (h *ActiveHours) Within(t time.Time) bool {
	lt := t.In(h.loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := lt.Hour()
	return hour >= h.openHour && hour < h.closeHour
}

// Location exposes the exchange timezone for intraday pacing lookups.
func (h *ActiveHours) Location() *time.Location { return h.loc }
