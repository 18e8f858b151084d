package models

import "time"

// Quote is one polled observation for a symbol. Optional upstream fields are
// normalized through Coerce at the ingestion boundary, never deeper in.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Volume        float64   `json:"volume"`
	AverageVolume float64   `json:"average_volume"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Valid reports whether the quote carries usable price fields.
func (q *Quote) Valid() bool {
	return q.Symbol != "" && q.Price > 0 && q.PreviousClose > 0
}

// Coerce maps a possibly-missing or non-numeric upstream value to a defined
// default. Upstream payloads are loosely typed; NaN/negative values count as
// missing here so the classifier never sees them.
func Coerce(v *float64, def float64) float64 {
	if v == nil || *v != *v || *v < 0 {
		return def
	}
	return *v
}

// WatchlistEntry is one externally-ranked candidate. Read-mostly config,
// refreshed on the watch-list reload interval.
type WatchlistEntry struct {
	Symbol         string  `json:"symbol"`
	Score          float64 `json:"score"`
	ConfidenceTier string  `json:"confidence_tier"`
	AverageVolume  float64 `json:"average_volume"`
	ATRPercent     float64 `json:"atr_percent"`
	PriorDayHigh   float64 `json:"prior_day_high"`
	PriorDayLow    float64 `json:"prior_day_low"`
	RegimeLabel    string  `json:"regime_label"`
	EarningsSoon   bool    `json:"earnings_soon"`
	EarningsToday  bool    `json:"earnings_today"`
	EarningsDate   string  `json:"earnings_date,omitempty"` // RFC3339 or unix seconds; fills the flags when they are absent
}

// Catalyst is an optional per-symbol news annotation. Scores at or above the
// promotion threshold may lift A1/A2 proposals to A0 when cooldown is clear.
type Catalyst struct {
	Symbol        string    `json:"symbol"`
	CatalystScore float64   `json:"catalyst_score"`
	Category      string    `json:"category"`
	Headline      string    `json:"headline"`
	WarnFlags     []string  `json:"warn_flags,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
