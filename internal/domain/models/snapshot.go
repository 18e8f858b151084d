package models

import "time"

// CycleStats is metadata about the most recent completed poll cycle.
type CycleStats struct {
	UpdatedAt      time.Time     `json:"updated_at"`
	PollInterval   time.Duration `json:"poll_interval"`
	CycleDuration  time.Duration `json:"cycle_duration"`
	QuotesFetched  int           `json:"quotes_fetched"`
	QuotesSkipped  int           `json:"quotes_skipped"`
	VolumeRegime   string        `json:"volume_regime"`
	ThinFraction   float64       `json:"thin_fraction"`
	A0Count        int           `json:"a0_count"`
	A1Count        int           `json:"a1_count"`
	A2Count        int           `json:"a2_count"`
	DisabledReason string        `json:"disabled_reason,omitempty"`
}

// Snapshot is the primary persisted document: the full active-signal set plus
// cycle metadata. Written atomically every cycle and read back on start.
type Snapshot struct {
	Stats   CycleStats `json:"stats"`
	Signals []*Signal  `json:"signals"`
}
