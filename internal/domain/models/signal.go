package models

import "time"

// Level is the severity tier of a signal. A0 is the most actionable.
type Level int

const (
	LevelNone Level = iota
	LevelA2         // early warning
	LevelA1         // watch closely
	LevelA0         // immediate action
)

func (l Level) String() string {
	switch l {
	case LevelA0:
		return "A0"
	case LevelA1:
		return "A1"
	case LevelA2:
		return "A2"
	default:
		return "NONE"
	}
}

// MarshalText emits the tier label so snapshots stay readable.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	*l = ParseLevel(string(b))
	return nil
}

// ParseLevel maps a tier label back to a Level; unknown labels map to LevelNone.
func ParseLevel(s string) Level {
	switch s {
	case "A0":
		return LevelA0
	case "A1":
		return LevelA1
	case "A2":
		return LevelA2
	default:
		return LevelNone
	}
}

// Direction is the side of the move a signal describes.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Pattern tags describe what qualified the signal.
const (
	PatternMomentum        = "momentum"
	PatternVolumeSurge     = "volume_surge"
	PatternReversal        = "reversal"
	PatternHighBreakout    = "priorDayHigh breakout"
	PatternLowBreakdown    = "priorDayLow breakdown"
	PatternCatalystUpgrade = "catalyst upgrade"
)

// Signal is one active detection for a symbol. The lifecycle manager owns
// mutation after creation; at most one non-expired signal exists per symbol.
type Signal struct {
	Symbol        string            `json:"symbol"`
	Level         Level             `json:"level"`
	Direction     Direction         `json:"direction"`
	Pattern       string            `json:"pattern"`
	Price         float64           `json:"price"`
	PreviousClose float64           `json:"previous_close"`
	ChangePct     float64           `json:"change_pct"`
	VolumeRatio   float64           `json:"volume_ratio"`
	ATRPercent    float64           `json:"atr_percent"`
	CatalystScore float64           `json:"catalyst_score,omitempty"`
	Freshness     float64           `json:"freshness"`
	FiredAt       time.Time         `json:"fired_at"`
	LevelSinceAt  time.Time         `json:"level_since_at"`
	Detail        map[string]string `json:"detail,omitempty"`
}

// Clone returns an independent copy, including the detail map, so the
// original can keep mutating while the copy is read elsewhere.
func (s *Signal) Clone() *Signal {
	cp := *s
	if s.Detail != nil {
		cp.Detail = make(map[string]string, len(s.Detail))
		for k, v := range s.Detail {
			cp.Detail[k] = v
		}
	}
	return &cp
}

// Age reports how long the signal has existed, regardless of level changes.
func (s *Signal) Age(now time.Time) time.Duration { return now.Sub(s.FiredAt) }

// Annotate records a detail without clobbering an existing key.
func (s *Signal) Annotate(key, value string) {
	if s.Detail == nil {
		s.Detail = make(map[string]string)
	}
	if _, ok := s.Detail[key]; !ok {
		s.Detail[key] = value
	}
}
