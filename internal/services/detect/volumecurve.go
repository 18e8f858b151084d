package detect

import "time"

// curvePoint is one breakpoint of the intraday volume pacing table: the
// fraction of a typical day's volume expected to have traded by that minute.
type curvePoint struct {
	minuteOfDay int
	fraction    float64
}

// defaultVolumeCurve is a fixed heuristic approximation of US-equity intraday
// pacing: heavy at the open, quiet through lunch, a surge into the close. It
// is a replaceable policy table, not load-bearing truth.
var defaultVolumeCurve = []curvePoint{
	{4 * 60, 0.02},    // pre-market start
	{8 * 60, 0.05},    // late pre-market
	{9*60 + 30, 0.08}, // opening bell
	{10 * 60, 0.25},   // first half hour is the heaviest
	{11 * 60, 0.40},
	{12 * 60, 0.50},
	{13 * 60, 0.57}, // lunch lull
	{14 * 60, 0.65},
	{15 * 60, 0.78},
	{15*60 + 30, 0.86},
	{16 * 60, 1.00}, // closing bell
}

// volumeFractionFloor keeps the normalization divisor away from zero in the
// earliest pre-market minutes.
const volumeFractionFloor = 0.02

// VolumeCurve answers "how much of the day's volume should have traded by now"
// so raw volume ratios can be normalized for time of day.
type VolumeCurve struct {
	points []curvePoint
	loc    *time.Location
}

func NewVolumeCurve(loc *time.Location) *VolumeCurve {
	return &VolumeCurve{points: defaultVolumeCurve, loc: loc}
}

// ExpectedFraction returns the expected cumulative volume fraction at t,
// linearly interpolated between breakpoints and floored at volumeFractionFloor.
func (c *VolumeCurve) ExpectedFraction(t time.Time) float64 {
	lt := t.In(c.loc)
	minute := lt.Hour()*60 + lt.Minute()

	if minute <= c.points[0].minuteOfDay {
		return volumeFractionFloor
	}
	last := c.points[len(c.points)-1]
	if minute >= last.minuteOfDay {
		return last.fraction
	}

	for i := 1; i < len(c.points); i++ {
		if minute < c.points[i].minuteOfDay {
			a, b := c.points[i-1], c.points[i]
			span := float64(b.minuteOfDay - a.minuteOfDay)
			frac := a.fraction + (b.fraction-a.fraction)*float64(minute-a.minuteOfDay)/span
			if frac < volumeFractionFloor {
				frac = volumeFractionFloor
			}
			return frac
		}
	}
	return last.fraction
}
