package detect

import "SigPulse/internal/domain/models"

// VolumeRegime classifies how much of the watch-list trades at abnormally low volume.
type VolumeRegime string

const (
	RegimeNormal         VolumeRegime = "NORMAL"
	RegimeLowVolume      VolumeRegime = "LOW_VOLUME"
	RegimeHolidaySuspect VolumeRegime = "HOLIDAY_SUSPECT"
)

// ActivityRegime is the cooldown-facing view of session activity.
type ActivityRegime string

const (
	ActivityThin   ActivityRegime = "THIN"
	ActivityNormal ActivityRegime = "NORMAL"
	ActivityHigh   ActivityRegime = "HIGH"
)

// ThresholdFactors are multiplicative adjustments applied to every downstream
// threshold comparison. HOLIDAY_SUSPECT factors are large enough that every
// comparison fails, which suspends emission without a separate code path.
type ThresholdFactors struct {
	Change float64
	Volume float64
}

const (
	thinVolumeRatio     = 0.5  // volume below half of average counts as thin
	holidayThinFraction = 0.80 // >=80% thin symbols look like a holiday session
	lowVolumeFraction   = 0.50
	highActivityMax     = 0.10
	suspendFactor       = 1e9
)

// VolumeRegimeDetector recomputes the session-wide regime from the full quote
// set every cycle.
type VolumeRegimeDetector struct {
	regime       VolumeRegime
	thinFraction float64
}

func NewVolumeRegimeDetector() *VolumeRegimeDetector {
	return &VolumeRegimeDetector{regime: RegimeNormal}
}

// Update reclassifies the session from the latest quote set. Symbols without a
// known averageVolume are excluded from the count.
func (d *VolumeRegimeDetector) Update(quotes map[string]*models.Quote) VolumeRegime {
	counted, thin := 0, 0
	for _, q := range quotes {
		if q == nil || q.AverageVolume <= 0 {
			continue
		}
		counted++
		if q.Volume < thinVolumeRatio*q.AverageVolume {
			thin++
		}
	}

	if counted == 0 {
		d.regime = RegimeNormal
		d.thinFraction = 0
		return d.regime
	}

	d.thinFraction = float64(thin) / float64(counted)
	switch {
	case d.thinFraction >= holidayThinFraction:
		d.regime = RegimeHolidaySuspect
	case d.thinFraction >= lowVolumeFraction:
		d.regime = RegimeLowVolume
	default:
		d.regime = RegimeNormal
	}
	return d.regime
}

func (d *VolumeRegimeDetector) Regime() VolumeRegime  { return d.regime }
func (d *VolumeRegimeDetector) ThinFraction() float64 { return d.thinFraction }

// AdjustedThresholds returns the multiplicative factors for the current regime.
func (d *VolumeRegimeDetector) AdjustedThresholds() ThresholdFactors {
	switch d.regime {
	case RegimeHolidaySuspect:
		return ThresholdFactors{Change: suspendFactor, Volume: suspendFactor}
	case RegimeLowVolume:
		return ThresholdFactors{Change: 1.2, Volume: 1.2}
	default:
		return ThresholdFactors{Change: 1.0, Volume: 1.0}
	}
}

// Activity maps the thin fraction onto the cooldown's activity scale.
func (d *VolumeRegimeDetector) Activity() ActivityRegime {
	switch {
	case d.thinFraction >= lowVolumeFraction:
		return ActivityThin
	case d.thinFraction <= highActivityMax:
		return ActivityHigh
	default:
		return ActivityNormal
	}
}
