package detect

import (
	"fmt"
	"math"
	"time"

	"SigPulse/internal/domain/models"
)

// ThresholdConfig is the tier qualification table before regime adjustment.
type ThresholdConfig struct {
	A0ChangePct   float64 `yaml:"a0_change_pct"`
	A0VolumeRatio float64 `yaml:"a0_volume_ratio"`

	A1ChangePct     float64 `yaml:"a1_change_pct"`
	A1VolumeRatio   float64 `yaml:"a1_volume_ratio"`
	A1SoloChangePct float64 `yaml:"a1_solo_change_pct"` // large enough to qualify without volume confirmation

	A2ChangePct        float64 `yaml:"a2_change_pct"`
	A2VolumeRatio      float64 `yaml:"a2_volume_ratio"`
	A2SurgeChangePct   float64 `yaml:"a2_surge_change_pct"` // smaller move carried by surge volume alone
	A2SurgeVolumeRatio float64 `yaml:"a2_surge_volume_ratio"`

	MinAverageVolume     float64       `yaml:"min_average_volume"`
	StaleVelocityPolls   int           `yaml:"stale_velocity_polls"`
	StaleVelocityEpsPct  float64       `yaml:"stale_velocity_eps_pct"`
	CatalystPromoteScore float64       `yaml:"catalyst_promote_score"`
	CatalystFreshFor     time.Duration `yaml:"catalyst_fresh_for"`
}

func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		A0ChangePct:   5.0,
		A0VolumeRatio: 3.0,

		A1ChangePct:     3.0,
		A1VolumeRatio:   2.0,
		A1SoloChangePct: 6.0,

		A2ChangePct:        1.5,
		A2VolumeRatio:      1.5,
		A2SurgeChangePct:   1.0,
		A2SurgeVolumeRatio: 2.5,

		MinAverageVolume:     1000,
		StaleVelocityPolls:   4,
		StaleVelocityEpsPct:  0.10,
		CatalystPromoteScore: 0.80,
		CatalystFreshFor:     15 * time.Minute,
	}
}

// Boundaries exposes the per-level changePct boundary for the hysteresis filter.
func (c ThresholdConfig) Boundaries() map[models.Level]float64 {
	return map[models.Level]float64{
		models.LevelA0: c.A0ChangePct,
		models.LevelA1: c.A1ChangePct,
		models.LevelA2: c.A2ChangePct,
	}
}

// Classifier proposes a level/direction for one symbol from one quote plus one
// watch-list entry. It owns no signal state; the lifecycle manager does.
type Classifier struct {
	cfg        ThresholdConfig
	hours      *ActiveHours
	curve      *VolumeCurve
	regime     *VolumeRegimeDetector
	hysteresis *GateHysteresis
	cooldown   *DynamicCooldown
	deltas     *DeltaTracker
}

func NewClassifier(
	cfg ThresholdConfig,
	hours *ActiveHours,
	curve *VolumeCurve,
	regime *VolumeRegimeDetector,
	hysteresis *GateHysteresis,
	cooldown *DynamicCooldown,
	deltas *DeltaTracker,
) *Classifier {
	def := DefaultThresholdConfig()
	if cfg.A0ChangePct <= 0 {
		cfg = def
	}
	if cfg.MinAverageVolume <= 0 {
		cfg.MinAverageVolume = def.MinAverageVolume
	}
	if cfg.StaleVelocityPolls <= 0 {
		cfg.StaleVelocityPolls = def.StaleVelocityPolls
	}
	if cfg.StaleVelocityEpsPct <= 0 {
		cfg.StaleVelocityEpsPct = def.StaleVelocityEpsPct
	}
	if cfg.CatalystPromoteScore <= 0 {
		cfg.CatalystPromoteScore = def.CatalystPromoteScore
	}
	if cfg.CatalystFreshFor <= 0 {
		cfg.CatalystFreshFor = def.CatalystFreshFor
	}
	return &Classifier{
		cfg:        cfg,
		hours:      hours,
		curve:      curve,
		regime:     regime,
		hysteresis: hysteresis,
		cooldown:   cooldown,
		deltas:     deltas,
	}
}

// Config returns the effective threshold table (after defaulting).
func (c *Classifier) Config() ThresholdConfig { return c.cfg }

// Classify proposes a signal for one symbol, or nil for "no signal". The guard
// chain runs before any per-symbol state mutation, so a rejected symbol leaves
// no trace this cycle.
func (c *Classifier) Classify(q *models.Quote, entry *models.WatchlistEntry, cat *models.Catalyst, now time.Time) *models.Signal {
	// Guard chain: expected absence, not errors.
	if !c.hours.Within(now) {
		return nil
	}
	avgVol := entry.AverageVolume
	if avgVol <= 0 {
		avgVol = q.AverageVolume
	}
	if avgVol < c.cfg.MinAverageVolume {
		return nil
	}
	if q.Price <= 0 || q.PreviousClose <= 0 {
		return nil
	}

	delta := c.deltas.Update(q.Symbol, q.Price, q.Volume, now)
	prevPollPrice, hasPrev := c.deltas.PreviousPrice(q.Symbol)

	changePct := (q.Price/q.PreviousClose - 1) * 100
	absChange := math.Abs(changePct)
	rawRatio := q.Volume / avgVol
	volumeRatio := rawRatio / c.curve.ExpectedFraction(now)

	f := c.regime.AdjustedThresholds()
	level, pattern := c.baseTier(absChange, volumeRatio, f)
	if level == models.LevelNone {
		return nil
	}
	direction := models.DirectionLong
	if changePct < 0 {
		direction = models.DirectionShort
	}

	sig := &models.Signal{
		Symbol:        q.Symbol,
		Level:         level,
		Direction:     direction,
		Pattern:       pattern,
		Price:         q.Price,
		PreviousClose: q.PreviousClose,
		ChangePct:     changePct,
		VolumeRatio:   volumeRatio,
		ATRPercent:    entry.ATRPercent,
		Freshness:     1.0,
		FiredAt:       now,
		LevelSinceAt:  now,
	}
	sig.Annotate("tick", string(delta.Tick))
	sig.Annotate("streak", fmt.Sprintf("%d", delta.Streak))
	sig.Annotate("raw_volume_ratio", fmt.Sprintf("%.2f", rawRatio))

	// Overlays. Order is deliberate: the breakout upgrade runs after the
	// falling-knife demotion so a confirmed key-level cross can re-promote.
	c.applyFallingKnife(sig, delta)
	if hasPrev {
		c.applyReversal(sig, prevPollPrice, q)
		c.applyBreakout(sig, prevPollPrice, q, entry)
	}
	c.applyStaleVelocity(sig)
	if sig.Level == models.LevelNone {
		return nil
	}

	hasNews := c.catalystFresh(cat, now)
	if cat != nil {
		sig.CatalystScore = cat.CatalystScore
	}
	c.applyCatalystPromotion(sig, hasNews, now)

	sig.Level = c.hysteresis.Evaluate(q.Symbol, sig.Level, volumeRatio, absChange, now)
	if sig.Level == models.LevelNone {
		return nil
	}

	if sig.Level == models.LevelA0 {
		if !c.cooldown.CheckCooldown(q.Symbol, c.regime.Activity(), hasNews, now) {
			sig.Level = models.LevelA1
			sig.Annotate("held", "cooldown")
		} else if directionDisconfirmed(sig.Direction, delta.Tick) {
			sig.Level = models.LevelA1
			sig.Annotate("held", "unconfirmed_direction")
		}
	}
	return sig
}

// baseTier picks the most severe tier whose regime-adjusted thresholds hold.
func (c *Classifier) baseTier(absChange, volumeRatio float64, f ThresholdFactors) (models.Level, string) {
	switch {
	case absChange >= c.cfg.A0ChangePct*f.Change && volumeRatio >= c.cfg.A0VolumeRatio*f.Volume:
		return models.LevelA0, models.PatternMomentum
	case absChange >= c.cfg.A1ChangePct*f.Change && volumeRatio >= c.cfg.A1VolumeRatio*f.Volume:
		return models.LevelA1, models.PatternMomentum
	case absChange >= c.cfg.A1SoloChangePct*f.Change:
		// A sufficiently large move stands on its own.
		return models.LevelA1, models.PatternMomentum
	case absChange >= c.cfg.A2ChangePct*f.Change && volumeRatio >= c.cfg.A2VolumeRatio*f.Volume:
		return models.LevelA2, models.PatternMomentum
	case absChange >= c.cfg.A2SurgeChangePct*f.Change && volumeRatio >= c.cfg.A2SurgeVolumeRatio*f.Volume:
		return models.LevelA2, models.PatternVolumeSurge
	default:
		return models.LevelNone, ""
	}
}

// applyFallingKnife demotes a LONG A0 whose price fell since the previous poll.
// A LONG A1 is only annotated.
func (c *Classifier) applyFallingKnife(sig *models.Signal, delta Delta) {
	if sig.Direction != models.DirectionLong || delta.DPrice >= 0 || delta.Tick == TickFlat {
		return
	}
	switch sig.Level {
	case models.LevelA0:
		sig.Level = models.LevelA1
		sig.Annotate("falling_knife", "demoted")
	case models.LevelA1:
		sig.Annotate("falling_knife", "flagged")
	}
}

// applyReversal relabels a signal whose price crossed back over previousClose
// since the last poll.
func (c *Classifier) applyReversal(sig *models.Signal, prev float64, q *models.Quote) {
	crossedUp := prev < q.PreviousClose && q.Price > q.PreviousClose
	crossedDown := prev > q.PreviousClose && q.Price < q.PreviousClose
	if !crossedUp && !crossedDown {
		return
	}
	sig.Pattern = models.PatternReversal
	if crossedUp {
		sig.Direction = models.DirectionLong
	} else {
		sig.Direction = models.DirectionShort
	}
}

// applyBreakout upgrades the first confirmed cross of a prior-day level. Runs
// after the falling-knife demotion so it can re-promote A1 back to A0.
func (c *Classifier) applyBreakout(sig *models.Signal, prev float64, q *models.Quote, entry *models.WatchlistEntry) {
	if entry.PriorDayHigh > 0 && prev <= entry.PriorDayHigh && q.Price > entry.PriorDayHigh {
		sig.Pattern = models.PatternHighBreakout
		sig.Direction = models.DirectionLong
		if sig.Level == models.LevelA1 {
			sig.Level = models.LevelA0
		}
		sig.Annotate("key_level", fmt.Sprintf("%.2f", entry.PriorDayHigh))
		return
	}
	if entry.PriorDayLow > 0 && prev >= entry.PriorDayLow && q.Price < entry.PriorDayLow {
		sig.Pattern = models.PatternLowBreakdown
		sig.Direction = models.DirectionShort
		if sig.Level == models.LevelA1 {
			sig.Level = models.LevelA0
		}
		sig.Annotate("key_level", fmt.Sprintf("%.2f", entry.PriorDayLow))
	}
}

// applyStaleVelocity demotes one tier when the price has barely moved over the
// recent polls. An A2 that goes stale stops being a signal at all.
func (c *Classifier) applyStaleVelocity(sig *models.Signal) {
	if !c.deltas.FlatOver(sig.Symbol, c.cfg.StaleVelocityPolls, c.cfg.StaleVelocityEpsPct) {
		return
	}
	switch sig.Level {
	case models.LevelA0:
		sig.Level = models.LevelA1
	case models.LevelA1:
		sig.Level = models.LevelA2
	case models.LevelA2:
		sig.Level = models.LevelNone
	}
	sig.Annotate("stale_velocity", "demoted")
}

// applyCatalystPromotion lifts an A1/A2 to A0 on a strong fresh catalyst,
// provided the cooldown is clear.
func (c *Classifier) applyCatalystPromotion(sig *models.Signal, hasNews bool, now time.Time) {
	if !hasNews {
		return
	}
	if sig.Level != models.LevelA1 && sig.Level != models.LevelA2 {
		return
	}
	if !c.cooldown.CheckCooldown(sig.Symbol, c.regime.Activity(), true, now) {
		return
	}
	sig.Level = models.LevelA0
	sig.Annotate("promotion", models.PatternCatalystUpgrade)
}

func (c *Classifier) catalystFresh(cat *models.Catalyst, now time.Time) bool {
	if cat == nil || cat.CatalystScore < c.cfg.CatalystPromoteScore {
		return false
	}
	return now.Sub(cat.UpdatedAt) <= c.cfg.CatalystFreshFor
}

func directionDisconfirmed(dir models.Direction, tick Tick) bool {
	return (dir == models.DirectionLong && tick == TickDown) ||
		(dir == models.DirectionShort && tick == TickUp)
}
