package detect

import (
	"math"
	"time"
)

// Tick is the sign of the latest price move.
type Tick string

const (
	TickUp   Tick = "up"
	TickDown Tick = "down"
	TickFlat Tick = "flat"
)

// flatEpsilon is the absolute price change below which a move counts as flat.
const flatEpsilon = 0.005

// Delta is the observable change between the two most recent polls of a symbol.
// Display-only: it never feeds classification truth.
type Delta struct {
	DPrice    float64
	DPricePct float64
	DVolume   float64
	Tick      Tick
	Streak    int
	PollAge   time.Duration
}

type deltaState struct {
	price  float64
	volume float64
	seenAt time.Time
	streak int
	recent []float64 // ring of recent prices, newest last
}

// DeltaTracker keeps per-symbol price/volume deltas, tick streaks and a short
// rolling price history. Owned exclusively by the poll loop.
type DeltaTracker struct {
	window int
	m      map[string]*deltaState
}

func NewDeltaTracker(window int) *DeltaTracker {
	if window < 2 {
		window = 5
	}
	return &DeltaTracker{window: window, m: make(map[string]*deltaState)}
}

// Update records the latest observation and returns the delta against the
// prior one. The first observation seeds state and returns a zero delta.
func (t *DeltaTracker) Update(symbol string, price, volume float64, now time.Time) Delta {
	st, ok := t.m[symbol]
	if !ok {
		t.m[symbol] = &deltaState{price: price, volume: volume, seenAt: now, recent: []float64{price}}
		return Delta{Tick: TickFlat}
	}

	d := Delta{
		DPrice:  price - st.price,
		DVolume: volume - st.volume,
		PollAge: now.Sub(st.seenAt),
	}
	if st.price > 0 {
		d.DPricePct = (price/st.price - 1) * 100
	}

	switch {
	case math.Abs(d.DPrice) <= flatEpsilon:
		d.Tick = TickFlat
		st.streak = 0
	case d.DPrice > 0:
		d.Tick = TickUp
		if st.streak > 0 {
			st.streak++
		} else {
			st.streak = 1
		}
	default:
		d.Tick = TickDown
		if st.streak < 0 {
			st.streak--
		} else {
			st.streak = -1
		}
	}
	d.Streak = st.streak

	st.price = price
	st.volume = volume
	st.seenAt = now
	st.recent = append(st.recent, price)
	if len(st.recent) > t.window {
		st.recent = st.recent[len(st.recent)-t.window:]
	}
	return d
}

// PreviousPrice returns the price from the poll before the most recent Update.
// ok is false until a symbol has at least two observations.
func (t *DeltaTracker) PreviousPrice(symbol string) (float64, bool) {
	st, ok := t.m[symbol]
	if !ok || len(st.recent) < 2 {
		return 0, false
	}
	return st.recent[len(st.recent)-2], true
}

// FlatOver reports whether price moved less than epsilon (in percent) over the
// last n polls. Symbols without enough history are never flat.
func (t *DeltaTracker) FlatOver(symbol string, n int, epsilonPct float64) bool {
	st, ok := t.m[symbol]
	if !ok || len(st.recent) < n || n < 2 {
		return false
	}
	win := st.recent[len(st.recent)-n:]
	lo, hi := win[0], win[0]
	for _, p := range win[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if lo <= 0 {
		return false
	}
	return (hi/lo-1)*100 < epsilonPct
}

// Prune drops state for symbols no longer on the watch-list.
func (t *DeltaTracker) Prune(keep map[string]bool) {
	for sym := range t.m {
		if !keep[sym] {
			delete(t.m, sym)
		}
	}
}

// ResetHistory clears all rolling price history. Called on the outside→inside
// active-hours transition so pre-session prices never leak into comparisons.
func (t *DeltaTracker) ResetHistory() {
	t.m = make(map[string]*deltaState)
}
