package hub

import "time"

// Classification is the per-channel role assigned by MONITOR.
type Classification uint8

const (
	Untracked Classification = iota
	NormalChan
	LatchChan
)

const debounceHold = 25 * time.Millisecond

// Channel holds the per-channel debounce, classification and telemetry
// state described by the data model: one LED + one switch, tracked
// across the lifetime of a MONITOR session until CLEAN or reclassification.
type Channel struct {
	classification Classification
	latched        bool
	ignored        bool

	rawPrev      bool
	rawChangedAt time.Time
	stable       bool

	prevPressed bool
	prevLatched bool

	lastPMs int64
	lastLMs int64

	ledOn      bool
	ledOnValid bool // false until the first write, forcing an initial I2C transaction
}

// debounce reads the channel's raw switch state and applies the fixed
// 25ms hold time, returning the debounced "pressed" level and whether a
// rising edge (not-pressed -> pressed) occurred on this call.
func (ch *Channel) debounce(raw bool, now time.Time) (pressed bool, risingEdge bool) {
	if raw != ch.rawPrev {
		ch.rawPrev = raw
		ch.rawChangedAt = now
	}
	if now.Sub(ch.rawChangedAt) >= debounceHold && ch.stable != ch.rawPrev {
		was := ch.stable
		ch.stable = ch.rawPrev
		risingEdge = ch.stable && !was
	}
	return ch.stable, risingEdge
}

// reseed forces the debouncer to treat raw as the current stable state,
// used after a reclassification and when releasing a MONITORING gate so
// a pre-held switch does not fire a spurious edge.
func (ch *Channel) reseed(raw bool, now time.Time) {
	ch.rawPrev = raw
	ch.rawChangedAt = now
	ch.stable = raw
}

// reclassify applies the MONITOR reclassification rule: changing between
// normal and latch (in either direction) clears latched/ignored state and
// reseeds the debouncer from a fresh raw read. The initial LED (lit for
// both normal and latch) is set by the caller, Hub.reclassifyChannel.
func (ch *Channel) reclassify(kind Classification, raw bool, now time.Time) {
	if ch.classification != kind {
		ch.latched = false
		ch.ignored = false
		ch.reseed(raw, now)
	}
	ch.classification = kind
}

func (ch *Channel) tracked() bool {
	return ch.classification == NormalChan || ch.classification == LatchChan
}
