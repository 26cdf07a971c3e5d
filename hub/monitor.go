package hub

import (
	"time"

	"fixturelink/wire"
	"fixturelink/x/timex"
)

// tickMonitoring runs one pass of the per-tick monitor/check engine (C8):
// service the release gate, debounce every tracked channel, emit
// throttled EV telemetry on each debounced edge, refresh the LED policy,
// and watch for an auto-final condition held continuously long enough to
// finish the session without an explicit CHECK.
func (h *Hub) tickMonitoring(now time.Time) {
	if h.needReleaseGate {
		h.serviceReleaseGate(now)
		return
	}

	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if !ch.tracked() {
			h.serviceUntrackedLED(c, now)
			continue
		}
		raw, err := h.iom.readSwitchRaw(c)
		if err != nil {
			continue
		}
		pressed, edge := ch.debounce(!raw, now)

		switch ch.classification {
		case NormalChan:
			if pressed != ch.prevPressed {
				h.emitEV(c, ch, pressed, now, false)
			}
		case LatchChan:
			if edge && !ch.latched {
				ch.latched = true
				h.emitEV(c, ch, true, now, true)
			}
		}
		h.setLED(c, ledPolicy(ch))
	}

	h.serviceAutoFinal(now)
}

// serviceReleaseGate runs once on entry to MONITORING: it resyncs every
// tracked channel's debouncer to its current raw level in a single pass
// and clears the gate immediately, rather than blocking the monitoring
// engine until every switch happens to read released. A switch already
// held when MONITOR arrives starts monitoring from pressed, not from a
// frozen wait state.
func (h *Hub) serviceReleaseGate(now time.Time) {
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if !ch.tracked() {
			continue
		}
		raw, err := h.iom.readSwitchRaw(c)
		if err != nil {
			continue
		}
		pressed := !raw
		ch.reseed(pressed, now)
		ch.prevPressed = pressed
	}
	h.needReleaseGate = false
	h.streamActive = true
}

// untrackedBlinkHz is the rate an untracked-but-held switch's LED blinks
// at; untrackedBlinkStep is derived from it the same way the HAL derives
// a tick period from a configured frequency.
const untrackedBlinkHz = 3

var untrackedBlinkStep = time.Duration(timex.PeriodFromHz(untrackedBlinkHz))

// serviceUntrackedLED applies the untracked-channel LED policy: dark
// while released, blinking while held, so a held-but-unassigned switch
// is visibly distinct from a tracked channel's steady indicator.
func (h *Hub) serviceUntrackedLED(c int, now time.Time) {
	raw, err := h.iom.readSwitchRaw(c)
	if err != nil || raw { // raw==true means released
		h.setLED(c, false)
		return
	}
	on := (now.UnixMilli()/untrackedBlinkStep.Milliseconds())%2 == 0
	h.setLED(c, on)
}

// emitEV sends an EV frame for a debounced state change, subject to the
// minimum inter-event gap: a change arriving inside the gap is dropped,
// not queued, per the malformed/overflow policy of favouring liveness
// over completeness of the telemetry stream.
func (h *Hub) emitEV(c int, ch *Channel, state bool, now time.Time, latch bool) {
	peer, ok := h.SessionPeer()
	if !ok {
		return
	}
	nowMs := now.UnixMilli()
	last := &ch.lastPMs
	if latch {
		last = &ch.lastLMs
	}
	if *last != 0 && nowMs-*last < minEventGapMs {
		return
	}
	*last = nowMs

	if latch {
		ch.prevLatched = state
		h.sendRaw(peer, wire.BuildEVLatched(c+1, state, h.localMAC))
		return
	}
	ch.prevPressed = state
	h.sendRaw(peer, wire.BuildEVPressed(c+1, state, h.localMAC))
}

// ledPolicy implements the panel's per-channel indicator rule: a normal
// channel stays lit until pressed and a latch channel stays lit until it
// latches. For an untracked channel it returns false (dark); the monitoring
// loop drives those LEDs through serviceUntrackedLED instead.
func ledPolicy(ch *Channel) bool {
	switch ch.classification {
	case NormalChan:
		return !ch.prevPressed
	case LatchChan:
		return !ch.latched
	default:
		return false
	}
}

// normalsHeld reports whether every normal channel currently reads
// pressed.
func (h *Hub) normalsHeld() bool {
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if ch.classification == NormalChan && !ch.prevPressed {
			return false
		}
	}
	return true
}

// finalReady reports whether the panel is in the fully-completed state:
// every normal channel held and every latch channel latched.
func (h *Hub) finalReady() bool {
	if !h.normalsHeld() {
		return false
	}
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if ch.classification == LatchChan && !ch.latched {
			return false
		}
	}
	return true
}

// serviceAutoFinal watches finalReady() for a continuous autoFinalHoldMs
// hold and, once satisfied, announces AUTO-FINAL and closes the session
// with an automatic RESULT SUCCESS, without waiting for an explicit CHECK.
func (h *Hub) serviceAutoFinal(now time.Time) {
	if !h.finalReady() {
		h.haveLiveOkSince = false
		return
	}
	if !h.haveLiveOkSince {
		h.haveLiveOkSince = true
		h.liveOkSince = now
		return
	}
	if now.Sub(h.liveOkSince) < autoFinalHoldMs*time.Millisecond {
		return
	}

	peer, ok := h.SessionPeer()
	if !ok {
		return
	}
	h.sendRaw(peer, "AUTO-FINAL")
	h.sendReliable(peer, wire.BuildResultSuccess(h.localMAC))
	h.goDark()
	h.state = WaitForTarget
}
