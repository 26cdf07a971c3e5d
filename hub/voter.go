package hub

import (
	"time"

	"fixturelink/wire"
)

const (
	finalCheckSamples = 5
	sampleDelay       = 50 * time.Millisecond
	passThreshold     = 5 // strict: a channel must read good on every sample

	// useMajorityThreshold switches passThreshold's effective value to a
	// majority (3 of 5) instead of requiring every sample to agree. Off by
	// default: a single vibration-induced dropout during the check window
	// should not paper over a genuinely intermittent contact.
	useMajorityThreshold = false
	majorityThreshold    = 3
)

func effectivePassThreshold() int {
	if useMajorityThreshold {
		return majorityThreshold
	}
	return passThreshold
}

// tickFinalCheck drives the C9 voter one step per Tick call. Every
// sampleDelay it takes a fresh live reading of all 40 channels: the
// selected channels bank a good/not-good vote, and every untracked
// channel's pressed state is recorded for the EXTRA report, since an untracked
// switch held during the check is as much a finding as a missing one.
// The outcome is decided as soon as it is no longer in doubt rather than
// always taking the full window. All I2C access stays on the main loop
// this way, the same as every other state.
func (h *Hub) tickFinalCheck(now time.Time) {
	if h.voteSample > 0 && now.Before(h.voteNextAt) {
		return
	}

	h.voteSample++
	h.voteNextAt = now.Add(sampleDelay)
	threshold := effectivePassThreshold()

	selected := make(map[int]bool, len(h.checkSelect))
	for _, n := range h.checkSelect {
		selected[n] = true
	}
	for c := 0; c < numChannels; c++ {
		n := c + 1
		if selected[n] {
			if h.sampleChannelGood(c, now) {
				h.voteGood[n]++
			}
			continue
		}
		if h.sampleUntrackedPressed(c) {
			h.untrackedPressed[n] = true
		}
	}

	remaining := finalCheckSamples - h.voteSample
	if verdict, done := h.earlyVerdict(remaining, threshold); done {
		h.finishCheck(verdict, threshold)
		return
	}
	if h.voteSample >= finalCheckSamples {
		h.finishCheck(true, threshold)
	}
}

// sampleChannelGood takes one live debounced reading of channel idx
// (0-based), updating its debounce state the same way tickMonitoring
// does, and reports whether it currently reads in its required state.
func (h *Hub) sampleChannelGood(idx int, now time.Time) bool {
	if idx < 0 || idx >= numChannels {
		return false
	}
	ch := &h.channels[idx]
	raw, err := h.iom.readSwitchRaw(idx)
	if err != nil {
		return false
	}
	pressed, edge := ch.debounce(!raw, now)
	ch.prevPressed = pressed
	switch ch.classification {
	case NormalChan:
		return pressed
	case LatchChan:
		if edge {
			ch.latched = true
		}
		return ch.latched
	default:
		return false
	}
}

// sampleUntrackedPressed takes one live reading of an untracked channel
// (0-based), reporting whether its switch currently reads pressed. Only
// meaningful for a channel outside h.checkSelect and not classified
// Normal/Latch; a tracked-but-unselected channel is deliberately not
// sampled here, since only genuinely untracked switches are EXTRA.
func (h *Hub) sampleUntrackedPressed(idx int) bool {
	if idx < 0 || idx >= numChannels || h.channels[idx].tracked() {
		return false
	}
	raw, err := h.iom.readSwitchRaw(idx)
	if err != nil {
		return false
	}
	return !raw
}

// earlyVerdict reports whether the outcome is already decided: failure as
// soon as any selected channel can no longer reach threshold even if
// every remaining sample goes its way, success as soon as every selected
// channel has already banked enough good samples that no remaining
// sample could change the result.
func (h *Hub) earlyVerdict(remaining, threshold int) (success bool, done bool) {
	allDecided := true
	for _, n := range h.checkSelect {
		g := h.voteGood[n]
		if g+remaining < threshold {
			return false, true
		}
		if g < threshold {
			allDecided = false
		}
	}
	if allDecided {
		return true, true
	}
	return false, false
}

func (h *Hub) finishCheck(verdict bool, threshold int) {
	peer, ok := h.SessionPeer()
	if ok {
		if verdict {
			h.sendReliable(peer, wire.BuildResultSuccess(h.localMAC))
		} else {
			missing, extra := h.buildMissingExtra(threshold)
			h.sendReliable(peer, wire.BuildResultFailure(missing, extra, h.localMAC))
		}
	}
	// A trailing full-panel refresh brings every channel's LED and
	// telemetry baseline in sync with the vote's last sample; it never
	// changes the verdict already decided above.
	h.checkAll(h.now())
	h.goDark()
	h.state = WaitForTarget
}

// buildMissingExtra reports the selected channels that did not read in
// their required state on the vote's last sample (MISSING) and any
// untracked channel that read pressed at least once during the vote
// (EXTRA), both 1-based; MISSING follows the CHECK selection's order and
// EXTRA is ascending.
func (h *Hub) buildMissingExtra(threshold int) (missing, extra []int) {
	for _, n := range h.checkSelect {
		ch := &h.channels[n-1]
		good := ch.prevPressed
		if ch.classification == LatchChan {
			good = ch.latched
		}
		if !good {
			missing = append(missing, n)
		}
	}
	for c := 0; c < numChannels; c++ {
		n := c + 1
		if h.untrackedPressed[n] {
			extra = append(extra, n)
		}
	}
	return missing, extra
}

// checkAll refreshes every tracked channel's LED and telemetry baseline
// against its current debounced state; called once after a vote to bring
// the panel back in sync before the session tears down.
func (h *Hub) checkAll(now time.Time) {
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if !ch.tracked() {
			continue
		}
		raw, err := h.iom.readSwitchRaw(c)
		if err != nil {
			continue
		}
		pressed, _ := ch.debounce(!raw, now)
		ch.prevPressed = pressed
		h.setLED(c, ledPolicy(ch))
	}
}
