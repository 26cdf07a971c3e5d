package hub

import (
	"strconv"
	"strings"
	"time"

	"fixturelink/types"
	"fixturelink/wire"
)

const blinkStepInterval = 120 * time.Millisecond

// onWelcome handles a WELCOME verb from any state: greet back immediately
// (raw, so it beats the reliable READY onto the air), send READY
// reliably, and enter the WELCOME blink animation.
func (h *Hub) onWelcome(src types.Mac6) {
	h.setSessionPeer(src)
	h.sendRaw(src, "WELCOME")
	h.sendReliable(src, wire.AppendMAC("READY", h.localMAC))
	h.state = Welcome
	h.welcomeEdges = 0
	h.welcomeLastToggle = time.Time{}
	h.welcomeLEDOn = false
}

// tickWelcome drives the WELCOME state's blink-and-count animation: every
// blinkStepInterval it toggles all LEDs and counts the toggle as an edge;
// once welcomeBlinkEdges have elapsed, the LEDs go off and the session
// falls through to WAIT_FOR_TARGET.
func (h *Hub) tickWelcome(now time.Time) {
	if h.welcomeLastToggle.IsZero() {
		h.welcomeLastToggle = now
		return
	}
	if now.Sub(h.welcomeLastToggle) < blinkStepInterval {
		return
	}
	h.welcomeLastToggle = now
	h.welcomeLEDOn = !h.welcomeLEDOn
	h.allLEDs(h.welcomeLEDOn)
	h.welcomeEdges++
	if h.welcomeEdges >= welcomeBlinkEdges {
		h.allLEDs(false)
		h.state = WaitForTarget
	}
}

// onMonitor handles a MONITOR verb: parses the selection grammar, applies
// reclassification, replies MONITOR-OK reliably, and enqueues the
// baseline-EV deferred action.
func (h *Hub) onMonitor(rest string) {
	sel, _ := wire.ParseMonitor(rest, numChannels)
	now := h.now()

	for _, n := range sel.Normal {
		h.reclassifyChannel(n-1, NormalChan, now)
	}
	for _, n := range sel.Latch {
		h.reclassifyChannel(n-1, LatchChan, now)
	}

	h.state = Monitoring
	h.needReleaseGate = true
	h.welcomeEdges = 0
	h.welcomeLastToggle = time.Time{}

	h.sendReliableToPeer("MONITOR-OK")
	h.enqueueDeferred(DeferredSlot{Kind: DeferMonitorBaseline})
}

func (h *Hub) reclassifyChannel(idx int, kind Classification, now time.Time) {
	if idx < 0 || idx >= numChannels {
		return
	}
	raw, err := h.iom.readSwitchRaw(idx)
	if err != nil {
		return
	}
	pressed := !raw // released==true means not pressed
	ch := &h.channels[idx]
	ch.reclassify(kind, pressed, now)
	h.setLED(idx, initialLEDFor(kind))
}

func initialLEDFor(kind Classification) bool {
	switch kind {
	case NormalChan, LatchChan:
		return true
	default:
		return false
	}
}

// onCheck handles a CHECK verb: MONITORING -> FINAL_CHECK when there is
// work to evaluate, otherwise an immediate RESULT SUCCESS with no voting
// pass at all.
func (h *Hub) onCheck(rest string) {
	if h.state != Monitoring {
		return
	}
	selected, err := wire.ParseChannelCSV(rest, numChannels, 32)
	if err != nil {
		h.Log.Printf("hub: malformed CHECK payload %q: %v", rest, err)
		return
	}
	work := h.resolveCheckSelection(selected)
	if len(work) == 0 {
		peer, ok := h.SessionPeer()
		if ok {
			h.sendReliable(peer, wire.BuildResultSuccess(h.localMAC))
		}
		h.goDark()
		h.state = WaitForTarget
		return
	}

	h.checkSelect = work
	h.checkActive = true
	h.state = FinalCheck
	h.voteSample = 0
	h.voteGood = make(map[int]int, len(work))
	h.voteNextAt = time.Time{}
	h.untrackedPressed = make(map[int]bool)
}

// resolveCheckSelection turns a parsed CHECK CSV (nil meaning "all") into
// the concrete set of 0-based channel indexes with work outstanding:
// tracked, non-ignored channels.
func (h *Hub) resolveCheckSelection(csv []int) []int {
	if csv == nil {
		var all []int
		for c := 0; c < numChannels; c++ {
			ch := &h.channels[c]
			if ch.tracked() && !ch.ignored {
				all = append(all, c+1)
			}
		}
		return all
	}
	var out []int
	for _, n := range csv {
		ch := &h.channels[n-1]
		if ch.tracked() && !ch.ignored {
			out = append(out, n)
		}
	}
	return out
}

// onClean handles CLEAN from any non-SELF_CHECK state: clears the channel
// model, LEDs and session peer, and replies CLEAN-OK raw.
func (h *Hub) onClean() {
	if h.state == SelfCheck {
		return
	}
	peer, ok := h.SessionPeer()
	h.goDark()
	h.tx.Cancel()
	h.state = WaitForTarget
	if ok {
		h.sendRaw(peer, "CLEAN-OK")
	}
}

func (h *Hub) onBlink(rest string) {
	n := parseOptionalCount(rest, 3, 1)
	h.enqueueDeferred(DeferredSlot{Kind: DeferBlink, Count: n})
	h.sendReliableToPeer("BLINK-OK")
}

func (h *Hub) onChase(rest string) {
	n := parseOptionalCount(rest, 1, 1)
	h.enqueueDeferred(DeferredSlot{Kind: DeferChase, Count: n})
	h.sendReliableToPeer("CHASE-OK")
}

func parseOptionalCount(s string, def, min int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	tok := strings.Fields(s)[0]
	n, err := strconv.Atoi(tok)
	if err != nil || n < min {
		return def
	}
	return n
}
