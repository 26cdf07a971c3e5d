package hub

import (
	"strings"

	"fixturelink/types"
	"fixturelink/wire"
)

// onReceive is installed as the radio.Driver's RX callback (C6). It runs
// on its own goroutine, concurrently with the main loop, and does no I2C
// work: its only sends are a raw ACK and dispatchVerb's raw PING-OK, and
// every other verb is posted to the pending-command mailbox drained by
// Tick.
func (h *Hub) onReceive(src types.Mac6, payload []byte) {
	if src.IsZero() {
		h.Log.Printf("hub: dropped frame from zero MAC")
		return
	}
	if len(payload) > 255 {
		payload = payload[:255]
	}
	line := strings.TrimSpace(string(payload))
	if line == "" {
		return
	}

	h.setSessionPeer(src)

	if id, ok := wire.ParseACK(line); ok {
		h.tx.HandleAck(id, src)
		return
	}

	rest, id, hasID := wire.ExtractID(line)

	if peer, ok := h.SessionPeer(); ok && peer == src && hasID {
		h.sendRaw(src, wire.FormatACK(id))
	}

	h.dispatchVerb(src, rest)
}

// dispatchVerb routes a de-ACK'd, de-ID'd line. PING is answered
// immediately since it touches neither I2C nor the channel model; every
// other recognised verb is posted to the pending-command mailbox for Tick
// to execute on the main loop. The discovery-only HELLO/READY, which the
// Hub never needs to act on, are ignored silently; unknown verbs are
// logged and otherwise ignored, per the malformed-inbound-frame error
// policy: no reply, no state change.
func (h *Hub) dispatchVerb(src types.Mac6, line string) {
	verb := wire.Verb(line)
	rest := strings.TrimSpace(strings.TrimPrefix(line, verb))

	switch verb {
	case "WELCOME", "MONITOR", "CHECK", "CLEAN", "BLINK", "CHASE":
		h.mu.Lock()
		h.pending = pendingCmd{src: src, verb: verb, rest: rest}
		h.hasPending = true
		h.mu.Unlock()
	case "PING":
		h.sendRaw(src, "PING-OK")
	case "HELLO", "READY":
		// Noise from a peer that hasn't been told who's in charge yet.
	default:
		h.Log.Printf("hub: ignored unknown verb %q from %s", verb, src)
	}
}
