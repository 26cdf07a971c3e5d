package hub

import (
	"time"

	"fixturelink/wire"
)

// DeferKind identifies what a DeferredSlot holds; the queue is a single
// slot deep, so a new deferral overwrites whatever was previously pending
// (an animation in flight is not cancelled, just superseded once it
// finishes draining).
type DeferKind uint8

const (
	DeferNone DeferKind = iota
	DeferBlink
	DeferChase
	DeferMonitorBaseline
)

// DeferredSlot is the queue's single outstanding item (C10).
type DeferredSlot struct {
	Kind  DeferKind
	Count int
}

const (
	blinkAnimStep = 120 * time.Millisecond
	chaseAnimStep = 40 * time.Millisecond
)

func (h *Hub) enqueueDeferred(s DeferredSlot) {
	h.mu.Lock()
	h.deferredQ = s
	h.mu.Unlock()
}

// drainDeferred services at most one deferred item per Tick invocation. An
// animation, once started, runs to completion synchronously here rather
// than being resumed tick over tick, but it services the reliable-TX
// retry timer between every one of its own steps so an outstanding
// unrelated reliable send is never starved by a long BLINK/CHASE run.
func (h *Hub) drainDeferred() {
	h.mu.Lock()
	slot := h.deferredQ
	h.deferredQ = DeferredSlot{}
	h.mu.Unlock()

	switch slot.Kind {
	case DeferBlink:
		h.runBlink(slot.Count)
	case DeferChase:
		h.runChase(slot.Count)
	case DeferMonitorBaseline:
		h.runMonitorBaseline()
	}
}

func (h *Hub) runBlink(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		h.allLEDs(true)
		h.serviceAckTx(blinkAnimStep)
		h.allLEDs(false)
		h.serviceAckTx(blinkAnimStep)
	}
	h.restoreMonitoringLEDs()
}

func (h *Hub) runChase(n int) {
	if n <= 0 {
		n = 1
	}
	for pass := 0; pass < n; pass++ {
		for c := 0; c < numChannels; c++ {
			h.setLED(c, true)
			h.serviceAckTx(chaseAnimStep)
			h.setLED(c, false)
		}
	}
	h.restoreMonitoringLEDs()
}

// restoreMonitoringLEDs re-applies the monitoring LED policy once an
// animation that borrowed every LED has finished, so BLINK/CHASE never
// leaves the panel in a state inconsistent with the channel model.
func (h *Hub) restoreMonitoringLEDs() {
	if h.state != Monitoring {
		return
	}
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if !ch.tracked() {
			continue
		}
		h.setLED(c, ledPolicy(ch))
	}
}

// serviceAckTx sleeps for d while still driving the reliable-TX retry
// timer, matching the deferred-queue rule that a reliable send in flight
// must keep making retry progress during an animation.
func (h *Hub) serviceAckTx(d time.Duration) {
	const step = 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.tx.Tick()
		time.Sleep(step)
	}
}

// runMonitorBaseline announces the start of a monitoring session and
// seeds every tracked channel's telemetry baseline so the first genuine
// state change after MONITOR-OK produces exactly one edge, not a flood of
// synthetic ones.
func (h *Hub) runMonitorBaseline() {
	peer, ok := h.SessionPeer()
	if !ok {
		return
	}
	h.sendRaw(peer, "MONITOR-START")
	for c := 0; c < numChannels; c++ {
		ch := &h.channels[c]
		if !ch.tracked() {
			continue
		}
		ch.prevPressed = ch.stable
		ch.prevLatched = ch.latched
		h.sendRaw(peer, wire.BuildEVPressed(c+1, ch.prevPressed, h.localMAC))
		if ch.classification == LatchChan {
			h.sendRaw(peer, wire.BuildEVLatched(c+1, ch.prevLatched, h.localMAC))
		}
		time.Sleep(time.Millisecond)
	}
}
