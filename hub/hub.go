// Package hub implements the Hub node's engineering core: the session
// state machine, per-channel debounce/classification model, monitor/check
// engine, final-check voter, deferred-work queue and the reliable-unicast
// wiring shared with the station package.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"fixturelink/ioexpander"
	"fixturelink/radio"
	"fixturelink/reliable"
	"fixturelink/types"
	"fixturelink/wire"
)

// State is a session state machine state (C7).
type State uint8

const (
	SelfCheck State = iota
	WaitForTarget
	Welcome
	Monitoring
	FinalCheck
)

func (s State) String() string {
	switch s {
	case SelfCheck:
		return "SELF_CHECK"
	case WaitForTarget:
		return "WAIT_FOR_TARGET"
	case Welcome:
		return "WELCOME"
	case Monitoring:
		return "MONITORING"
	case FinalCheck:
		return "FINAL_CHECK"
	default:
		return "UNKNOWN"
	}
}

const (
	welcomeBlinkEdges  = 6
	autoFinalHoldMs    = 200
	buttonDebounceHold = 40 * time.Millisecond
	minEventGapMs      = 10
)

// Hub is the top-level runtime value owning every piece of session state.
// It is driven by two cooperative contexts: the main loop (Tick) and the
// radio RX callback (installed by New via radio.Driver.OnReceive). Fields
// touched by both are guarded by mu; scalar fields are written only by
// the main loop.
type Hub struct {
	Log *log.Logger

	radio    radio.Driver
	iom      *ioMap
	tx       *reliable.Slot
	localMAC types.Mac6

	channels [numChannels]Channel

	mu          sync.Mutex
	sessionPeer types.Mac6
	hasPeer     bool
	deferredQ   DeferredSlot

	pending   pendingCmd
	hasPending bool

	state           State
	streamActive    bool
	needReleaseGate bool
	checkSelect     []int
	checkActive     bool
	liveOkSince     time.Time
	haveLiveOkSince bool
	welcomeEdges      int
	welcomeLastToggle time.Time
	welcomeLEDOn      bool

	voteSample       int
	voteGood         map[int]int
	voteNextAt       time.Time
	untrackedPressed map[int]bool

	button Channel // reuses the debounce shape with its own hold time

	now func() time.Time
}

// pendingCmd is the single-slot mailbox the RX callback posts a decoded
// verb into; only Tick ever calls I2C or mutates the channel model, so a
// verb that needs either is executed here rather than on the callback's
// own goroutine. Like the deferred-work queue, a new command overwrites
// whatever was posted and not yet drained.
type pendingCmd struct {
	src  types.Mac6
	verb string
	rest string
}

// New builds a Hub bound to the given radio driver and the five I2C
// expander banks backing its 40 channels.
func New(drv radio.Driver, banks [5]ioexpander.Bank, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		Log:      logger,
		radio:    drv,
		iom:      newIOMap(banks),
		now:      time.Now,
		state:    SelfCheck,
		localMAC: drv.LocalMAC(),
	}
	h.tx = reliable.NewSlot(sendAdapter{drv}, reliable.HubDefaults)
	drv.OnReceive(h.onReceive)
	return h
}

type sendAdapter struct{ d radio.Driver }

func (s sendAdapter) Send(dst types.Mac6, payload []byte) error { return s.d.Send(dst, payload) }

// Run drives the main loop until ctx is cancelled, at the spec's ~10ms
// per-pass cadence.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Tick advances the state machine by one main-loop pass: service the
// reliable-TX retry timer (inert in SELF_CHECK), run the self-check /
// welcome-animation / monitoring engine for the current state, and drain
// at most one deferred-work item.
func (h *Hub) Tick() {
	now := h.now()

	h.drainPending()

	if h.state != SelfCheck {
		h.tx.Tick()
	}

	switch h.state {
	case SelfCheck:
		h.tickSelfCheck(now)
	case Welcome:
		h.tickWelcome(now)
	case Monitoring:
		h.tickMonitoring(now)
	case FinalCheck:
		h.tickFinalCheck(now)
	}

	h.drainDeferred()
}

// drainPending executes at most one verb posted by the RX callback since
// the last Tick. This is the only place onWelcome/onMonitor/onCheck/
// onClean/onBlink/onChase run, keeping every I2C access and channel-model
// mutation on the main loop.
func (h *Hub) drainPending() {
	h.mu.Lock()
	if !h.hasPending {
		h.mu.Unlock()
		return
	}
	cmd := h.pending
	h.hasPending = false
	h.mu.Unlock()

	switch cmd.verb {
	case "WELCOME":
		h.onWelcome(cmd.src)
	case "MONITOR":
		h.onMonitor(cmd.rest)
	case "CHECK":
		h.onCheck(cmd.rest)
	case "CLEAN":
		h.onClean()
	case "BLINK":
		h.onBlink(cmd.rest)
	case "CHASE":
		h.onChase(cmd.rest)
	}
}

func (h *Hub) tickSelfCheck(now time.Time) {
	for c := 0; c < numChannels; c++ {
		released, err := h.iom.readSwitchRaw(c)
		if err != nil || !released {
			return
		}
	}
	h.state = WaitForTarget
}

// PollButton feeds the current raw level of the local HELLO pushbutton;
// the debounce hardware itself is out of scope, but the edge-to-HELLO
// behaviour it drives is in scope.
func (h *Hub) PollButton(pressed bool) {
	// Channel.debounce is hard-wired to the 25ms channel hold time; the
	// button has its own 40ms hold, so its edge detection is inlined here
	// rather than reusing debounce().
	now := h.now()
	if pressed != h.button.rawPrev {
		h.button.rawPrev = pressed
		h.button.rawChangedAt = now
	}
	if now.Sub(h.button.rawChangedAt) >= buttonDebounceHold && h.button.stable != h.button.rawPrev {
		was := h.button.stable
		h.button.stable = h.button.rawPrev
		if h.button.stable && !was {
			h.sendHello()
		}
	}
}

func (h *Hub) sendHello() {
	_ = h.radio.Send(types.BroadcastMac, []byte("HELLO"))
}

// BootAnimation runs the three-flash all-LED self-test once before the
// main loop starts.
func (h *Hub) BootAnimation(ctx context.Context) {
	for i := 0; i < 3; i++ {
		h.allLEDs(true)
		if !sleepCtx(ctx, 150*time.Millisecond) {
			return
		}
		h.allLEDs(false)
		if !sleepCtx(ctx, 150*time.Millisecond) {
			return
		}
	}
}

func (h *Hub) allLEDs(on bool) {
	for c := 0; c < numChannels; c++ {
		h.setLED(c, on)
	}
}

// setLED is idempotent against the channel's cached led_on state: no I2C
// transaction is issued when the cache already matches.
func (h *Hub) setLED(c int, on bool) {
	ch := &h.channels[c]
	if ch.ledOnValid && ch.ledOn == on {
		return
	}
	if err := h.iom.setLED(c, on); err != nil {
		h.Log.Printf("hub: led write failed chan=%d: %v", c+1, err)
		return
	}
	ch.ledOn = on
	ch.ledOnValid = true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// goDark implements the CLEAN / post-result transition: stop streaming,
// clear the channel model, turn off every LED, clear the release gate,
// and clear the session peer.
func (h *Hub) goDark() {
	h.streamActive = false
	for c := 0; c < numChannels; c++ {
		h.channels[c] = Channel{}
		h.setLED(c, false)
	}
	h.needReleaseGate = false
	h.clearSessionPeer()
	h.haveLiveOkSince = false
	h.checkActive = false
	h.checkSelect = nil
}

func (h *Hub) setSessionPeer(mac types.Mac6) {
	h.mu.Lock()
	h.sessionPeer = mac
	h.hasPeer = true
	h.mu.Unlock()
}

func (h *Hub) clearSessionPeer() {
	h.mu.Lock()
	h.hasPeer = false
	h.sessionPeer = types.ZeroMac
	h.mu.Unlock()
}

func (h *Hub) SessionPeer() (types.Mac6, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionPeer, h.hasPeer
}

// sendRaw is a fire-and-forget, unacknowledged send; used for ACKs, EV
// telemetry, AUTO-FINAL, MONITOR-START and the WELCOME greeting, all of
// which bypass the reliable slot by design.
func (h *Hub) sendRaw(peer types.Mac6, payload string) {
	if err := h.radio.Send(peer, []byte(payload)); err != nil {
		h.Log.Printf("hub: raw send failed: %v", err)
	}
}

// sendReliable frames payload with a fresh ID and hands it to the
// reliable slot, cancelling whatever was previously outstanding.
func (h *Hub) sendReliable(peer types.Mac6, payload string) {
	id := h.tx.NextID()
	framed := wire.FormatReliable(payload, id)
	if err := h.tx.Send(peer, id, []byte(framed)); err != nil {
		h.Log.Printf("hub: reliable send failed: %v", err)
	}
}

func (h *Hub) sendReliableToPeer(payload string) {
	peer, ok := h.SessionPeer()
	if !ok {
		return
	}
	h.sendReliable(peer, payload)
}
