// Package reliable layers a single-outstanding reliable-unicast contract on
// top of a connectionless radio.Driver, shared by the hub and station
// packages: a new Send cancels any prior outstanding transaction, frames
// carry a monotonically increasing ID, retransmission backs off linearly
// and is bounded, and completion requires both the ID and source address
// to match.
package reliable

import (
	"sync"
	"time"

	"fixturelink/types"
	"fixturelink/x/mathx"
)

// Sender is the minimal outbound surface a Slot needs.
type Sender interface {
	Send(dst types.Mac6, payload []byte) error
}

// Options configures the backoff/retry contract. The zero value is not
// usable; pass HubDefaults, or StationDefaults for the station's tighter
// timeout, to NewSlot.
type Options struct {
	InitialInterval time.Duration
	StepInterval    time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
}

// HubDefaults matches the Hub's reliable-TX contract: 240ms initial
// interval, +80ms per retry capped at 640ms, 4 retries.
var HubDefaults = Options{
	InitialInterval: 240 * time.Millisecond,
	StepInterval:    80 * time.Millisecond,
	MaxInterval:     640 * time.Millisecond,
	MaxRetries:      4,
}

// StationDefaults matches the Station's reliable send: 220ms timeout,
// same +80/640 backoff shape, 4 retries.
var StationDefaults = Options{
	InitialInterval: 220 * time.Millisecond,
	StepInterval:    80 * time.Millisecond,
	MaxInterval:     640 * time.Millisecond,
	MaxRetries:      4,
}

// Slot is the single outstanding reliable-TX transaction. Safe for
// concurrent use: Send/HandleAck are typically called from the main loop
// and the radio RX callback respectively.
type Slot struct {
	opts   Options
	sender Sender
	now    func() time.Time // injectable clock for tests

	mu          sync.Mutex
	active      bool
	id          uint32
	peer        types.Mac6
	msg         []byte
	lastSend    time.Time
	retriesLeft int
	interval    time.Duration

	nextID uint32

	// OnExhausted, if set, is called (outside the lock) when retries run
	// out without an ACK. Used only for logging; the slot already clears.
	OnExhausted func(id uint32, peer types.Mac6)
}

func NewSlot(sender Sender, opts Options) *Slot {
	return &Slot{opts: opts, sender: sender, now: time.Now}
}

// Send cancels any outstanding transaction, makes id (normally taken from
// NextID) the outstanding one, and transmits framed immediately. framed
// must already carry the matching " ID=<id>" suffix — see
// wire.FormatReliable.
func (s *Slot) Send(peer types.Mac6, id uint32, framed []byte) error {
	s.mu.Lock()
	s.active = true
	s.id = id
	s.peer = peer
	s.msg = append([]byte(nil), framed...)
	s.lastSend = s.now()
	s.retriesLeft = s.opts.MaxRetries
	s.interval = s.opts.InitialInterval
	s.mu.Unlock()

	return s.sender.Send(peer, framed)
}

// NextID advances the id counter and returns the next id to use for a
// Send; the outstanding transaction is not touched.
func (s *Slot) NextID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// HandleAck attempts to complete the outstanding slot; it returns true iff
// id and src matched the outstanding transaction, in which case the slot
// is cleared.
func (s *Slot) HandleAck(id uint32, src types.Mac6) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.id != id || s.peer != src {
		return false
	}
	s.active = false
	s.msg = nil
	return true
}

// Tick services the retry timer; call it on every main-loop pass and
// between steps of any long scripted animation so in-flight retries keep
// progressing. It transmits at most one retransmission per call.
func (s *Slot) Tick() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	now := s.now()
	if now.Sub(s.lastSend) < s.interval {
		s.mu.Unlock()
		return
	}
	s.retriesLeft--
	if s.retriesLeft < 0 {
		s.active = false
		peer, id := s.peer, s.id
		s.msg = nil
		s.mu.Unlock()
		if s.OnExhausted != nil {
			s.OnExhausted(id, peer)
		}
		return
	}
	s.lastSend = now
	s.interval = mathx.Clamp(s.interval+s.opts.StepInterval, s.opts.InitialInterval, s.opts.MaxInterval)
	peer, msg := s.peer, append([]byte(nil), s.msg...)
	s.mu.Unlock()

	_ = s.sender.Send(peer, msg)
}

// Cancel aborts any outstanding transaction without signalling completion.
func (s *Slot) Cancel() {
	s.mu.Lock()
	s.active = false
	s.msg = nil
	s.mu.Unlock()
}

func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Peer returns the outstanding transaction's destination, if any.
func (s *Slot) Peer() (types.Mac6, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer, s.active
}
