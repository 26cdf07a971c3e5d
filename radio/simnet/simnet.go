// Package simnet is a host-testable in-memory stand-in for the radio
// transceiver, grounded on the ring-buffered stub radio driver used for
// host tests elsewhere in the retrieval pack: rather than a single
// loopback ring, it is a shared medium that several registered drivers
// can address each other on, which is what exercising a real hub<->
// station exchange in tests needs.
package simnet

import (
	"errors"
	"sync"

	"fixturelink/radio"
	"fixturelink/types"
)

// Medium is a shared in-memory broadcast domain. Zero value is usable.
type Medium struct {
	mu      sync.Mutex
	drivers map[types.Mac6]*Driver

	// DropRate, when non-nil, is consulted for every frame to simulate
	// lossy delivery in tests; it returns true to drop the frame.
	DropRate func() bool
}

func NewMedium() *Medium {
	return &Medium{drivers: map[types.Mac6]*Driver{}}
}

// Driver implements radio.Driver against a shared Medium.
type Driver struct {
	medium *Medium
	mac    types.Mac6

	mu    sync.Mutex
	peers map[types.Mac6]bool
	onRx  func(src types.Mac6, payload []byte)

	// rxTail is closed once the most recently delivered frame's callback
	// has returned; each delivery waits on its predecessor's.
	rxTail chan struct{}

	txLog [][]byte
}

// NewDriver registers a new endpoint with the given address on the medium.
func (m *Medium) NewDriver(mac types.Mac6) *Driver {
	d := &Driver{medium: m, mac: mac, peers: map[types.Mac6]bool{}}
	m.mu.Lock()
	if m.drivers == nil {
		m.drivers = map[types.Mac6]*Driver{}
	}
	m.drivers[mac] = d
	m.mu.Unlock()
	return d
}

var _ radio.Driver = (*Driver)(nil)

func (d *Driver) LocalMAC() types.Mac6 { return d.mac }

func (d *Driver) AddPeer(mac types.Mac6) error {
	d.mu.Lock()
	d.peers[mac] = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) SetChannel(ch uint8) error { return nil }

func (d *Driver) Send(dst types.Mac6, payload []byte) error {
	if len(payload) > radio.MTU {
		return errors.New("simnet: payload exceeds MTU")
	}
	frame := make([]byte, len(payload))
	copy(frame, payload)

	d.mu.Lock()
	d.txLog = append(d.txLog, frame)
	d.mu.Unlock()

	if d.medium.DropRate != nil && d.medium.DropRate() {
		return nil
	}

	d.medium.mu.Lock()
	var targets []*Driver
	if dst.IsBroadcast() {
		for mac, other := range d.medium.drivers {
			if mac != d.mac {
				targets = append(targets, other)
			}
		}
	} else if other, ok := d.medium.drivers[dst]; ok {
		targets = append(targets, other)
	}
	d.medium.mu.Unlock()

	for _, other := range targets {
		other.deliver(d.mac, frame)
	}
	return nil
}

func (d *Driver) OnReceive(fn func(src types.Mac6, payload []byte)) {
	d.mu.Lock()
	d.onRx = fn
	d.mu.Unlock()
}

// deliver hands a frame to this driver's callback on its own goroutine,
// the same way a hardware RX interrupt would preempt the main loop.
// Callbacks run one at a time, in the order the frames were delivered.
func (d *Driver) deliver(src types.Mac6, frame []byte) {
	d.mu.Lock()
	fn := d.onRx
	if fn == nil {
		d.mu.Unlock()
		return
	}
	prev, done := d.rxTail, make(chan struct{})
	d.rxTail = done
	d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	go func() {
		if prev != nil {
			<-prev
		}
		fn(src, cp)
		close(done)
	}()
}

// TxLog returns a snapshot of everything this driver has sent, for tests.
func (d *Driver) TxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.txLog))
	copy(out, d.txLog)
	return out
}
