package hub

import "fixturelink/ioexpander"

const numChannels = 40

// ioMap is the static channel -> (bank, ledBit, switchBit) table, built the
// way the original firmware's I/O map is: base = 2*c, bank = base/16, the
// raw pin pair is (base%16, (base+1)%16), and each pin's low/high nibble is
// swapped to group the LED and switch lines on the physical PCB.
type ioMap struct {
	banks [5]ioexpander.Bank
	chan_ [numChannels]chanPins
}

type chanPins struct {
	bank    int
	ledBit  uint8
	swBit   uint8
}

func swapNibble(p uint8) uint8 {
	if p < 8 {
		return p + 8
	}
	return p - 8
}

func newIOMap(banks [5]ioexpander.Bank) *ioMap {
	m := &ioMap{banks: banks}
	for c := 0; c < numChannels; c++ {
		base := 2 * c
		bank := base / 16
		p0 := uint8(base % 16)
		p1 := uint8((base + 1) % 16)
		m.chan_[c] = chanPins{
			bank:   bank,
			ledBit: swapNibble(p0),
			swBit:  swapNibble(p1),
		}
	}
	return m
}

// setLED writes the LED output bit for channel c (0-based), idempotently
// against the cached led_on state tracked by the caller (Channel.ledOn);
// the I2C write itself is only issued by the caller when the cache says
// the value actually changed.
func (m *ioMap) setLED(c int, on bool) error {
	p := m.chan_[c]
	return ioexpander.SetBit(m.banks[p.bank], p.ledBit, on)
}

// readSwitchRaw reads the raw (un-debounced) switch input. The switch is
// wired pull-up; "pressed" is electrical low, so the returned bool is
// true when the pull-up is released (not pressed).
func (m *ioMap) readSwitchRaw(c int) (released bool, err error) {
	p := m.chan_[c]
	return ioexpander.ReadBit(m.banks[p.bank], p.swBit)
}
