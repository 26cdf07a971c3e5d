// Package radio names the short-range connectionless radio link as a Go
// interface. The physical transceiver is out of scope; radio/simnet
// provides a host-testable in-memory medium good enough to drive the full
// hub/station state machine and test suite.
package radio

import "fixturelink/types"

// MTU is the maximum payload a single Send carries, matching the
// connectionless link's datagram limit.
const MTU = 250

// Driver is the minimal surface the hub and station packages need from a
// connectionless broadcast-capable radio. A real backend additionally
// owns channel selection and peer-table management in hardware; this
// interface only names what the rest of the firmware calls.
type Driver interface {
	// LocalMAC returns this node's own address.
	LocalMAC() types.Mac6

	// AddPeer registers a destination address so unicast Send calls to it
	// will succeed. Broadcast never requires a peer-table entry.
	AddPeer(mac types.Mac6) error

	// SetChannel selects the radio channel. Implementations may ignore it
	// if the medium has no channel concept (e.g. radio/simnet).
	SetChannel(ch uint8) error

	// Send transmits payload to dst (types.BroadcastMac for broadcast).
	// It does not wait for any acknowledgement; reliability is layered on
	// top by the reliable package.
	Send(dst types.Mac6, payload []byte) error

	// OnReceive installs the callback invoked for every inbound frame,
	// addressed to this node or broadcast. Implementations deliver each
	// frame on its own goroutine, mirroring a hardware RX interrupt: the
	// callback must not block on radio I/O.
	OnReceive(fn func(src types.Mac6, payload []byte))
}
