// Package types holds small wire-level value types shared by the hub,
// station and radio packages.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Mac6 is a 6-byte radio address, formatted on the wire and in logs the
// same way as a hardware Ethernet/ESP-NOW MAC.
type Mac6 [6]byte

// BroadcastMac is the all-ones address used for HELLO/discovery frames.
var BroadcastMac = Mac6{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ZeroMac is the unset/unknown address.
var ZeroMac = Mac6{}

func (m Mac6) IsZero() bool       { return m == ZeroMac }
func (m Mac6) IsBroadcast() bool  { return m == BroadcastMac }
func (m Mac6) Equal(o Mac6) bool  { return m == o }

func (m Mac6) String() string {
	out := make([]byte, 0, 17)
	for i, b := range m {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, upperHexByte(b)...)
	}
	return string(out)
}

func upperHexByte(b byte) []byte {
	const d = "0123456789ABCDEF"
	return []byte{d[b>>4], d[b&0xF]}
}

// ParseMac6 parses "AA:BB:CC:DD:EE:FF" (colon or dash separated).
func ParseMac6(s string) (Mac6, error) {
	var m Mac6
	if len(s) != 17 {
		return m, fmt.Errorf("types: bad MAC length %q", s)
	}
	for i := 0; i < 6; i++ {
		seg := s[i*3 : i*3+2]
		if i < 5 {
			sep := s[i*3+2]
			if sep != ':' && sep != '-' {
				return m, errors.New("types: bad MAC separator")
			}
		}
		hi, err := hexNibble(seg[0])
		if err != nil {
			return m, err
		}
		lo, err := hexNibble(seg[1])
		if err != nil {
			return m, err
		}
		m[i] = hi<<4 | lo
	}
	return m, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("types: bad MAC hex digit %q", c)
	}
}

func (m Mac6) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mac6) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMac6(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
