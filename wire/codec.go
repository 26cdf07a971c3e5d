// Package wire implements the ASCII verb codec shared by the hub and
// station: space-delimited verbs, an optional trailing " ID=<dec>" on
// reliable frames, "ACK <dec>" completions, and the MONITOR/CHECK
// payload grammars.
package wire

import (
	"strconv"
	"strings"

	"fixturelink/types"
	"fixturelink/x/conv"
	"fixturelink/x/fmtx"
)

// MaxPayload is the cap a framed payload must stay under so that
// appending " ID=<dec>" never pushes a frame past the radio MTU.
const MaxPayload = 220

// MTU is the radio link's datagram limit.
const MTU = 250

const idMarker = " ID="

// FormatReliable appends " ID=<id>" to payload, the framing every
// reliable outbound frame carries.
func FormatReliable(payload string, id uint32) string {
	var buf [20]byte
	return payload + idMarker + string(conv.Utoa(buf[:], uint64(id)))
}

// ExtractID finds the literal " ID=" token, returning the payload with
// the marker and its digits removed and the parsed id. ok is false if no
// marker is present, meaning the frame is fire-and-forget.
func ExtractID(s string) (rest string, id uint32, ok bool) {
	idx := strings.Index(s, idMarker)
	if idx < 0 {
		return s, 0, false
	}
	j := idx + len(idMarker)
	k := j
	for k < len(s) && s[k] >= '0' && s[k] <= '9' {
		k++
	}
	if k == j {
		return s, 0, false
	}
	n, err := strconv.ParseUint(s[j:k], 10, 32)
	if err != nil {
		return s, 0, false
	}
	rest = strings.TrimRight(s[:idx], " ") + s[k:]
	return rest, uint32(n), true
}

// FormatACK builds "ACK <id>".
func FormatACK(id uint32) string {
	var buf [20]byte
	return "ACK " + string(conv.Utoa(buf[:], uint64(id)))
}

// ParseACK reports whether s is an "ACK <dec>" frame and extracts the id.
func ParseACK(s string) (id uint32, ok bool) {
	const p = "ACK "
	if !strings.HasPrefix(s, p) {
		return 0, false
	}
	rest := strings.TrimSpace(s[len(p):])
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Verb returns the first whitespace-delimited token of s.
func Verb(s string) string {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}

// Args returns the tokens after the verb.
func Args(s string) []string {
	f := strings.Fields(s)
	if len(f) <= 1 {
		return nil
	}
	return f[1:]
}

// AppendMAC appends the trailing MAC token that every directed Hub->Station
// frame carries.
func AppendMAC(payload string, mac types.Mac6) string {
	return fmtx.Sprintf("%s %s", payload, mac.String())
}

// TrimTrailingMAC strips a trailing "<MAC>" token if s ends with one,
// returning the remaining payload and the parsed MAC.
func TrimTrailingMAC(s string) (rest string, mac types.Mac6, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexAny(s, " \t")
	if i < 0 {
		return s, mac, false
	}
	candidate := s[i+1:]
	m, err := types.ParseMac6(candidate)
	if err != nil {
		return s, mac, false
	}
	return strings.TrimSpace(s[:i]), m, true
}

// BuildEVPressed formats an "EV P <ch> <0|1> <MAC>" frame; ch is 1-based.
func BuildEVPressed(ch int, pressed bool, mac types.Mac6) string {
	return fmtx.Sprintf("EV P %d %s", ch, bit(pressed)) + " " + mac.String()
}

// BuildEVLatched formats an "EV L <ch> 1 <MAC>" frame; ch is 1-based.
func BuildEVLatched(ch int, latched bool, mac types.Mac6) string {
	return fmtx.Sprintf("EV L %d %s", ch, bit(latched)) + " " + mac.String()
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// BuildResultSuccess formats "RESULT SUCCESS <MAC>".
func BuildResultSuccess(mac types.Mac6) string {
	return AppendMAC("RESULT SUCCESS", mac)
}

// BuildResultFailure formats "RESULT FAILURE [MISSING a,b][;EXTRA c,d] <MAC>",
// truncating each CSV list at a 128-byte cap (silent truncation per the
// buffer-overflow error policy).
func BuildResultFailure(missing, extra []int, mac types.Mac6) string {
	const cap_ = 128
	var b strings.Builder
	b.WriteString("RESULT FAILURE")
	if len(missing) > 0 {
		b.WriteString(" MISSING ")
		b.WriteString(truncateCSV(formatCSV(missing), cap_))
	}
	if len(extra) > 0 {
		b.WriteString(";EXTRA ")
		b.WriteString(truncateCSV(formatCSV(extra), cap_))
	}
	return AppendMAC(b.String(), mac)
}

func formatCSV(nums []int) string {
	var b strings.Builder
	var buf [20]byte
	for i, n := range nums {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(conv.Utoa(buf[:], uint64(n)))
	}
	return b.String()
}

func truncateCSV(s string, cap_ int) string {
	if len(s) <= cap_ {
		return s
	}
	return s[:cap_]
}

// ParseChannelCSV parses a comma-separated list of channel numbers,
// enforcing 1..max inclusive and an entry-count cap. An empty s yields a
// nil slice (meaning "all").
func ParseChannelCSV(s string, max, capEntries int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > capEntries {
		return nil, errTooManyEntries
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errInvalidCSV
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > max {
			return nil, errInvalidCSV
		}
		out = append(out, n)
	}
	return out, nil
}
