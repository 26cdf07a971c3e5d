// Package station implements the Station node (C11): it bridges a
// line-oriented host-PC serial console onto the radio link the Hub
// speaks, accepting either a bare or cmd='...'-wrapped host line,
// resolving each command's own trailing MAC as its destination,
// validating the ones it forwards, and relaying the Hub's telemetry
// back to the host only while a session is bound to a known peer MAC.
package station

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"fixturelink/reliable"
	"fixturelink/serial"
	"fixturelink/types"
	"fixturelink/wire"
)

var errEmptyCheckList = errors.New("station: CHECK requires a non-empty channel list")

// Station owns the host-console <-> radio bridge. It is driven by three
// cooperative contexts: the console reader (Run's own goroutine, blocked
// on host.ReadLine), the radio RX callback, and a background ticker that
// services the reliable-TX retry timer. Only boundPeer/hasBoundPeer cross
// those contexts, so they are the only fields behind mu.
type Station struct {
	Log *log.Logger

	radio radioSender
	host  *serial.LineConn
	tx    *reliable.Slot

	mu           sync.Mutex
	boundPeer    types.Mac6
	hasBoundPeer bool
}

// radioSender is the subset of radio.Driver the station needs; declared
// locally so tests can supply a minimal fake without importing the radio
// package's full Driver surface.
type radioSender interface {
	Send(dst types.Mac6, payload []byte) error
	OnReceive(fn func(src types.Mac6, payload []byte))
}

func New(drv radioSender, host *serial.LineConn, logger *log.Logger) *Station {
	if logger == nil {
		logger = log.Default()
	}
	s := &Station{Log: logger, radio: drv, host: host}
	s.tx = reliable.NewSlot(sendAdapter{drv}, reliable.StationDefaults)
	s.tx.OnExhausted = func(id uint32, peer types.Mac6) {
		s.Log.Printf("station: reliable send id=%d to %s exhausted retries", id, peer)
	}
	drv.OnReceive(s.onReceive)
	return s
}

type sendAdapter struct{ d radioSender }

func (a sendAdapter) Send(dst types.Mac6, payload []byte) error { return a.d.Send(dst, payload) }

// Run services the retry ticker in the background and then blocks on the
// host console, returning when ctx is cancelled or the host link closes.
func (s *Station) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.tx.Tick()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := s.host.ReadLine()
		if err != nil {
			return err
		}
		s.handleHostLine(line)
	}
}

// handleHostLine accepts either a bare payload line or a quoted
// cmd='...'/cmd="..." wrapper, then scans the payload from the right for
// its trailing "<MAC>" destination token: every host command names its
// own target rather than relying on whatever peer last said HELLO. A
// line with no valid MAC, or an explicit zero MAC, carries no command
// this link will act on.
func (s *Station) handleHostLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	payload, ok := unwrapHostPayload(line)
	if !ok {
		s.Log.Printf("station: malformed host line %q", line)
		return
	}
	rest, mac, ok := wire.TrimTrailingMAC(payload)
	if !ok || mac.IsZero() {
		s.Log.Printf("station: host line %q has no valid destination MAC", line)
		return
	}
	s.forwardCommand(rest, mac)
}

// unwrapHostPayload strips a cmd='...'/cmd="..." wrapper if the line
// carries one, otherwise treats the line itself as the payload.
func unwrapHostPayload(line string) (string, bool) {
	toks, err := shlex.Split(line)
	if err != nil || len(toks) == 0 {
		return "", false
	}
	if strings.HasPrefix(toks[0], "cmd=") {
		return strings.TrimPrefix(toks[0], "cmd="), true
	}
	return line, true
}

func (s *Station) forwardCommand(inner string, peer types.Mac6) {
	verb := wire.Verb(inner)
	rest := strings.TrimSpace(strings.TrimPrefix(inner, verb))

	switch verb {
	case "WELCOME":
		s.sendRaw(peer, "WELCOME")
	case "PING":
		s.sendRaw(peer, "PING")
	case "MONITOR":
		s.sendReliable(peer, inner)
	case "CHECK":
		if err := validateCheckCSV(rest); err != nil {
			s.Log.Printf("station: rejecting CHECK %q: %v", rest, err)
			s.host.WriteLine("ERR " + err.Error())
			return
		}
		s.sendReliable(peer, inner)
	case "CLEAN":
		s.sendReliable(peer, "CLEAN")
	case "BLINK", "CHASE":
		s.sendReliable(peer, inner)
	default:
		s.Log.Printf("station: ignoring unrecognised host command %q", verb)
	}
}

// validateCheckCSV enforces the host-issued CHECK's stricter contract: a
// non-empty list of channels, each 1..40, at most 32 entries. Unlike the
// Hub's own CHECK handling (where an empty list means "everything"), the
// host must say what it means.
func validateCheckCSV(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return errEmptyCheckList
	}
	_, err := wire.ParseChannelCSV(rest, 40, 32)
	return err
}

// onReceive is the radio RX callback (second context). ACKs complete the
// outstanding reliable send; otherwise the frame is ACK'd back if it
// carried an ID, then forwarded to the host console while a session is
// bound to its source, with RESULT/CLEAN-OK ending the session.
func (s *Station) onReceive(src types.Mac6, payload []byte) {
	line := strings.TrimSpace(string(payload))
	if line == "" {
		return
	}

	if id, ok := wire.ParseACK(line); ok {
		s.tx.HandleAck(id, src)
		return
	}

	rest, id, hasID := wire.ExtractID(line)

	peer, hasPeer := s.SessionPeer()
	if hasID && hasPeer && peer == src {
		s.sendRaw(src, wire.FormatACK(id))
	}

	verb := wire.Verb(rest)
	switch verb {
	case "HELLO":
		s.setSessionPeer(src)
		s.host.WriteLine(rest + " " + src.String())
		return
	case "READY":
		s.setSessionPeer(src)
	}

	if !hasPeer || peer != src {
		return
	}

	switch verb {
	case "RESULT", "CLEAN-OK":
		s.clearSessionPeer()
	}

	if err := s.host.WriteLine(rest); err != nil {
		s.Log.Printf("station: host write failed: %v", err)
	}
}

func (s *Station) sendRaw(peer types.Mac6, payload string) {
	if err := s.radio.Send(peer, []byte(payload)); err != nil {
		s.Log.Printf("station: raw send failed: %v", err)
	}
}

func (s *Station) sendReliable(peer types.Mac6, payload string) {
	id := s.tx.NextID()
	framed := wire.FormatReliable(payload, id)
	if err := s.tx.Send(peer, id, []byte(framed)); err != nil {
		s.Log.Printf("station: reliable send failed: %v", err)
	}
}

func (s *Station) setSessionPeer(mac types.Mac6) {
	s.mu.Lock()
	s.boundPeer = mac
	s.hasBoundPeer = true
	s.mu.Unlock()
}

func (s *Station) clearSessionPeer() {
	s.mu.Lock()
	s.hasBoundPeer = false
	s.boundPeer = types.ZeroMac
	s.mu.Unlock()
}

func (s *Station) SessionPeer() (types.Mac6, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundPeer, s.hasBoundPeer
}
