package hub

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"fixturelink/ioexpander"
	"fixturelink/ioexpander/simbank"
	"fixturelink/radio/simnet"
	"fixturelink/types"
)

var (
	testHubMAC  = types.Mac6{0x01, 0, 0, 0, 0, 0x01}
	testPeerMAC = types.Mac6{0x02, 0, 0, 0, 0, 0x02}
)

// testFixture bundles a Hub against an in-memory radio medium and fake
// I2C banks, all switches starting in the released (not pressed) state so
// SELF_CHECK clears on the very first Tick.
type testFixture struct {
	hub      *Hub
	medium   *simnet.Medium
	peer     *simnet.Driver
	banks    [5]*simbank.Bank
	peerRecv chan string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	medium := simnet.NewMedium()
	drv := medium.NewDriver(testHubMAC)

	var banks [5]ioexpander.Bank
	var simBanks [5]*simbank.Bank
	for i := range banks {
		b := simbank.New()
		b.SetInput(0xFFFF) // every switch released
		banks[i] = b
		simBanks[i] = b
	}

	h := New(drv, banks, log.New(io.Discard, "", 0))

	peer := medium.NewDriver(testPeerMAC)
	recv := make(chan string, 64)
	peer.OnReceive(func(src types.Mac6, payload []byte) {
		recv <- string(payload)
	})

	f := &testFixture{hub: h, medium: medium, peer: peer, banks: simBanks, peerRecv: recv}
	f.hub.Tick() // clears SELF_CHECK since every switch reads released
	if f.hub.state != WaitForTarget {
		t.Fatalf("state after first Tick = %v, want WAIT_FOR_TARGET", f.hub.state)
	}
	return f
}

// awaitFromPeer waits for a line sent by the hub to be observed on the
// peer's receive channel; delivery runs on its own goroutine, the same as
// a real RX interrupt, so this is a short real-time wait rather than
// something a fake clock can drive.
func (f *testFixture) awaitFromPeer(t *testing.T, d time.Duration) string {
	t.Helper()
	select {
	case line := <-f.peerRecv:
		return line
	case <-time.After(d):
		t.Fatal("timed out waiting for a frame from the hub")
		return ""
	}
}

func (f *testFixture) expectNoneFromPeer(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case line := <-f.peerRecv:
		t.Fatalf("unexpected frame from the hub: %q", line)
	case <-time.After(d):
	}
}

// sendFromPeer delivers a line as if the peer radio had transmitted it,
// then gives the hub's RX goroutine a moment to post it to the pending
// mailbox before the caller ticks the main loop.
func (f *testFixture) sendFromPeer(t *testing.T, line string) {
	t.Helper()
	if err := f.peer.Send(testHubMAC, []byte(line)); err != nil {
		t.Fatalf("peer.Send: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
}

func (f *testFixture) setChannelPressed(ch1 int, pressed bool) {
	p := f.hub.iom.chan_[ch1-1]
	f.banks[p.bank].SetInputBit(p.swBit, !pressed)
}

func (f *testFixture) bankOutputs() [5]uint16 {
	var out [5]uint16
	for i, b := range f.banks {
		out[i] = b.Output()
	}
	return out
}

func (f *testFixture) anyLEDOn() bool {
	for _, v := range f.bankOutputs() {
		if v != 0 {
			return true
		}
	}
	return false
}

// fakeClock lets a test drive the Hub's notion of time deterministically
// once the async radio delivery that got it into a given state has settled.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSelfCheck_WaitsForEverySwitchReleased(t *testing.T) {
	medium := simnet.NewMedium()
	drv := medium.NewDriver(testHubMAC)

	var banks [5]ioexpander.Bank
	var simBanks [5]*simbank.Bank
	for i := range banks {
		b := simbank.New() // input defaults to 0: every switch reads "held"
		banks[i] = b
		simBanks[i] = b
	}
	h := New(drv, banks, log.New(io.Discard, "", 0))

	h.Tick()
	if h.state != SelfCheck {
		t.Fatalf("state = %v, want SELF_CHECK while a switch still reads held", h.state)
	}

	for i := range simBanks {
		simBanks[i].SetInput(0xFFFF)
	}
	h.Tick()
	if h.state != WaitForTarget {
		t.Fatalf("state = %v, want WAIT_FOR_TARGET once every switch reads released", h.state)
	}
}

func TestWelcome_GreetsAndBlinksThenFallsThroughToWaitForTarget(t *testing.T) {
	f := newTestFixture(t)
	clock := newFakeClock()
	f.hub.now = clock.Now

	f.sendFromPeer(t, "WELCOME")
	f.hub.Tick() // drains the pending WELCOME

	if f.hub.state != Welcome {
		t.Fatalf("state = %v, want WELCOME", f.hub.state)
	}
	peer, ok := f.hub.SessionPeer()
	if !ok || peer != testPeerMAC {
		t.Fatalf("SessionPeer = %v, %v, want %v, true", peer, ok, testPeerMAC)
	}

	if got := f.awaitFromPeer(t, time.Second); got != "WELCOME" {
		t.Fatalf("first frame = %q, want raw WELCOME", got)
	}
	if got := f.awaitFromPeer(t, time.Second); got != "READY "+testHubMAC.String()+" ID=1" {
		t.Fatalf("second frame = %q, want reliable READY <hub MAC> ID=1", got)
	}

	f.hub.Tick() // establishes the blink baseline, no toggle yet
	for edge := 1; edge <= welcomeBlinkEdges; edge++ {
		clock.Advance(blinkStepInterval)
		f.hub.Tick()
	}

	if f.hub.state != WaitForTarget {
		t.Fatalf("state after %d blink edges = %v, want WAIT_FOR_TARGET", welcomeBlinkEdges, f.hub.state)
	}
	if f.anyLEDOn() {
		t.Fatal("an LED is still on once the WELCOME blink has finished")
	}
}

func TestClean_TearsDownSessionFromAnyNonSelfCheckState(t *testing.T) {
	f := newTestFixture(t)
	f.sendFromPeer(t, "WELCOME")
	f.hub.Tick()
	_ = f.awaitFromPeer(t, time.Second) // WELCOME
	_ = f.awaitFromPeer(t, time.Second) // READY ID=1

	f.sendFromPeer(t, "CLEAN")
	f.hub.Tick()

	if f.hub.state != WaitForTarget {
		t.Fatalf("state after CLEAN = %v, want WAIT_FOR_TARGET", f.hub.state)
	}
	if _, ok := f.hub.SessionPeer(); ok {
		t.Fatal("SessionPeer still bound after CLEAN")
	}
	if got := f.awaitFromPeer(t, time.Second); got != "CLEAN-OK" {
		t.Fatalf("reply = %q, want CLEAN-OK", got)
	}
}

func TestReliableSend_RetransmitsWhenUnacked(t *testing.T) {
	f := newTestFixture(t)
	f.sendFromPeer(t, "WELCOME")
	f.hub.Tick()
	if got := f.awaitFromPeer(t, time.Second); got != "WELCOME" {
		t.Fatalf("first frame = %q, want raw WELCOME", got)
	}
	if got := f.awaitFromPeer(t, time.Second); got != "READY "+testHubMAC.String()+" ID=1" {
		t.Fatalf("second frame = %q, want reliable READY <hub MAC> ID=1", got)
	}

	// The peer never ACKs; running the main loop past the 240ms initial
	// interval must produce a retransmission of the same framed payload.
	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.hub.Tick()
		time.Sleep(10 * time.Millisecond)
	}

	want := "READY " + testHubMAC.String() + " ID=1"
	count := 0
	for _, frame := range f.hub.radio.(*simnet.Driver).TxLog() {
		if string(frame) == want {
			count++
		}
	}
	if count < 2 {
		t.Fatalf("%q was transmitted %d time(s) over 600ms, want at least 2", want, count)
	}
}
