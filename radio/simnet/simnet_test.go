package simnet

import (
	"testing"
	"time"

	"fixturelink/radio"
	"fixturelink/types"
)

func TestDriver_UnicastDeliversOnlyToDestination(t *testing.T) {
	medium := NewMedium()
	a := medium.NewDriver(types.Mac6{1})
	b := medium.NewDriver(types.Mac6{2})
	c := medium.NewDriver(types.Mac6{3})

	recvB := make(chan []byte, 1)
	b.OnReceive(func(src types.Mac6, payload []byte) { recvB <- payload })
	c.OnReceive(func(src types.Mac6, payload []byte) { t.Error("c should not receive a unicast to b") })

	if err := a.Send(types.Mac6{2}, []byte("HELLO")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-recvB:
		if string(got) != "HELLO" {
			t.Fatalf("payload = %q, want HELLO", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for b to receive")
	}
}

func TestDriver_BroadcastReachesEveryOtherDriver(t *testing.T) {
	medium := NewMedium()
	a := medium.NewDriver(types.Mac6{1})
	b := medium.NewDriver(types.Mac6{2})
	c := medium.NewDriver(types.Mac6{3})

	recvB := make(chan types.Mac6, 1)
	recvC := make(chan types.Mac6, 1)
	b.OnReceive(func(src types.Mac6, payload []byte) { recvB <- src })
	c.OnReceive(func(src types.Mac6, payload []byte) { recvC <- src })

	if err := a.Send(types.BroadcastMac, []byte("HELLO")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, ch := range []chan types.Mac6{recvB, recvC} {
		select {
		case src := <-ch:
			if src != (types.Mac6{1}) {
				t.Fatalf("src = %v, want %v", src, types.Mac6{1})
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}
}

func TestDriver_Send_RejectsOversizedPayload(t *testing.T) {
	medium := NewMedium()
	a := medium.NewDriver(types.Mac6{1})
	oversized := make([]byte, radio.MTU+1)
	if err := a.Send(types.Mac6{2}, oversized); err == nil {
		t.Fatal("Send: want error for a payload exceeding MTU, got nil")
	}
}

func TestMedium_DropRate_SuppressesDeliveryButNotTxLog(t *testing.T) {
	medium := NewMedium()
	medium.DropRate = func() bool { return true }
	a := medium.NewDriver(types.Mac6{1})
	b := medium.NewDriver(types.Mac6{2})

	recvB := make(chan struct{}, 1)
	b.OnReceive(func(types.Mac6, []byte) { recvB <- struct{}{} })

	if err := a.Send(types.Mac6{2}, []byte("HELLO")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-recvB:
		t.Fatal("b received a frame despite DropRate always dropping")
	case <-time.After(100 * time.Millisecond):
	}

	log := a.TxLog()
	if len(log) != 1 || string(log[0]) != "HELLO" {
		t.Fatalf("TxLog = %v, want a single HELLO entry even though the frame was dropped", log)
	}
}

func TestDriver_SendToUnknownUnicastDestinationIsANoop(t *testing.T) {
	medium := NewMedium()
	a := medium.NewDriver(types.Mac6{1})
	if err := a.Send(types.Mac6{0xEE}, []byte("HELLO")); err != nil {
		t.Fatalf("Send to an unregistered destination: %v", err)
	}
}
