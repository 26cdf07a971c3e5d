package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestLineConn_ReadLine_SplitsOnNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	lc := NewLineConn(server)
	go func() {
		io.WriteString(client, "cmd='MONITOR NORMAL 1 1'\ncmd='CHECK 1'\n")
	}()

	first, err := lc.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if first != `cmd='MONITOR NORMAL 1 1'` {
		t.Fatalf("first line = %q", first)
	}

	second, err := lc.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if second != `cmd='CHECK 1'` {
		t.Fatalf("second line = %q", second)
	}
}

func TestLineConn_ReadLine_ReturnsEOFWhenClosed(t *testing.T) {
	client, server := net.Pipe()
	lc := NewLineConn(server)
	client.Close()

	_, err := lc.ReadLine()
	if err == nil {
		t.Fatal("ReadLine: want an error once the peer closes, got nil")
	}
}

func TestLineConn_WriteLine_AppendsNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	lc := NewLineConn(server)
	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- string(buf[:n])
	}()

	if err := lc.WriteLine("RESULT SUCCESS"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}

	select {
	case got := <-done:
		if got != "RESULT SUCCESS\n" {
			t.Fatalf("written = %q, want %q", got, "RESULT SUCCESS\n")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the write to reach the peer")
	}
}

func TestLineConn_WriteLine_SerialisesConcurrentWriters(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	lc := NewLineConn(server)
	lines := make(chan string, 2)
	go func() {
		r := NewLineConn(client)
		for i := 0; i < 2; i++ {
			l, err := r.ReadLine()
			if err != nil {
				return
			}
			lines <- l
		}
	}()

	done := make(chan struct{})
	go func() { lc.WriteLine("EV P 1 1 AA:BB:CC:DD:EE:FF"); done <- struct{}{} }()
	go func() { lc.WriteLine("EV P 2 1 AA:BB:CC:DD:EE:FF"); done <- struct{}{} }()
	<-done
	<-done

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case l := <-lines:
			seen[l] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for both concurrent writes")
		}
	}
	if !seen["EV P 1 1 AA:BB:CC:DD:EE:FF"] || !seen["EV P 2 1 AA:BB:CC:DD:EE:FF"] {
		t.Fatalf("seen = %v, want both lines intact (no interleaving)", seen)
	}
}

func TestPipeTransport_OpenOnce(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pt := NewPipeTransport(server)
	rwc, err := pt.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rwc != server {
		t.Fatal("Open: want the wrapped ReadWriteCloser back")
	}

	if _, err := pt.Open(context.Background()); err == nil {
		t.Fatal("second Open: want an error, got nil")
	}
}

func TestUARTTransport_NoDialInjected(t *testing.T) {
	old := UARTDial
	UARTDial = nil
	t.Cleanup(func() { UARTDial = old })

	tr := NewUARTTransport(UARTConfig{Baud: 115200})
	_, err := tr.Open(context.Background())
	if !errors.Is(err, errNoDial) {
		t.Fatalf("Open error = %v, want errNoDial", err)
	}
}

func TestUARTTransport_DelegatesToInjectedDial(t *testing.T) {
	old := UARTDial
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var gotCfg UARTConfig
	UARTDial = func(ctx context.Context, cfg UARTConfig) (io.ReadWriteCloser, error) {
		gotCfg = cfg
		return server, nil
	}
	t.Cleanup(func() { UARTDial = old })

	tr := NewUARTTransport(UARTConfig{Baud: 9600})
	rwc, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rwc != server {
		t.Fatal("Open: want the dialled ReadWriteCloser back")
	}
	if gotCfg.Baud != 9600 {
		t.Fatalf("gotCfg.Baud = %d, want 9600", gotCfg.Baud)
	}
}
