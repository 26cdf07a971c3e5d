//go:build rp2040

package serial

import (
	"context"
	"io"
	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

// uartRWC adapts uartx.UART's event-driven Readable()/Writable() channels
// plus TryRead/TryWrite to the blocking io.ReadWriteCloser contract
// LineConn expects, the same shape rp2_resources.go uses to wrap raw
// machine peripherals behind the HAL's own interfaces.
type uartRWC struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *uartRWC) Read(p []byte) (int, error) {
	for {
		n := c.u.TryRead(p)
		if n > 0 {
			return n, nil
		}
		select {
		case <-c.u.Readable():
			continue
		case <-c.ctx.Done():
			return 0, io.EOF
		}
	}
}

func (c *uartRWC) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := c.u.TryWrite(p[written:])
		written += n
		if written == len(p) {
			return written, nil
		}
		select {
		case <-c.u.Writable():
			continue
		case <-c.ctx.Done():
			return written, io.EOF
		}
	}
	return written, nil
}

func (c *uartRWC) Close() error {
	c.cancel()
	return nil
}

// uartDial opens the board's host-facing UART0 at cfg's baud and pin
// assignment; it is installed as serial.UARTDial below, the board-specific
// init hook NewUARTTransport relies on.
func uartDial(ctx context.Context, cfg UARTConfig) (io.ReadWriteCloser, error) {
	u := uartx.UART0
	txPin := machine.UART_TX_PIN
	rxPin := machine.UART_RX_PIN
	if cfg.TxPin != 0 {
		txPin = machine.Pin(cfg.TxPin)
	}
	if cfg.RxPin != 0 {
		rxPin = machine.Pin(cfg.RxPin)
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: uint32(baud),
		TX:       txPin,
		RX:       rxPin,
	}); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithCancel(ctx)
	return &uartRWC{u: u, ctx: cctx, cancel: cancel}, nil
}

func init() {
	UARTDial = uartDial
}
