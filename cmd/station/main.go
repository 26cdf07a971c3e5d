// Command station runs the Station node: it bridges a host PC's serial
// console onto the radio link shared with a paired Hub.
//
// The physical radio and host UART backends are out of scope for this
// repository; this binary defaults to radio/simnet and a stdin/stdout
// pipe so it builds and runs standalone, with serial.UARTDial as the
// injection point for a real platform backend.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fixturelink/bus"
	"fixturelink/config"
	"fixturelink/radio/simnet"
	"fixturelink/serial"
	"fixturelink/station"
	"fixturelink/types"
	"fixturelink/x/strx"
)

func main() {
	device := flag.String("device", "station", "embedded config device ID")
	macFlag := flag.String("mac", "", "override this node's MAC (colon-hex); if empty, FIXTURELINK_MAC, then a fixed default")
	flag.Parse()

	logger := log.New(os.Stderr, "station: ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("shutdown signal received")
		cancel()
	}()

	b := bus.NewBus(16)
	cfgConn := b.NewConnection("config")
	config.NewService().Start(context.WithValue(ctx, config.CtxDeviceKey, *device), cfgConn)

	mac, err := localMAC(strx.Coalesce(*macFlag, os.Getenv("FIXTURELINK_MAC")))
	if err != nil {
		logger.Fatalf("config fatal: invalid -mac: %v", err)
	}

	medium := simnet.NewMedium()
	drv := medium.NewDriver(mac)

	hostLink := &stdioRWC{}
	host := serial.NewLineConn(hostLink)

	st := station.New(drv, host, logger)

	logger.Printf("running, mac=%s", mac)
	if err := st.Run(ctx); err != nil {
		logger.Printf("stopped: %v", err)
		return
	}
	logger.Printf("stopped")
}

func localMAC(spec string) (types.Mac6, error) {
	if spec == "" {
		return types.Mac6{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x02}, nil
	}
	return types.ParseMac6(spec)
}

// stdioRWC stands in for the host UART on a dev machine: reads from
// stdin, writes to stdout. A real board wires serial.UARTDial to the
// actual host-facing UART instead.
type stdioRWC struct{}

func (stdioRWC) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioRWC) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioRWC) Close() error                { return nil }
