// Command hub runs the Hub node: the session state machine driving 40
// channels through a set of I2C port expanders and a short-range radio
// link to a paired Station.
//
// The physical I2C and radio backends are out of scope for this
// repository (see the ioexpander and radio packages); this binary wires
// the host-testable simnet/simbank implementations by default so it
// builds and runs standalone, with board-specific real backends meant to
// plug in the same way serial.UARTDial does for the station binary.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixturelink/bus"
	"fixturelink/config"
	"fixturelink/hub"
	"fixturelink/ioexpander"
	"fixturelink/ioexpander/simbank"
	"fixturelink/radio/simnet"
	"fixturelink/types"
	"fixturelink/x/strx"
)

func main() {
	device := flag.String("device", "hub", "embedded config device ID")
	macFlag := flag.String("mac", "", "override this node's MAC (colon-hex); if empty, FIXTURELINK_MAC, then a fixed default")
	flag.Parse()

	logger := log.New(os.Stdout, "hub: ", log.LstdFlags|log.Lmicroseconds)

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
	diagConn := b.NewConnection("diag")
	mon := diagConn.Subscribe(bus.T("#"))
	go func() {
		for m := range mon.Channel() {
			logger.Printf("[diag] %v = %v", m.Topic, m.Payload)
		}
	}()

	cfgConn := b.NewConnection("config")
	config.NewService().Start(context.WithValue(ctx, config.CtxDeviceKey, *device), cfgConn)

	mac, err := localMAC(strx.Coalesce(*macFlag, os.Getenv("FIXTURELINK_MAC")))
	if err != nil {
		logger.Fatalf("config fatal: invalid -mac: %v", err)
	}

	medium := simnet.NewMedium()
	drv := medium.NewDriver(mac)

	var banks [5]ioexpander.Bank
	for i := range banks {
		banks[i] = simbank.New()
	}

	h := hub.New(drv, banks, logger)

	bootCtx, bootCancel := context.WithTimeout(ctx, 2*time.Second)
	h.BootAnimation(bootCtx)
	bootCancel()

	logger.Printf("running, mac=%s", mac)
	h.Run(ctx)
	logger.Printf("stopped")
}

func localMAC(spec string) (types.Mac6, error) {
	if spec == "" {
		return types.Mac6{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}, nil
	}
	return types.ParseMac6(spec)
}
