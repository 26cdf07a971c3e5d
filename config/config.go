// Package config publishes a board's embedded configuration (I2C expander
// addresses, the radio channel, and an optional MAC override) onto the
// diagnostics bus as retained per-key messages. No package in this module
// reads them back; cmd/hub's catch-all diagnostic subscriber logs them.
package config

import (
	"context"
	"errors"

	"fixturelink/bus"

	"github.com/andreyvit/tinyjson"
)

const (
	serviceName  = "config"
	configPrefix = "config"

	// CtxDeviceKey is the context key cmd/hub and cmd/station store the
	// board identifier under before calling Start.
	CtxDeviceKey = "device"
)

// EmbeddedConfigLookup resolves a board identifier to its raw embedded
// JSON config; overridable for tests.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type Service struct {
	Name string
}

func NewService() *Service {
	return &Service{Name: serviceName}
}

// publishConfig reads the board's embedded config and publishes each
// top-level key as its own retained message under "config/<key>".
func (s *Service) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("config: missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("config: no embedded config for device: " + device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return errors.New("config: embedded config is not a JSON object")
	}

	for k, v := range m {
		msg := conn.NewMessage(bus.T(configPrefix, k), v, true)
		conn.Publish(msg)
	}
	return nil
}

// Start launches the config publisher in a goroutine; errors go to the
// "config/error" retained topic rather than a logger, since no Log is
// wired into this package. Neither cmd/hub nor cmd/station acts on that
// topic; cmd/hub's catch-all diagnostic subscriber only logs it.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			conn.Publish(conn.NewMessage(bus.T(configPrefix, "error"), err.Error(), true))
		}
	}()
}
