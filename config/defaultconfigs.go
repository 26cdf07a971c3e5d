package config

// Embedded board configs, keyed by the device identifier passed via
// CtxDeviceKey. Each board's I2C expander addresses, default radio
// channel and optional MAC override live here; a real deployment would
// regenerate this file per fixture during provisioning rather than edit
// it by hand.

const cfgHub = `{
  "ioexpander": {
    "bus": "i2c0",
    "addresses": [32, 33, 34, 35, 36]
  },
  "radio": {
    "channel": 37
  },
  "mac_override": ""
}`

const cfgStation = `{
  "radio": {
    "channel": 37
  },
  "host_uart": {
    "baud": 115200
  },
  "mac_override": ""
}`

var embeddedConfigs = map[string][]byte{
	"hub":     []byte(cfgHub),
	"station": []byte(cfgStation),
}
