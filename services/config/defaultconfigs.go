package config

// Key: board ID (the value placed in ctx under CtxDeviceKey).
// Val: raw JSON; each top-level key becomes config/<key>.

// One MCP4551 on I2C0 with A0 tied low, a 10k part, mid-scale at power-on.
const cfgPico = `{
  "hal": {
    "version": 1,
    "buses": [
      {"id": "i2c0", "type": "i2c", "impl": "tinygo", "params": {"freq_hz": 400000}}
    ],
    "devices": [
      {
        "id": "pot0",
        "type": "mcp4551",
        "bus_ref": {"id": "i2c0", "type": "i2c"},
        "params": {
          "pins": {"a0": "gnd"},
          "total_ohm": 10000,
          "bits": 8,
          "power_on": {"tcon": 511, "wiper": 128},
          "sample_every_ms": 2000
        }
      }
    ]
  },
  "heartbeat": {
    "interval": 5
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"id": "uart0", "baud": 115200, "tx_pin": 0, "rx_pin": 1}
    }
  }
}`

// The same part on a Linux host's first I2C bus.
const cfgLinux = `{
  "hal": {
    "version": 1,
    "buses": [
      {"id": "i2c0", "type": "i2c", "impl": "periph"}
    ],
    "devices": [
      {
        "id": "pot0",
        "type": "mcp4551",
        "bus_ref": {"id": "i2c0", "type": "i2c"},
        "params": {"addr": 46, "total_ohm": 10000}
      }
    ]
  },
  "heartbeat": {
    "interval": 10
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"id": "uart0", "dev": "/dev/ttyACM0", "baud": 115200}
    }
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico":  []byte(cfgPico),
	"linux": []byte(cfgLinux),
}
