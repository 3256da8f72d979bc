package hal

// Minimal JSON config structures, received on config/hal.

type HALConfig struct {
	Version int      `json:"version"`
	Buses   []BusCfg `json:"buses"`
	Devices []DevCfg `json:"devices"`
}

type BusCfg struct {
	ID     string `json:"id"`   // "i2c0"
	Type   string `json:"type"` // "i2c"
	Impl   string `json:"impl"` // "tinygo" | "periph" (informational)
	Params struct {
		FreqHz int `json:"freq_hz"`
	} `json:"params"`
}

type DevCfg struct {
	ID     string    `json:"id"`   // "pot0"
	Type   string    `json:"type"` // "mcp4551"
	BusRef DevBusRef `json:"bus_ref"`
	Params any       `json:"params,omitempty"` // device-specific shape
}

type DevBusRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// MCP4551Params is the params shape for type "mcp4551".
type MCP4551Params struct {
	// Addr wins over Pins. Both empty => 0x2E.
	Addr uint16   `json:"addr,omitempty"`
	Pins *PinsCfg `json:"pins,omitempty"`
	// R_AB in ohms, used by set_ohm and the ohm_wb estimate.
	TotalOhm uint32 `json:"total_ohm,omitempty"`
	Bits     uint8  `json:"bits,omitempty"` // default 8
	// PowerOn, when present, is written by the bus worker at start-up.
	PowerOn       *PowerOnCfg `json:"power_on,omitempty"`
	SampleEveryMS int         `json:"sample_every_ms,omitempty"` // 0 => 2000, <0 => never
}

// PinsCfg gives each strap as "gnd" or "vcc"; missing pins count as VCC.
type PinsCfg struct {
	A0 string `json:"a0,omitempty"`
	A1 string `json:"a1,omitempty"`
	A2 string `json:"a2,omitempty"`
}

type PowerOnCfg struct {
	TCON  uint16 `json:"tcon"`
	Wiper uint16 `json:"wiper"`
}
