package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ftrias/MCP4551/drivers/mcp4551"
)

// Config is the optional YAML file given with -config. Flags override it.
//
//	bus: /dev/i2c-1
//	pins: {a0: gnd}
//	total_ohm: 10000
//	bits: 8
//	power_on: {tcon: 0x1ff, wiper: 0x80}
type Config struct {
	Bus      string       `yaml:"bus"`
	Addr     uint16       `yaml:"addr"`
	Pins     *PinsConfig  `yaml:"pins"`
	TotalOhm uint32       `yaml:"total_ohm"`
	Bits     uint8        `yaml:"bits"`
	PowerOn  *PowerOnConf `yaml:"power_on"`
}

type PinsConfig struct {
	A0 string `yaml:"a0"`
	A1 string `yaml:"a1"`
	A2 string `yaml:"a2"`
}

type PowerOnConf struct {
	TCON  uint16 `yaml:"tcon"`
	Wiper uint16 `yaml:"wiper"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// address resolves Addr, then Pins, then the part default.
func (c Config) address() (uint16, error) {
	if c.Addr != 0 {
		return c.Addr, nil
	}
	if c.Pins == nil {
		return mcp4551.AddressDefault, nil
	}
	a0, err := parsePinOr(c.Pins.A0)
	if err != nil {
		return 0, err
	}
	a1, err := parsePinOr(c.Pins.A1)
	if err != nil {
		return 0, err
	}
	a2, err := parsePinOr(c.Pins.A2)
	if err != nil {
		return 0, err
	}
	return mcp4551.AddressFromPins(a0, a1, a2), nil
}

// parsePinOr treats an empty strap as VCC.
func parsePinOr(s string) (mcp4551.AddressPin, error) {
	if s == "" {
		return mcp4551.PinVCC, nil
	}
	p, ok := mcp4551.ParsePin(s)
	if !ok {
		return 0, fmt.Errorf("bad pin level %q (want gnd or vcc)", s)
	}
	return p, nil
}

func (c Config) powerOn() *mcp4551.PowerOnState {
	if c.PowerOn == nil {
		return nil
	}
	return &mcp4551.PowerOnState{
		TCON:  mcp4551.TCONBits(c.PowerOn.TCON),
		Wiper: c.PowerOn.Wiper,
	}
}
