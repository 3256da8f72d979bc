// services/hal/adaptor_mcp4551.go
package hal

import (
	"context"
	"time"

	"github.com/ftrias/MCP4551/drivers/mcp4551"
	"github.com/ftrias/MCP4551/drivers/twowire"
	"github.com/ftrias/MCP4551/errcode"
	"github.com/ftrias/MCP4551/types"
	"github.com/ftrias/MCP4551/x/mathx"

	"tinygo.org/x/drivers"
)

const defaultPotSample = 2 * time.Second

func init() { RegisterBuilder("mcp4551", mcp4551Builder{}) }

// maxPotBits keeps 2^bits+1 positions within uint16.
const maxPotBits = 15

type mcp4551Builder struct{}

func (mcp4551Builder) Build(in BuildInput) (BuildOutput, error) {
	var p MCP4551Params
	if in.Params != nil {
		if err := decodeJSON(in.Params, &p); err != nil {
			return BuildOutput{}, errcode.InvalidParams
		}
	}
	addr, err := p.address()
	if err != nil {
		return BuildOutput{}, err
	}
	if p.Bits == 0 {
		p.Bits = 8
	}
	if p.Bits > maxPotBits {
		return BuildOutput{}, errcode.InvalidParams
	}
	cfg := mcp4551.Config{Address: addr}
	if p.PowerOn != nil {
		cfg.PowerOn = &mcp4551.PowerOnState{
			TCON:  mcp4551.TCONBits(p.PowerOn.TCON),
			Wiper: p.PowerOn.Wiper,
		}
	}

	every := defaultPotSample
	switch {
	case p.SampleEveryMS > 0:
		every = time.Duration(p.SampleEveryMS) * time.Millisecond
	case p.SampleEveryMS < 0:
		every = 0
	}
	return BuildOutput{
		Adaptor:     NewMCP4551Adaptor(in.DeviceID, in.BusID, in.Bus, cfg, p),
		SampleEvery: every,
	}, nil
}

func (p MCP4551Params) address() (uint16, error) {
	if p.Addr != 0 {
		return p.Addr, nil
	}
	if p.Pins == nil {
		return mcp4551.AddressDefault, nil
	}
	pin := func(s string) (mcp4551.AddressPin, error) {
		if s == "" {
			return mcp4551.PinVCC, nil
		}
		v, ok := mcp4551.ParsePin(s)
		if !ok {
			return 0, errcode.InvalidParams
		}
		return v, nil
	}
	a0, err := pin(p.Pins.A0)
	if err != nil {
		return 0, err
	}
	a1, err := pin(p.Pins.A1)
	if err != nil {
		return 0, err
	}
	a2, err := pin(p.Pins.A2)
	if err != nil {
		return 0, err
	}
	return mcp4551.AddressFromPins(a0, a1, a2), nil
}

type mcp4551Adaptor struct {
	id     string
	busID  string
	dev    *mcp4551.Device
	params MCP4551Params
}

// NewMCP4551Adaptor wraps one potentiometer. The bus worker owns all calls,
// so the plain (unlocked) twowire adapter is enough.
func NewMCP4551Adaptor(id, busID string, bus drivers.I2C, cfg mcp4551.Config, p MCP4551Params) Adaptor {
	return &mcp4551Adaptor{
		id:     id,
		busID:  busID,
		dev:    mcp4551.New(twowire.New(bus), cfg),
		params: p,
	}
}

func (a *mcp4551Adaptor) ID() string { return a.id }

func (a *mcp4551Adaptor) Capabilities() []CapInfo {
	return []CapInfo{{
		Kind: types.KindPotentiometer,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "mcp4551",
			Detail: types.PotInfo{
				Bus:      a.busID,
				Addr:     a.dev.Address(),
				Bits:     a.params.Bits,
				Steps:    uint16(1)<<a.params.Bits + 1,
				TotalOhm: a.params.TotalOhm,
			},
		},
	}}
}

func (a *mcp4551Adaptor) Init(ctx context.Context) error {
	return errcode.Wrap("init", a.dev.Configure())
}

func (a *mcp4551Adaptor) Collect(ctx context.Context) (Sample, error) {
	v, err := a.dev.Wiper()
	if err != nil {
		return nil, errcode.Wrap("read", err)
	}
	pv := a.value(v)
	return Sample{{Kind: types.KindPotentiometer, Payload: pv, TsMs: pv.TS}}, nil
}

func (a *mcp4551Adaptor) value(code uint16) types.PotValue {
	pv := types.PotValue{Wiper: code, TS: time.Now().UnixMilli()}
	if a.params.TotalOhm > 0 {
		full := uint64(1) << a.params.Bits
		c := mathx.Clamp(uint64(code), 0, full)
		pv.OhmWB = uint32(mathx.UnscaleFloor(c, uint64(a.params.TotalOhm), a.params.Bits))
	}
	return pv
}

func (a *mcp4551Adaptor) Control(kind types.Kind, verb string, payload any) (any, error) {
	if kind != types.KindPotentiometer {
		return nil, ErrUnsupported
	}
	switch verb {
	case "get":
		v, err := a.dev.Wiper()
		if err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return a.value(v), nil

	case "set", "set_nv":
		var p struct {
			Value *uint16 `json:"value"`
		}
		if err := decodeJSON(payload, &p); err != nil || p.Value == nil {
			return nil, errcode.InvalidPayload
		}
		set := a.dev.SetWiper
		if verb == "set_nv" {
			set = a.dev.SetNVWiper
		}
		if err := set(*p.Value); err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return types.PotSet{Value: *p.Value}, nil

	case "inc", "dec":
		var p types.PotStep
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		if p.Steps == 0 {
			p.Steps = 1
		}
		step := a.dev.Increment
		if verb == "dec" {
			step = a.dev.Decrement
		}
		for i := uint16(0); i < p.Steps; i++ {
			if err := step(); err != nil {
				return nil, errcode.Wrap(verb, err)
			}
		}
		return p, nil

	case "set_ohm":
		var p types.PotSetOhm
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		if p.TotalOhm == 0 {
			p.TotalOhm = a.params.TotalOhm
		}
		if p.Bits == 0 {
			p.Bits = a.params.Bits
		}
		if p.Bits > maxPotBits {
			return nil, errcode.InvalidPayload
		}
		code, err := mcp4551.WiperCode(p.Ohm, p.TotalOhm, p.Bits)
		if err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		if err := a.dev.SetWiper(code); err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return types.PotSet{Value: code}, nil

	case "set_flag":
		var p types.PotFlag
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		flag, ok := mcp4551.ParseTCONFlag(p.Flag)
		if !ok {
			return nil, errcode.InvalidPayload
		}
		if err := a.dev.SetFlag(flag, p.On); err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return p, nil

	case "tcon":
		// No payload reads; {"tcon": v} writes.
		var p struct {
			TCON *uint16 `json:"tcon"`
		}
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		if p.TCON != nil {
			if err := a.dev.SetTCON(mcp4551.TCONBits(*p.TCON)); err != nil {
				return nil, errcode.Wrap(verb, err)
			}
			return types.PotTCON{TCON: *p.TCON}, nil
		}
		v, err := a.dev.TCON()
		if err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return types.PotTCON{TCON: uint16(v)}, nil

	case "ping":
		if err := a.dev.TestConnection(); err != nil {
			return nil, errcode.Wrap(verb, err)
		}
		return map[string]any{"ack": true}, nil
	}
	return nil, ErrUnsupported
}
