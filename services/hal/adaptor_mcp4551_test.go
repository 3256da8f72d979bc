// services/hal/adaptor_mcp4551_test.go
package hal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ftrias/MCP4551/errcode"
	"github.com/ftrias/MCP4551/types"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fakePot)(nil)

// fakePot emulates one MCP4551 behind a Tx-style bus: 9-bit registers,
// a read pointer set by the command byte, and single-byte inc/dec.
type fakePot struct {
	mu   sync.Mutex
	addr uint16
	regs map[byte]uint16
	ptr  byte
	fail error // returned by every Tx when set
	txs  int
}

func newFakePot(addr uint16) *fakePot {
	return &fakePot{
		addr: addr,
		regs: map[byte]uint16{0x00: 0x80, 0x20: 0x80, 0x40: 0x1FF},
	}
}

func (f *fakePot) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	if f.fail != nil {
		return f.fail
	}
	if addr != f.addr {
		return errors.New("i2c: nack")
	}
	if len(w) > 0 {
		reg := w[0] & 0xF0
		switch w[0] & 0x0C {
		case 0x00: // write
			if len(w) == 2 {
				f.regs[reg] = uint16(w[0]&0x01)<<8 | uint16(w[1])
			}
		case 0x04:
			if v := f.regs[reg]; v < 0x100 {
				f.regs[reg] = v + 1
			}
		case 0x08:
			if v := f.regs[reg]; v > 0 && v <= 0x100 {
				f.regs[reg] = v - 1
			}
		case 0x0C:
			f.ptr = reg
		}
	}
	if len(r) == 2 {
		v := f.regs[f.ptr]
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}

func (f *fakePot) reg(r byte) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[r]
}

func newTestAdaptor(t *testing.T, f *fakePot, params any) Adaptor {
	t.Helper()
	b, ok := findBuilder("mcp4551")
	if !ok {
		t.Fatal("mcp4551 builder not registered")
	}
	out, err := b.Build(BuildInput{
		Ctx: context.Background(), Bus: f, BusID: "i2c0",
		DeviceID: "pot0", Type: "mcp4551", Params: params,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return out.Adaptor
}

func TestMCP4551Builder_Address(t *testing.T) {
	cases := []struct {
		name   string
		params any
		want   uint16
	}{
		{"default", nil, 0x2E},
		{"explicit", map[string]any{"addr": 0x2F}, 0x2F},
		{"pins vcc", map[string]any{"pins": map[string]any{"a0": "vcc"}}, 0x2F},
		{"pins gnd", map[string]any{"pins": map[string]any{"a0": "gnd", "a1": "gnd"}}, 0x2A},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ad := newTestAdaptor(t, newFakePot(tc.want), tc.params)
			caps := ad.Capabilities()
			if len(caps) != 1 || caps[0].Kind != types.KindPotentiometer {
				t.Fatalf("caps = %+v", caps)
			}
			pi := caps[0].Info.Detail.(types.PotInfo)
			if pi.Addr != tc.want {
				t.Fatalf("addr = %#x, want %#x", pi.Addr, tc.want)
			}
			if pi.Bits != 8 || pi.Steps != 257 {
				t.Fatalf("bits/steps = %d/%d", pi.Bits, pi.Steps)
			}
		})
	}
}

func TestMCP4551Builder_BadPin(t *testing.T) {
	b, _ := findBuilder("mcp4551")
	_, err := b.Build(BuildInput{Bus: newFakePot(0x2E), Params: map[string]any{
		"pins": map[string]any{"a0": "floating"},
	}})
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v, want invalid_params", err)
	}
}

func TestMCP4551Builder_BitWidth(t *testing.T) {
	b, _ := findBuilder("mcp4551")
	_, err := b.Build(BuildInput{Bus: newFakePot(0x2E), Params: map[string]any{"bits": 16}})
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("bits=16: err = %v, want invalid_params", err)
	}
	ad := newTestAdaptor(t, newFakePot(0x2E), map[string]any{"bits": 15})
	info, ok := ad.Capabilities()[0].Info.Detail.(types.PotInfo)
	if !ok || info.Steps != 1<<15+1 {
		t.Fatalf("bits=15 info = %+v", ad.Capabilities()[0].Info)
	}
}

func TestMCP4551Adaptor_InitAppliesPowerOn(t *testing.T) {
	f := newFakePot(0x2E)
	ad := newTestAdaptor(t, f, map[string]any{
		"power_on": map[string]any{"tcon": 0x1FB, "wiper": 0x40},
	})
	if f.txs != 0 {
		t.Fatalf("build touched the bus (%d txs)", f.txs)
	}
	if err := ad.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if f.reg(0x40) != 0x1FB || f.reg(0x00) != 0x40 {
		t.Fatalf("tcon=%#x wiper=%#x", f.reg(0x40), f.reg(0x00))
	}
}

func TestMCP4551Adaptor_CollectWithOhms(t *testing.T) {
	f := newFakePot(0x2E)
	ad := newTestAdaptor(t, f, map[string]any{"total_ohm": 10000})
	s, err := ad.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	pv := s[0].Payload.(types.PotValue)
	if pv.Wiper != 0x80 || pv.OhmWB != 5000 {
		t.Fatalf("value = %+v", pv)
	}
}

func TestMCP4551Adaptor_Controls(t *testing.T) {
	f := newFakePot(0x2E)
	ad := newTestAdaptor(t, f, map[string]any{"total_ohm": 10000})
	k := types.KindPotentiometer

	if _, err := ad.Control(k, "set", map[string]any{"value": 0x10}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if f.reg(0x00) != 0x10 {
		t.Fatalf("wiper = %#x", f.reg(0x00))
	}

	if _, err := ad.Control(k, "inc", map[string]any{"steps": 3}); err != nil {
		t.Fatalf("inc: %v", err)
	}
	if _, err := ad.Control(k, "dec", nil); err != nil {
		t.Fatalf("dec: %v", err)
	}
	if f.reg(0x00) != 0x12 {
		t.Fatalf("after inc 3 / dec 1 wiper = %#x", f.reg(0x00))
	}

	res, err := ad.Control(k, "set_ohm", map[string]any{"ohm": 2500})
	if err != nil {
		t.Fatalf("set_ohm: %v", err)
	}
	if res.(types.PotSet).Value != 64 || f.reg(0x00) != 64 {
		t.Fatalf("set_ohm res=%v wiper=%d", res, f.reg(0x00))
	}

	if _, err := ad.Control(k, "set_nv", map[string]any{"value": 0x100}); err != nil {
		t.Fatalf("set_nv: %v", err)
	}
	if f.reg(0x20) != 0x100 {
		t.Fatalf("nv wiper = %#x", f.reg(0x20))
	}

	res, err = ad.Control(k, "get", nil)
	if err != nil || res.(types.PotValue).Wiper != 64 {
		t.Fatalf("get = %v, %v", res, err)
	}
}

func TestMCP4551Adaptor_TCONAndFlags(t *testing.T) {
	f := newFakePot(0x2E)
	ad := newTestAdaptor(t, f, nil)
	k := types.KindPotentiometer

	res, err := ad.Control(k, "tcon", nil)
	if err != nil || res.(types.PotTCON).TCON != 0x1FF {
		t.Fatalf("tcon read = %v, %v", res, err)
	}
	// Masked toggle: only the flag survives.
	if _, err := ad.Control(k, "set_flag", map[string]any{"flag": "w", "on": true}); err != nil {
		t.Fatalf("set_flag: %v", err)
	}
	if f.reg(0x40) != 0x002 {
		t.Fatalf("tcon = %#x, want 0x002", f.reg(0x40))
	}
	if _, err := ad.Control(k, "tcon", map[string]any{"tcon": 0x1FF}); err != nil {
		t.Fatalf("tcon write: %v", err)
	}
	if f.reg(0x40) != 0x1FF {
		t.Fatalf("tcon = %#x", f.reg(0x40))
	}
	if _, err := ad.Control(k, "set_flag", map[string]any{"flag": "x"}); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("bad flag err = %v", err)
	}
}

func TestMCP4551Adaptor_Errors(t *testing.T) {
	f := newFakePot(0x2E)
	ad := newTestAdaptor(t, f, map[string]any{"total_ohm": 10000})
	k := types.KindPotentiometer

	if _, err := ad.Control(k, "set", map[string]any{}); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("set without value: %v", err)
	}
	before := f.txs
	if _, err := ad.Control(k, "set_ohm", map[string]any{"ohm": 20000}); errcode.Of(err) != errcode.InvalidRatio {
		t.Fatalf("set_ohm over range: %v", err)
	}
	if f.txs != before {
		t.Fatal("rejected ratio reached the bus")
	}
	for _, bits := range []int{16, 64, 255} {
		_, err := ad.Control(k, "set_ohm", map[string]any{"ohm": 2500, "bits": bits})
		if errcode.Of(err) != errcode.InvalidPayload {
			t.Fatalf("set_ohm bits=%d: %v", bits, err)
		}
	}
	if f.txs != before {
		t.Fatal("rejected bit width reached the bus")
	}
	if _, err := ad.Control(k, "launch", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("unknown verb: %v", err)
	}
	if _, err := ad.Control("temperature", "get", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("wrong kind: %v", err)
	}

	f.fail = errors.New("i2c: timeout")
	if _, err := ad.Control(k, "ping", nil); errcode.Of(err) != errcode.BusError {
		t.Fatalf("ping on dead bus: %v", err)
	}
	if _, err := ad.Collect(context.Background()); errcode.Of(err) != errcode.BusError {
		t.Fatalf("collect on dead bus: %v", err)
	}
}
