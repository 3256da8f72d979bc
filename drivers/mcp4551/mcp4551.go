// Package mcp4551 provides a driver for the Microchip MCP455x/MCP465x
// digital potentiometers (7/8-bit, volatile and non-volatile wipers).
//
//	d := mcp4551.New(w, mcp4551.Config{})   // no bus traffic
//	err := d.SetWiper(mcp4551.WiperMid)
//	code, err := d.Wiper()
//
// Every call is one bus transaction (a read is a write transaction followed
// by a 2-byte request). The driver keeps no lock and no cache: handles that
// share a bus must be serialised by the caller, e.g. with twowire.Locked or
// a single bus worker.
//
// NOTE: reads are two separate transactions (no repeated start), matching
// the transport's begin/end + request shape.
package mcp4551

import (
	"errors"

	"github.com/ftrias/MCP4551/x/mathx"
)

// Wire is the transaction-style two-wire transport the driver consumes.
// twowire.Adapter provides it over drivers.I2C.
type Wire interface {
	BeginTransmission(addr uint16)
	WriteByte(c byte) error
	// EndTransmission sends the queued bytes and reports nil only on a
	// clean ACK/stop.
	EndTransmission() error
	// RequestFrom reads up to len(p) bytes and returns the count received.
	RequestFrom(addr uint16, p []byte) (int, error)
}

// Errors returned by the driver. Bus errors are returned as-is.
var (
	ErrShortRead  = errors.New("mcp4551: short read")
	ErrZeroTotal  = errors.New("mcp4551: total resistance is zero")
	ErrRatioRange = errors.New("mcp4551: target exceeds total resistance")
)

// PowerOnState is the register state the part assumes after power-up.
type PowerOnState struct {
	TCON  TCONBits
	Wiper uint16
}

// DefaultPowerOnState is the datasheet POR state: all terminals connected,
// general call enabled, wiper at mid-scale.
func DefaultPowerOnState() PowerOnState {
	return PowerOnState{TCON: TCONAll, Wiper: WiperMid}
}

// Config controls construction. All fields are optional.
type Config struct {
	// Address is stored as given. Zero is the I2C general-call address,
	// never a device address, so it selects AddressDefault instead. Use
	// AddressFromPins for strapped parts.
	Address uint16
	// PowerOn, when set, is written by Configure (TCON first, then wiper 0).
	// A reset does not necessarily restart the part, so asserting the state
	// explicitly is the only way to know it.
	PowerOn *PowerOnState
}

// Device is a handle to one potentiometer on a bus.
type Device struct {
	bus     Wire
	addr    uint16
	powerOn *PowerOnState

	w [2]byte
	r [2]byte
}

// New constructs a Device. It does not touch the bus.
func New(bus Wire, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	d := &Device{bus: bus, addr: addr}
	if cfg.PowerOn != nil {
		st := *cfg.PowerOn
		d.powerOn = &st
	}
	return d
}

// NewConfigured constructs a Device and applies cfg.PowerOn, if any.
func NewConfigured(bus Wire, cfg Config) (*Device, error) {
	d := New(bus, cfg)
	if err := d.Configure(); err != nil {
		return nil, err
	}
	return d, nil
}

// Configure writes the configured power-on state. Without one it is a no-op.
func (d *Device) Configure() error {
	if d.powerOn == nil {
		return nil
	}
	if err := d.SetTCON(d.powerOn.TCON); err != nil {
		return err
	}
	return d.SetWiper(d.powerOn.Wiper)
}

// Address returns the 7-bit bus address.
func (d *Device) Address() uint16 { return d.addr }

// TestConnection opens and closes an empty transaction addressed to the
// part. nil means it ACKed.
func (d *Device) TestConnection() error {
	d.bus.BeginTransmission(d.addr)
	return d.bus.EndTransmission()
}

// SetRegister writes a 9-bit value: [reg|write|D8] [D7..D0]. Values wider
// than 9 bits lose their upper bits on the wire.
func (d *Device) SetRegister(reg Register, value uint16) error {
	d.w[0] = byte(reg) | byte(CmdWrite) | byte(value>>8)&dataBit8
	d.w[1] = byte(value)
	return d.send(d.w[:2])
}

// GetRegister reads a register: write [reg|read], then request 2 bytes,
// big-endian. Any count other than 2 is ErrShortRead.
func (d *Device) GetRegister(reg Register) (uint16, error) {
	d.w[0] = byte(reg) | byte(CmdRead)
	if err := d.send(d.w[:1]); err != nil {
		return 0, err
	}
	n, err := d.bus.RequestFrom(d.addr, d.r[:2])
	if n != 2 {
		if err != nil {
			return 0, err
		}
		return 0, ErrShortRead
	}
	if err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

// Increment moves wiper 0 one step toward terminal A. The part stops at
// full scale on its own.
func (d *Device) Increment() error { return d.command(CmdIncrement) }

// Decrement moves wiper 0 one step toward terminal B, stopping at zero.
func (d *Device) Decrement() error { return d.command(CmdDecrement) }

func (d *Device) command(c Command) error {
	d.w[0] = byte(c)
	return d.send(d.w[:1])
}

// send frames p as one transaction. The transaction is always closed so a
// locking transport is released even when a byte write fails.
func (d *Device) send(p []byte) error {
	d.bus.BeginTransmission(d.addr)
	for _, c := range p {
		if err := d.bus.WriteByte(c); err != nil {
			_ = d.bus.EndTransmission()
			return err
		}
	}
	return d.bus.EndTransmission()
}

// Wipers.

func (d *Device) SetWiper(value uint16) error   { return d.SetRegister(RegWiper0, value) }
func (d *Device) SetNVWiper(value uint16) error { return d.SetRegister(RegNVWiper0, value) }
func (d *Device) Wiper() (uint16, error)        { return d.GetRegister(RegWiper0) }
func (d *Device) NVWiper() (uint16, error)      { return d.GetRegister(RegNVWiper0) }

// SetWiperN and WiperN address wiper 0 or 1 on dual parts (MCP4552/4652).
func (d *Device) SetWiperN(ch int, value uint16) error { return d.SetRegister(wiperReg(ch), value) }
func (d *Device) WiperN(ch int) (uint16, error)        { return d.GetRegister(wiperReg(ch)) }

func wiperReg(ch int) Register {
	if ch == 1 {
		return RegWiper1
	}
	return RegWiper0
}

// WiperCode converts a resistance ratio to a wiper code:
//
//	floor(target * 2^bits / total)
//
// bits is the resolution of the part (8 for MCP4551, 7 for MCP4531). The
// result is not checked against the register width.
func WiperCode(target, total uint32, bits uint8) (uint16, error) {
	if total == 0 {
		return 0, ErrZeroTotal
	}
	if target > total {
		return 0, ErrRatioRange
	}
	return uint16(mathx.ScaleFloor(uint64(target), uint64(total), bits)), nil
}

// SetOhm sets wiper 0 so that R_WB approximates target out of total. On a
// rejected ratio no transaction is issued.
func (d *Device) SetOhm(target, total uint32, bits uint8) error {
	code, err := WiperCode(target, total, bits)
	if err != nil {
		return err
	}
	return d.SetWiper(code)
}

// TCON register helpers.

func (b TCONBits) Has(flag TCONBits) bool { return b&flag == flag }

func (d *Device) TCON() (TCONBits, error) {
	v, err := d.GetRegister(RegTCON)
	return TCONBits(v), err
}

func (d *Device) SetTCON(v TCONBits) error { return d.SetRegister(RegTCON, uint16(v)) }

// SetFlag is a masked toggle over TCON: it writes back
//
//	(current & flag) - (on ? 0 : flag)
//
// so bits outside flag are cleared and clearing assumes flag was set. Use
// UpdateTCON for a plain set/clear. A failed read returns its error and
// nothing is written.
func (d *Device) SetFlag(flag TCONBits, on bool) error {
	cur, err := d.GetRegister(RegTCON)
	if err != nil {
		return err
	}
	v := cur & uint16(flag)
	if !on {
		v -= uint16(flag)
	}
	return d.SetRegister(RegTCON, v)
}

// UpdateTCON sets then clears bits with a read-modify-write.
func (d *Device) UpdateTCON(set, clear TCONBits) error {
	return d.modifyBitmaskRegister(RegTCON, uint16(set), uint16(clear))
}

func (d *Device) modifyBitmaskRegister(reg Register, set, clear uint16) error {
	current, err := d.GetRegister(reg)
	if err != nil {
		return err
	}
	return d.SetRegister(reg, (current|set)&^clear)
}
