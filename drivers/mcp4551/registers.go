package mcp4551

const (
	// 7-bit I2C addresses (0101_11A0b on the single address pin parts).
	AddressDefault = 0x2E // A0 to GND
	AddressA0VCC   = 0x2F
	AddressA0GND   = 0x2E

	addressBase = 0x2F
)

// Command sits in bits 3:2 of the command byte.
type Command uint8

const (
	CmdWrite     Command = 0x00
	CmdIncrement Command = 0x04
	CmdDecrement Command = 0x08
	CmdRead      Command = 0x0C
)

// Register is the memory address nibble in bits 7:4 of the command byte.
type Register uint8

const (
	RegWiper0   Register = 0x00 // volatile
	RegWiper1   Register = 0x10 // volatile, dual parts only
	RegNVWiper0 Register = 0x20
	RegNVWiper1 Register = 0x30 // dual parts only
	RegTCON     Register = 0x40
)

// TCONBits are the terminal control register bits.
type TCONBits uint16

const (
	TCONB           TCONBits = 0x001 // terminal B connected
	TCONW           TCONBits = 0x002 // wiper connected
	TCONA           TCONBits = 0x004 // terminal A connected
	TCONR0HW        TCONBits = 0x008 // ignore the SHDN pin
	TCONGeneralCall TCONBits = 0x100
	TCONAll         TCONBits = 0x1FF
)

// Common wiper codes. Codes 0x101..0x1FF lock the wiper at terminal A and
// disable increment/decrement; the driver writes them unmodified.
const (
	WiperB   = 0x000
	WiperMid = 0x080
	WiperA   = 0x100
)

// D8 of a 9-bit value rides in bit 0 of the command byte.
const dataBit8 = 0x01

// ParseTCONFlag maps a short flag name ("a", "b", "w", "r0", "gc") to its
// TCON bit.
func ParseTCONFlag(s string) (TCONBits, bool) {
	switch s {
	case "a", "A":
		return TCONA, true
	case "b", "B":
		return TCONB, true
	case "w", "W":
		return TCONW, true
	case "r0", "R0", "r0hw", "R0HW":
		return TCONR0HW, true
	case "gc", "GC":
		return TCONGeneralCall, true
	default:
		return 0, false
	}
}
