package mcp4551

// AddressPin is the strap of one address pin as the address formula counts
// it: a pin tied to ground subtracts from the base address, a pin at VCC (or
// absent on the package) does not.
type AddressPin uint8

const (
	PinVCC AddressPin = 0
	PinGND AddressPin = 1
)

func (p AddressPin) String() string {
	switch p {
	case PinVCC:
		return "vcc"
	case PinGND:
		return "gnd"
	default:
		return "invalid"
	}
}

// AddressFromPins derives the bus address from the three strap pins:
//
//	0x2F - (a2<<2) - (a1<<2) - a0
//
// A1 and A2 carry the same weight, so some strap combinations alias
// (A1=GND and A2=GND alone both give 0x2B). PinTable lists every result.
// Inputs are not validated.
func AddressFromPins(a0, a1, a2 AddressPin) uint16 {
	return uint16(addressBase) - uint16(a2)<<2 - uint16(a1)<<2 - uint16(a0)
}

// PinStrap is one row of the address strap truth table.
type PinStrap struct {
	A0, A1, A2 AddressPin
	Address    uint16
}

// PinTable is the address produced by AddressFromPins for every strap
// combination.
var PinTable = [8]PinStrap{
	{A0: PinVCC, A1: PinVCC, A2: PinVCC, Address: 0x2F},
	{A0: PinGND, A1: PinVCC, A2: PinVCC, Address: 0x2E},
	{A0: PinVCC, A1: PinGND, A2: PinVCC, Address: 0x2B},
	{A0: PinGND, A1: PinGND, A2: PinVCC, Address: 0x2A},
	{A0: PinVCC, A1: PinVCC, A2: PinGND, Address: 0x2B},
	{A0: PinGND, A1: PinVCC, A2: PinGND, Address: 0x2A},
	{A0: PinVCC, A1: PinGND, A2: PinGND, Address: 0x27},
	{A0: PinGND, A1: PinGND, A2: PinGND, Address: 0x26},
}

// ParsePin maps "gnd"/"low"/"0" and "vcc"/"high"/"1" to a pin strap.
func ParsePin(s string) (AddressPin, bool) {
	switch s {
	case "gnd", "GND", "low", "0":
		return PinGND, true
	case "vcc", "VCC", "high", "1":
		return PinVCC, true
	default:
		return 0, false
	}
}
