package mcp4551

import (
	"errors"
	"testing"
)

// Compile-time check.
var _ Wire = (*fakeWire)(nil)

var errNack = errors.New("nack")

type txn struct {
	addr uint16
	data []byte
}

// fakeWire records write transactions and emulates a single-register-file
// MCP4551: writes land in regs, a read command selects the register that the
// next RequestFrom returns.
type fakeWire struct {
	open  bool
	cur   txn
	txns  []txn
	reads int

	regs    map[Register]uint16
	readSel Register

	nackAt    int // fail the Nth EndTransmission (1-based); 0 = never
	ends      int
	shortRead int // if >=0, RequestFrom returns this count instead of len(p)
	readErr   error
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		regs: map[Register]uint16{
			RegWiper0: WiperMid,
			RegTCON:   uint16(TCONAll),
		},
		shortRead: -1,
	}
}

func (f *fakeWire) BeginTransmission(addr uint16) {
	f.open = true
	f.cur = txn{addr: addr}
}

func (f *fakeWire) WriteByte(c byte) error {
	if !f.open {
		return errors.New("write outside transaction")
	}
	f.cur.data = append(f.cur.data, c)
	return nil
}

func (f *fakeWire) EndTransmission() error {
	f.open = false
	f.ends++
	f.txns = append(f.txns, f.cur)
	if f.nackAt != 0 && f.ends == f.nackAt {
		return errNack
	}
	p := f.cur.data
	switch {
	case len(p) == 2 && Command(p[0]&0x0C) == CmdWrite:
		f.regs[Register(p[0]&0xF0)] = uint16(p[0]&dataBit8)<<8 | uint16(p[1])
	case len(p) == 1 && Command(p[0]&0x0C) == CmdRead:
		f.readSel = Register(p[0] & 0xF0)
	case len(p) == 1 && Command(p[0]) == CmdIncrement:
		if f.regs[RegWiper0] < WiperA {
			f.regs[RegWiper0]++
		}
	case len(p) == 1 && Command(p[0]) == CmdDecrement:
		if f.regs[RegWiper0] > WiperB {
			f.regs[RegWiper0]--
		}
	}
	return nil
}

func (f *fakeWire) RequestFrom(addr uint16, p []byte) (int, error) {
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	v := f.regs[f.readSel]
	if len(p) > 0 {
		p[0] = byte(v >> 8)
	}
	if len(p) > 1 {
		p[1] = byte(v)
	}
	if f.shortRead >= 0 {
		return f.shortRead, nil
	}
	return len(p), nil
}

func (f *fakeWire) last() txn { return f.txns[len(f.txns)-1] }

func TestNew_Addresses(t *testing.T) {
	w := newFakeWire()
	if got := New(w, Config{}).Address(); got != AddressDefault {
		t.Fatalf("default address = %#x, want %#x", got, AddressDefault)
	}
	if got := New(w, Config{Address: 0x2F}).Address(); got != 0x2F {
		t.Fatalf("explicit address = %#x, want 0x2f", got)
	}
	if got := New(w, Config{Address: AddressFromPins(PinGND, PinVCC, PinVCC)}).Address(); got != AddressA0GND {
		t.Fatalf("pin address = %#x, want %#x", got, AddressA0GND)
	}
	if len(w.txns) != 0 {
		t.Fatalf("New touched the bus: %v", w.txns)
	}
}

func TestNew_NonZeroAddressStoredAsGiven(t *testing.T) {
	w := newFakeWire()
	for a := uint16(1); a < 0x80; a++ {
		if got := New(w, Config{Address: a}).Address(); got != a {
			t.Fatalf("address %#x stored as %#x", a, got)
		}
	}
	if len(w.txns) != 0 {
		t.Fatalf("construction touched the bus: %+v", w.txns)
	}
}

func TestAddressFromPins_TruthTable(t *testing.T) {
	for _, row := range PinTable {
		if got := AddressFromPins(row.A0, row.A1, row.A2); got != row.Address {
			t.Fatalf("a0=%s a1=%s a2=%s: got %#x want %#x", row.A0, row.A1, row.A2, got, row.Address)
		}
	}
	// A1 and A2 share a weight: these two straps alias.
	if AddressFromPins(PinVCC, PinGND, PinVCC) != AddressFromPins(PinVCC, PinVCC, PinGND) {
		t.Fatal("expected A1 and A2 to carry the same weight")
	}
	if got := AddressFromPins(PinVCC, PinVCC, PinVCC); got != AddressA0VCC {
		t.Fatalf("all VCC = %#x, want %#x", got, AddressA0VCC)
	}
}

func TestTestConnection_EmptyTransaction(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	if err := d.TestConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.txns) != 1 || len(w.txns[0].data) != 0 || w.txns[0].addr != AddressDefault {
		t.Fatalf("unexpected transactions: %+v", w.txns)
	}

	w.nackAt = 2
	if err := d.TestConnection(); !errors.Is(err, errNack) {
		t.Fatalf("expected nack, got %v", err)
	}
}

func TestSetRegister_Framing(t *testing.T) {
	cases := []struct {
		reg   Register
		value uint16
		want  [2]byte
	}{
		{RegWiper0, 0x000, [2]byte{0x00, 0x00}},
		{RegWiper0, 0x080, [2]byte{0x00, 0x80}},
		{RegWiper0, 0x100, [2]byte{0x01, 0x00}},
		{RegNVWiper0, 0x1AB, [2]byte{0x21, 0xAB}},
		{RegTCON, 0x1FF, [2]byte{0x41, 0xFF}},
		{RegWiper1, 0x3FF, [2]byte{0x11, 0xFF}}, // bit 9 is dropped on the wire
	}
	for _, c := range cases {
		w := newFakeWire()
		d := New(w, Config{})
		if err := d.SetRegister(c.reg, c.value); err != nil {
			t.Fatalf("SetRegister(%#x,%#x): %v", c.reg, c.value, err)
		}
		got := w.last().data
		if len(got) != 2 || got[0] != c.want[0] || got[1] != c.want[1] {
			t.Fatalf("SetRegister(%#x,%#x) wrote % x, want % x", c.reg, c.value, got, c.want[:])
		}
	}
}

func TestSetRegister_NackReported(t *testing.T) {
	w := newFakeWire()
	w.nackAt = 1
	if err := New(w, Config{}).SetWiper(0x40); !errors.Is(err, errNack) {
		t.Fatalf("expected nack, got %v", err)
	}
	if len(w.txns) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(w.txns))
	}
}

func TestGetRegister_BigEndian(t *testing.T) {
	w := newFakeWire()
	w.regs[RegNVWiper0] = 0x1C3
	d := New(w, Config{})
	v, err := d.NVWiper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x1C3 {
		t.Fatalf("got %#x want 0x1c3", v)
	}
	if got := w.last().data; len(got) != 1 || got[0] != byte(RegNVWiper0)|byte(CmdRead) {
		t.Fatalf("read command = % x", got)
	}
}

func TestGetRegister_ShortRead(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		w := newFakeWire()
		w.regs[RegWiper0] = 0x42
		w.shortRead = n
		if _, err := New(w, Config{}).Wiper(); !errors.Is(err, ErrShortRead) {
			t.Fatalf("count %d: expected ErrShortRead, got %v", n, err)
		}
	}
	w := newFakeWire()
	w.readErr = errNack
	if _, err := New(w, Config{}).Wiper(); !errors.Is(err, errNack) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGetRegister_WritePhaseFailureSkipsRead(t *testing.T) {
	w := newFakeWire()
	w.nackAt = 1
	if _, err := New(w, Config{}).Wiper(); !errors.Is(err, errNack) {
		t.Fatalf("expected nack, got %v", err)
	}
	if w.reads != 0 {
		t.Fatalf("read phase ran after failed write phase")
	}
}

func TestWiper_RoundTrip(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	for v := uint16(WiperB); v <= WiperA; v++ {
		if err := d.SetWiper(v); err != nil {
			t.Fatalf("SetWiper(%#x): %v", v, err)
		}
		got, err := d.Wiper()
		if err != nil {
			t.Fatalf("Wiper(): %v", err)
		}
		if got != v {
			t.Fatalf("round trip %#x -> %#x", v, got)
		}
	}
}

func TestWiperN_Dual(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	if err := d.SetWiperN(1, 0x33); err != nil {
		t.Fatal(err)
	}
	if got := w.last().data[0]; got != byte(RegWiper1) {
		t.Fatalf("command byte = %#x, want %#x", got, RegWiper1)
	}
	v, err := d.WiperN(1)
	if err != nil || v != 0x33 {
		t.Fatalf("WiperN(1) = %#x, %v", v, err)
	}
}

func TestIncDec_SingleByte(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	if err := d.Increment(); err != nil {
		t.Fatal(err)
	}
	if got := w.last().data; len(got) != 1 || got[0] != 0x04 {
		t.Fatalf("increment wrote % x, want 04", got)
	}
	if err := d.Decrement(); err != nil {
		t.Fatal(err)
	}
	if got := w.last().data; len(got) != 1 || got[0] != 0x08 {
		t.Fatalf("decrement wrote % x, want 08", got)
	}
	if len(w.txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(w.txns))
	}
}

func TestIncrement_DoesNotClamp(t *testing.T) {
	w := newFakeWire()
	w.regs[RegWiper0] = WiperA
	d := New(w, Config{})
	for i := 0; i < 3; i++ {
		if err := d.Increment(); err != nil {
			t.Fatal(err)
		}
	}
	// The driver still sent every command; saturation is the part's job.
	if len(w.txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(w.txns))
	}
	if v, _ := d.Wiper(); v != WiperA {
		t.Fatalf("wiper = %#x, want saturated %#x", v, WiperA)
	}
}

func TestWiperCode(t *testing.T) {
	cases := []struct {
		target, total uint32
		bits          uint8
		want          uint16
	}{
		{0, 10_000, 8, 0},
		{10_000, 10_000, 8, 0x100},
		{5_000, 10_000, 8, 0x080},
		{2_500, 10_000, 8, 0x040},
		{1, 10_000, 8, 0},
		{39, 10_000, 8, 0},
		{40, 10_000, 8, 1},
		{7_777, 10_000, 7, 99}, // 995456/10000
		{50_000, 50_000, 7, 0x80},
	}
	for _, c := range cases {
		got, err := WiperCode(c.target, c.total, c.bits)
		if err != nil {
			t.Fatalf("WiperCode(%d,%d,%d): %v", c.target, c.total, c.bits, err)
		}
		if got != c.want {
			t.Fatalf("WiperCode(%d,%d,%d) = %d want %d", c.target, c.total, c.bits, got, c.want)
		}
	}
}

func TestSetOhm_ForwardsCode(t *testing.T) {
	for target := uint32(0); target <= 10_000; target += 137 {
		w := newFakeWire()
		d := New(w, Config{})
		if err := d.SetOhm(target, 10_000, 8); err != nil {
			t.Fatalf("SetOhm(%d): %v", target, err)
		}
		want := uint16(uint64(target) * 256 / 10_000)
		got := w.last().data
		if len(got) != 2 || got[0] != byte(want>>8) || got[1] != byte(want) {
			t.Fatalf("SetOhm(%d) wrote % x, want code %#x", target, got, want)
		}
	}
}

func TestSetOhm_RejectsWithoutTransaction(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	if err := d.SetOhm(100, 0, 8); !errors.Is(err, ErrZeroTotal) {
		t.Fatalf("expected ErrZeroTotal, got %v", err)
	}
	if err := d.SetOhm(10_001, 10_000, 8); !errors.Is(err, ErrRatioRange) {
		t.Fatalf("expected ErrRatioRange, got %v", err)
	}
	if len(w.txns) != 0 {
		t.Fatalf("rejected input reached the bus: %+v", w.txns)
	}
}

func TestSetFlag_MaskedToggle(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})

	// on: keeps only the flag bits that were set.
	if err := d.SetFlag(TCONA, true); err != nil {
		t.Fatal(err)
	}
	if got := w.regs[RegTCON]; got != uint16(TCONA) {
		t.Fatalf("TCON after set = %#x, want %#x", got, TCONA)
	}

	// off: (0x004 & 0x004) - 0x004 = 0.
	if err := d.SetFlag(TCONA, false); err != nil {
		t.Fatal(err)
	}
	if got := w.regs[RegTCON]; got != 0 {
		t.Fatalf("TCON after clear = %#x, want 0", got)
	}

	// off while already clear underflows; the 9 bits on the wire are 0x1FC.
	if err := d.SetFlag(TCONA, false); err != nil {
		t.Fatal(err)
	}
	if got := w.regs[RegTCON]; got != 0x1FC {
		t.Fatalf("TCON after double clear = %#x, want 0x1fc", got)
	}
}

func TestSetFlag_ReadFailureShortCircuits(t *testing.T) {
	w := newFakeWire()
	w.shortRead = 1
	d := New(w, Config{})
	before := len(w.txns)
	if err := d.SetFlag(TCONW, true); !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
	// Only the read command went out.
	if len(w.txns) != before+1 {
		t.Fatalf("write-back issued after failed read: %+v", w.txns)
	}
}

func TestUpdateTCON(t *testing.T) {
	w := newFakeWire()
	d := New(w, Config{})
	if err := d.UpdateTCON(0, TCONA|TCONGeneralCall); err != nil {
		t.Fatal(err)
	}
	v, err := d.TCON()
	if err != nil {
		t.Fatal(err)
	}
	if v != TCONAll&^(TCONA|TCONGeneralCall) {
		t.Fatalf("TCON = %#x", v)
	}
	if v.Has(TCONA) || !v.Has(TCONB|TCONW) {
		t.Fatalf("unexpected flags in %#x", v)
	}
}

func TestNewConfigured_AppliesPowerOnState(t *testing.T) {
	w := newFakeWire()
	w.regs[RegTCON] = 0
	w.regs[RegWiper0] = 0
	st := DefaultPowerOnState()
	d, err := NewConfigured(w, Config{PowerOn: &st})
	if err != nil {
		t.Fatal(err)
	}
	if w.regs[RegTCON] != uint16(TCONAll) || w.regs[RegWiper0] != WiperMid {
		t.Fatalf("state not applied: %v", w.regs)
	}
	if len(w.txns) != 2 || w.txns[0].data[0]&0xF0 != byte(RegTCON) {
		t.Fatalf("expected TCON then wiper, got %+v", w.txns)
	}
	if d.Address() != AddressDefault {
		t.Fatalf("address = %#x", d.Address())
	}

	// Without a power-on state nothing is written.
	w2 := newFakeWire()
	if _, err := NewConfigured(w2, Config{}); err != nil || len(w2.txns) != 0 {
		t.Fatalf("unexpected traffic: %+v, %v", w2.txns, err)
	}
}

func TestNewConfigured_Error(t *testing.T) {
	w := newFakeWire()
	w.nackAt = 1
	st := DefaultPowerOnState()
	if _, err := NewConfigured(w, Config{PowerOn: &st}); !errors.Is(err, errNack) {
		t.Fatalf("expected nack, got %v", err)
	}
}
