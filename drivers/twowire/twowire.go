// Package twowire turns Tx-style I2C buses (tinygo drivers.I2C, periph.io
// i2c.Bus) into the begin/write/end/request transport used by the chip
// drivers, and provides a lock for sharing one bus between handles.
package twowire

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// Wire is a transaction-style two-wire transport.
type Wire interface {
	BeginTransmission(addr uint16)
	WriteByte(c byte) error
	EndTransmission() error
	RequestFrom(addr uint16, p []byte) (int, error)
}

// MaxWrite is the number of bytes one transaction can queue.
const MaxWrite = 32

var (
	ErrOverflow      = errors.New("twowire: transmit buffer full")
	ErrNoTransaction = errors.New("twowire: no open transaction")
)

// Adapter implements Wire over drivers.I2C. Bytes queued between
// BeginTransmission and EndTransmission go out as a single write.
// An Adapter is not safe for concurrent use; wrap it in Locked.
type Adapter struct {
	bus  drivers.I2C
	addr uint16
	open bool
	n    int
	buf  [MaxWrite]byte
	junk [1]byte
}

func New(bus drivers.I2C) *Adapter {
	return &Adapter{bus: bus}
}

func (a *Adapter) BeginTransmission(addr uint16) {
	a.addr = addr
	a.n = 0
	a.open = true
}

func (a *Adapter) WriteByte(c byte) error {
	if !a.open {
		return ErrNoTransaction
	}
	if a.n == len(a.buf) {
		return ErrOverflow
	}
	a.buf[a.n] = c
	a.n++
	return nil
}

// EndTransmission sends the queued bytes. An empty transaction is a
// presence probe and goes out as a one-byte read, as i2cdetect does:
// periph sysfs and the rp2040 machine driver both return nil for a Tx
// with nothing to send or receive without touching the bus.
func (a *Adapter) EndTransmission() error {
	if !a.open {
		return ErrNoTransaction
	}
	a.open = false
	if a.n == 0 {
		return a.bus.Tx(a.addr, nil, a.junk[:])
	}
	return a.bus.Tx(a.addr, a.buf[:a.n], nil)
}

// RequestFrom reads len(p) bytes. drivers.I2C is all-or-nothing, so the
// count is len(p) on success and 0 on error.
func (a *Adapter) RequestFrom(addr uint16, p []byte) (int, error) {
	if err := a.bus.Tx(addr, nil, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Locked serialises bus transactions on a shared Wire. BeginTransmission
// takes the lock and EndTransmission releases it, so a caller must always
// end what it begins. RequestFrom holds the lock for its own duration.
//
// A register read is two transactions (command write, then RequestFrom)
// and another caller may run between them. Hold the lock across both with
// Do when handles can share an address.
type Locked struct {
	mu sync.Mutex
	w  Wire
}

func NewLocked(w Wire) *Locked { return &Locked{w: w} }

func (l *Locked) BeginTransmission(addr uint16) {
	l.mu.Lock()
	l.w.BeginTransmission(addr)
}

func (l *Locked) WriteByte(c byte) error { return l.w.WriteByte(c) }

func (l *Locked) EndTransmission() error {
	defer l.mu.Unlock()
	return l.w.EndTransmission()
}

func (l *Locked) RequestFrom(addr uint16, p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.RequestFrom(addr, p)
}

// Do runs fn with exclusive use of the bus. fn gets the unlocked Wire and
// may run any number of transactions on it.
func (l *Locked) Do(fn func(w Wire) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.w)
}
