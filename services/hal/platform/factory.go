// Package platform opens the I2C buses named in a board plan and serves
// them to the HAL by id.
package platform

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// I2CPlan describes one bus. SDA/SCL/Hz apply on microcontrollers; Dev
// names the host bus ("" picks the first one periph finds).
type I2CPlan struct {
	ID  string
	SDA int
	SCL int
	Hz  uint32
	Dev string
}

var ErrUnknownBus = errors.New("platform: unknown i2c bus")

// Factory implements hal.I2CBusFactory.
type Factory struct {
	mu      sync.RWMutex
	buses   map[string]drivers.I2C
	closers []func() error
}

func NewFactory() *Factory {
	return &Factory{buses: map[string]drivers.I2C{}}
}

// Add registers b under id, replacing any previous bus.
func (f *Factory) Add(id string, b drivers.I2C) {
	f.mu.Lock()
	f.buses[id] = b
	f.mu.Unlock()
}

func (f *Factory) ByID(id string) (drivers.I2C, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.buses[id]
	return b, ok
}

// Close releases host buses. It is a no-op on microcontrollers.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, c := range f.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	f.closers = nil
	return first
}
