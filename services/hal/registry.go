// services/hal/registry.go
package hal

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// BuildInput is provided to a device builder. The service has already
// resolved BusRef to Bus.
type BuildInput struct {
	Ctx      context.Context
	Bus      drivers.I2C
	BusID    string
	DeviceID string
	Type     string
	Params   any
}

// BuildOutput is returned by a builder.
type BuildOutput struct {
	Adaptor     Adaptor
	SampleEvery time.Duration // 0 if the device is not polled
}

// Builder constructs an Adaptor from config.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs a builder for a given device type string.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterBuilder(deviceType string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if deviceType == "" {
		panic("hal: empty device type for builder")
	}
	if _, exists := builders[deviceType]; exists {
		panic("hal: builder already registered for type " + deviceType)
	}
	builders[deviceType] = b
}

// findBuilder looks up a registered builder by type.
func findBuilder(deviceType string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}
