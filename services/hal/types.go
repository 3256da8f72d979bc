// services/hal/types.go
package hal

import (
	"context"
	"time"

	"github.com/ftrias/MCP4551/types"

	"tinygo.org/x/drivers"
)

// Reading is one datum for one capability kind.
type Reading struct {
	Kind    types.Kind
	Payload any // JSON-serialisable payload
	TsMs    int64
}

// Sample is a batch of readings collected together.
type Sample []Reading

// CapInfo describes one capability's retained info document.
type CapInfo struct {
	Kind types.Kind
	Info types.Info
}

// Adaptor owns a concrete device/driver and exposes generic hooks.
// Adaptors must NOT spawn goroutines; the bus worker calls them one at a
// time, so they may touch the bus without locking.
type Adaptor interface {
	ID() string
	// Static capability descriptions (published as retained).
	Capabilities() []CapInfo
	// Init runs once on the bus worker before the first Collect.
	Init(ctx context.Context) error
	// Collect reads the device's current state.
	Collect(ctx context.Context) (Sample, error)
	// Control runs one driver-specific verb.
	// Return (nil, ErrUnsupported) if the verb is not implemented.
	Control(kind types.Kind, verb string, payload any) (result any, err error)
}

// WorkerConfig centralises per-bus worker limits.
type WorkerConfig struct {
	JobTimeout     time.Duration
	InputQueueSize int
}

// I2CBusFactory injects configured I2C instances by id.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}
