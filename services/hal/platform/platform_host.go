//go:build !rp2040

package platform

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/ftrias/MCP4551/services/bridge"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// BoardID selects the embedded board config.
const BoardID = "linux"

// DefaultPlan maps i2c0 to the first bus periph registers.
var DefaultPlan = []I2CPlan{{ID: "i2c0"}}

// Open initialises periph host drivers and opens each planned bus.
func Open(plan []I2CPlan) (*Factory, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	f := NewFactory()
	for _, p := range plan {
		b, err := i2creg.Open(p.Dev)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.Add(p.ID, b)
		f.mu.Lock()
		f.closers = append(f.closers, b.Close)
		f.mu.Unlock()
	}
	return f, nil
}

// DialUART opens a serial device node (a tty already set to the right
// speed) for the bridge.
func DialUART(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
	if u.Dev == "" {
		return nil, errors.New("platform: uart dev path required on host")
	}
	return os.OpenFile(u.Dev, os.O_RDWR, 0)
}
