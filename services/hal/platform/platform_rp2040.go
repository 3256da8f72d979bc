//go:build rp2040

package platform

import (
	"context"
	"io"
	"machine"

	"github.com/ftrias/MCP4551/services/bridge"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

// BoardID selects the embedded board config.
const BoardID = "pico"

// DefaultPlan is I2C0 on GP4/GP5 at 400 kHz.
var DefaultPlan = []I2CPlan{{ID: "i2c0", SDA: 4, SCL: 5, Hz: 400_000}}

// Open configures the RP2040 I2C blocks named in plan.
func Open(plan []I2CPlan) (*Factory, error) {
	f := NewFactory()
	for _, p := range plan {
		var hw *machine.I2C
		switch p.ID {
		case "i2c0":
			hw = machine.I2C0
		case "i2c1":
			hw = machine.I2C1
		default:
			return nil, ErrUnknownBus
		}
		sda := machine.Pin(p.SDA)
		scl := machine.Pin(p.SCL)
		sda.Configure(machine.PinConfig{Mode: machine.PinI2C})
		scl.Configure(machine.PinConfig{Mode: machine.PinI2C})
		if err := hw.Configure(machine.I2CConfig{
			SCL:       scl,
			SDA:       sda,
			Frequency: p.Hz,
		}); err != nil {
			return nil, err
		}
		f.Add(p.ID, hw)
	}
	return f, nil
}

// DialUART opens a uartx port for the bridge. Closing the returned stream
// leaves the UART configured for the next dial.
func DialUART(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	if u.ID == "uart1" {
		hw = uartx.UART1
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return &uartStream{u: hw, ctx: ctx}, nil
}

type uartStream struct {
	u   *uartx.UART
	ctx context.Context
}

func (s *uartStream) Read(p []byte) (int, error)  { return s.u.RecvSomeContext(s.ctx, p) }
func (s *uartStream) Write(p []byte) (int, error) { return s.u.Write(p) }
func (s *uartStream) Close() error                { return nil }
