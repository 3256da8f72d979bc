package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// TransportConfig selects and parameterises the byte stream.
type TransportConfig struct {
	// "uart" or a name added with RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig is handed to UARTDial untouched.
type UARTConfig struct {
	ID    string `json:"id,omitempty"`  // "uart0" | "uart1"
	Dev   string `json:"dev,omitempty"` // host tty path
	Baud  int    `json:"baud"`
	RxPin int    `json:"rx_pin"`
	TxPin int    `json:"tx_pin"`
}

// Dialer opens a fresh stream for one link attempt.
type Dialer func(ctx context.Context, cfg TransportConfig) (io.ReadWriteCloser, error)

// UARTDial is set by platform code before Start.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

var (
	ErrNoUARTDial   = errors.New("bridge: no uart dialler installed")
	ErrNoUARTConfig = errors.New("bridge: uart transport needs a uart section")
)

var (
	transportsMu sync.RWMutex
	transports   = map[string]Dialer{"uart": dialUART}
)

// RegisterTransport adds or replaces a named transport.
func RegisterTransport(name string, d Dialer) {
	transportsMu.Lock()
	transports[name] = d
	transportsMu.Unlock()
}

func lookupTransport(cfg TransportConfig) (Dialer, error) {
	transportsMu.RLock()
	d, ok := transports[cfg.Type]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bridge: unknown transport %q", cfg.Type)
	}
	if cfg.Type == "uart" && cfg.UART == nil {
		return nil, ErrNoUARTConfig
	}
	return d, nil
}

func dialUART(ctx context.Context, cfg TransportConfig) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, ErrNoUARTDial
	}
	return UARTDial(ctx, *cfg.UART)
}
