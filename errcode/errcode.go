package errcode

import (
	"errors"

	"github.com/ftrias/MCP4551/drivers/mcp4551"
	"github.com/ftrias/MCP4551/drivers/twowire"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	InvalidTopic      Code = "invalid_topic"
	UnknownBus        Code = "unknown_bus"
	UnknownDevice     Code = "unknown_device_type"

	// Driver-level.
	BusError     Code = "bus_error"
	ShortRead    Code = "short_read"
	InvalidRatio Code = "invalid_ratio"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and a cause behind a Code.
type E struct {
	C   Code
	Op  string
	Err error
}

func (e *E) Error() string {
	if e.Op != "" {
		return e.Op + ": " + string(e.C)
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap tags err with the Code MapDriverErr picks for it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: MapDriverErr(err), Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps potentiometer driver and transport errors to a Code.
// Anything the transport returns that is not recognised is a bus error.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, mcp4551.ErrShortRead):
		return ShortRead
	case errors.Is(err, mcp4551.ErrZeroTotal), errors.Is(err, mcp4551.ErrRatioRange):
		return InvalidRatio
	case errors.Is(err, twowire.ErrOverflow), errors.Is(err, twowire.ErrNoTransaction):
		return Error
	}
	if c := Of(err); c != Error {
		return c
	}
	return BusError
}
