package ramp

import (
	"time"

	"github.com/ftrias/MCP4551/x/mathx"
)

// Step moves the output to level in [0..top].
type Step func(level uint16) error

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// Linear walks from cur to to in steps equal slices of duration, calling set
// after each tick that changes the level. The final call always lands on to
// (clamped to top) unless tick cancels first. steps==0 or duration==0 snaps.
func Linear(cur, to, top uint16, duration time.Duration, steps uint16, tick Tick, set Step) error {
	to = mathx.Clamp(to, 0, top)
	if steps == 0 || duration <= 0 {
		return set(to)
	}
	d := int32(to) - int32(cur)
	st := int32(steps)
	acc := int32(0)
	cur32 := int32(cur)
	stepDur := duration / time.Duration(steps)
	if stepDur < time.Millisecond {
		stepDur = time.Millisecond
	}

	for i := uint16(1); i < steps; i++ {
		if !tick(stepDur) {
			return nil
		}
		acc += d
		inc := acc / st
		if inc == 0 {
			continue
		}
		acc -= inc * st
		cur32 = mathx.Clamp(cur32+inc, 0, int32(top))
		if err := set(uint16(cur32)); err != nil {
			return err
		}
	}
	if !tick(stepDur) {
		return nil
	}
	return set(to)
}
