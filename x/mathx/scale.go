package mathx

import "golang.org/x/exp/constraints"

// ScaleFloor returns floor(v * 2^bits / full). full must be non-zero; the
// product is formed in T, so v<<bits must fit.
func ScaleFloor[T constraints.Unsigned](v, full T, bits uint8) T {
	return (v << bits) / full
}

// UnscaleFloor is the inverse mapping: floor(code * full / 2^bits).
func UnscaleFloor[T constraints.Unsigned](code, full T, bits uint8) T {
	return (code * full) >> bits
}
