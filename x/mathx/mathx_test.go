package mathx

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{5, 10, 0, 5}, // swapped bounds
		{20, 10, 0, 10},
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Fatalf("Clamp(%d,%d,%d)=%d want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestScaleFloor(t *testing.T) {
	cases := []struct {
		v, full uint64
		bits    uint8
		want    uint64
	}{
		{0, 10_000, 8, 0},
		{10_000, 10_000, 8, 256},
		{5_000, 10_000, 8, 128},
		{3_333, 10_000, 8, 85}, // 853248/10000 = 85.32
		{1, 3, 7, 42},          // 128/3 = 42.67
		{9_999, 10_000, 7, 127},
	}
	for _, c := range cases {
		if got := ScaleFloor(c.v, c.full, c.bits); got != c.want {
			t.Fatalf("ScaleFloor(%d,%d,%d)=%d want %d", c.v, c.full, c.bits, got, c.want)
		}
	}
}

func TestUnscaleFloor(t *testing.T) {
	if got := UnscaleFloor[uint64](128, 10_000, 8); got != 5_000 {
		t.Fatalf("mid-scale = %d want 5000", got)
	}
	if got := UnscaleFloor[uint64](256, 50_000, 8); got != 50_000 {
		t.Fatalf("full-scale = %d want 50000", got)
	}
	if got := UnscaleFloor[uint64](1, 10_000, 8); got != 39 {
		t.Fatalf("one step = %d want 39", got)
	}
}
