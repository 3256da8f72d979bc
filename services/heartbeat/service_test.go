package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/ftrias/MCP4551/bus"
	"github.com/ftrias/MCP4551/types"
)

func TestIntervalOf(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": float64(5)}, 5 * time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": float64(0)}, 0, false},
		{map[string]any{"interval": "5"}, 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := intervalOf(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("intervalOf(%v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestService_ReportsHALLevelAndWipers(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("heartbeat")
	pub := b.NewConnection("hal")

	got := make(chan Status, 16)
	s := &Service{Interval: 20 * time.Millisecond, Report: func(st Status) { got <- st }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Retained so the service sees them whenever it subscribes.
	pub.Publish(pub.NewMessage(bus.T("hal", "state"), types.HALState{Level: "up"}, true))
	pub.Publish(pub.NewMessage(bus.T("hal", "capability", "potentiometer", 0, "value"),
		types.PotValue{Wiper: 0x80, OhmWB: 5000}, true))

	_ = s.Start(ctx, conn)

	deadline := time.After(time.Second)
	for {
		select {
		case st := <-got:
			if st.HALLevel == "up" && st.Wipers[0].Wiper == 0x80 && st.Wipers[0].OhmWB == 5000 {
				return
			}
		case <-deadline:
			t.Fatal("no report with hal level and wiper")
		}
	}
}

func TestService_DefaultInterval(t *testing.T) {
	s := &Service{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.serviceLoop(ctx, bus.NewBus(4).NewConnection("heartbeat"))
		close(done)
	}()
	cancel()
	<-done
	if s.Interval != DefaultInterval {
		t.Fatalf("interval = %v, want %v", s.Interval, DefaultInterval)
	}
}
