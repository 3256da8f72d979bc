package heartbeat

import (
	"context"
	"time"

	"github.com/ftrias/MCP4551/bus"
	"github.com/ftrias/MCP4551/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHALState        = bus.T("hal", "state")
	topicPotValues       = bus.T("hal", "capability", string(types.KindPotentiometer), "+", "value")
)

// DefaultInterval applies until config/heartbeat says otherwise.
const DefaultInterval = 10 * time.Second

// Status is one heartbeat's view of the system.
type Status struct {
	At       time.Time
	HALLevel string
	Wipers   map[int]types.PotValue
}

// Service prints a periodic status line with the HAL state and the last
// wiper reading of every potentiometer. The interval comes from
// config/heartbeat {"interval": seconds}.
type Service struct {
	Interval time.Duration
	// Report receives each Status. nil prints it.
	Report func(Status)

	halLevel string
	wipers   map[int]types.PotValue
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	stateSub := conn.Subscribe(topicHALState)
	valSub := conn.Subscribe(topicPotValues)
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(stateSub)
	defer conn.Unsubscribe(valSub)

	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	s.wipers = map[int]types.PotValue{}
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			s.report(t)
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.HALState); ok {
				s.halLevel = st.Level
			}
		case msg := <-valSub.Channel():
			if v, ok := msg.Payload.(types.PotValue); ok && len(msg.Topic) > 3 {
				if id, ok := msg.Topic[3].(int); ok {
					s.wipers[id] = v
				}
			}
		case msg := <-cfgSub.Channel():
			if d, ok := intervalOf(msg.Payload); ok {
				s.Interval = d
				tick.Reset(d)
				println("Info: heartbeat interval set to", int(d/time.Second), "seconds")
			}
		}
	}
}

func (s *Service) report(t time.Time) {
	st := Status{At: t, HALLevel: s.halLevel, Wipers: make(map[int]types.PotValue, len(s.wipers))}
	for id, v := range s.wipers {
		st.Wipers[id] = v
	}
	if s.Report != nil {
		s.Report(st)
		return
	}
	printStatus(st)
}

func printStatus(st Status) {
	println("Info:", st.At.Format("15:04:05"), "Heartbeat hal:", st.HALLevel)
	for id, v := range st.Wipers {
		println("Info:   pot", id, "wiper", v.Wiper, "ohm_wb", v.OhmWB)
	}
}

func intervalOf(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	iv, ok := m["interval"].(float64)
	if !ok || iv <= 0 {
		return 0, false
	}
	return time.Duration(iv * float64(time.Second)), true
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
