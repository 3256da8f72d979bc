// services/hal/hal.go
package hal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ftrias/MCP4551/bus"
	"github.com/ftrias/MCP4551/errcode"
	"github.com/ftrias/MCP4551/types"
	"github.com/ftrias/MCP4551/x/mathx"
)

const (
	minPeriodMS = 200
	maxPeriodMS = 3_600_000
	firstPoll   = 200 * time.Millisecond
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

func Run(ctx context.Context, conn *bus.Connection, i2cFactory I2CBusFactory) {
	h := &service{
		conn:       conn,
		i2cFactory: i2cFactory,
		workers:    map[string]BusWorker{},
		devices:    map[string]*devEntry{},
		capToDev:   map[capKey]string{},
		nextCapID:  map[types.Kind]int{},
		results:    make(chan Result, 32),
	}
	h.loop(ctx)
}

type devEntry struct {
	adaptor Adaptor
	caps    map[types.Kind]int // kind -> numeric capability id
	busID   string

	periodMS int // 0: not polled
	nextDue  time.Time
	polling  bool
}

type capKey struct {
	kind types.Kind
	id   int
}

type service struct {
	conn       *bus.Connection
	i2cFactory I2CBusFactory

	workers map[string]BusWorker
	devices map[string]*devEntry

	capToDev  map[capKey]string
	nextCapID map[types.Kind]int

	timer   *time.Timer
	results chan Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "hal"))
	ctrlSub := s.conn.Subscribe(bus.T("hal", "capability", "+", "+", "control", "+"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)

	for {
		d := time.Hour
		if next := s.earliestDue(); !next.IsZero() {
			d = max(time.Until(next), 0)
		}
		rearm(s.timer, d)

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			if msg.Payload == nil {
				continue
			}
			var cfg HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, ent := range s.devices {
				if ent.periodMS > 0 && !now.Before(ent.nextDue) {
					s.submitCollect(devID)
					s.bumpNext(ent, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// handleControl serves hal/capability/<kind>/<id:int>/control/<verb>.
func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kindStr, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kindStr == "" {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	kind := types.Kind(kindStr)
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability)
		return
	}
	ent := s.devices[devID]
	verb, _ := msg.Topic[5].(string)

	switch verb {
	case "read":
		if s.submitCollect(devID) {
			s.bumpNext(ent, time.Now())
			s.replyOK(msg, nil)
		} else {
			s.replyErr(msg, errcode.Busy)
		}
	case "set_rate":
		var p types.SetRate
		if err := decodeJSON(msg.Payload, &p); err != nil || p.PeriodMS <= 0 {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		ent.periodMS = mathx.Clamp(p.PeriodMS, minPeriodMS, maxPeriodMS)
		s.bumpNext(ent, time.Now())
		s.replyOK(msg, types.SetRate{PeriodMS: ent.periodMS})
	default:
		w := s.workers[ent.busID]
		if w == nil || !w.Submit(job{
			kind:    jobControl,
			id:      devID,
			adaptor: ent.adaptor,
			capKind: kind,
			verb:    verb,
			payload: msg.Payload,
			req:     msg,
		}) {
			s.replyErr(msg, errcode.Busy)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg HALConfig) error {
	seen := map[string]struct{}{}
	var firstErr error
	fail := func(op string, err error) {
		if firstErr == nil {
			firstErr = errcode.Wrap(op, err)
		}
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		// Skip if already present (simple idempotence for now)
		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		if d.BusRef.Type != "i2c" || d.BusRef.ID == "" {
			fail(d.ID, errcode.UnknownBus)
			continue
		}
		i2c, ok := s.i2cFactory.ByID(d.BusRef.ID)
		if !ok {
			fail(d.ID, errcode.UnknownBus)
			continue
		}
		b, ok := findBuilder(d.Type)
		if !ok {
			fail(d.ID, errcode.UnknownDevice)
			continue
		}
		out, err := b.Build(BuildInput{
			Ctx:      ctx,
			Bus:      i2c,
			BusID:    d.BusRef.ID,
			DeviceID: d.ID,
			Type:     d.Type,
			Params:   d.Params,
		})
		if err != nil {
			fail(d.ID, err)
			continue
		}

		w, ok := s.workers[d.BusRef.ID]
		if !ok {
			w = NewBusWorker(WorkerConfig{}, s.results)
			w.Start(ctx)
			s.workers[d.BusRef.ID] = w
		}

		ent := &devEntry{
			adaptor: out.Adaptor,
			busID:   d.BusRef.ID,
			caps:    map[types.Kind]int{},
		}
		now := time.Now()
		for _, ci := range out.Adaptor.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			ent.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(capTopic(ci.Kind, id, "info"), ci.Info)
			s.pubRet(capTopic(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: now.UnixMilli()})
		}
		if out.SampleEvery > 0 {
			ent.periodMS = mathx.Clamp(int(out.SampleEvery/time.Millisecond), minPeriodMS, maxPeriodMS)
			ent.nextDue = now.Add(firstPoll)
		}
		s.devices[d.ID] = ent

		w.Submit(job{kind: jobInit, id: d.ID, adaptor: out.Adaptor})
	}

	// Tidy-up: remove devices not in config
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		for kind, id := range ent.caps {
			s.pubRet(capTopic(kind, id, "info"), nil)
			s.pubRet(capTopic(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDown, TS: time.Now().UnixMilli()})
			delete(s.capToDev, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
	}

	return firstErr
}

// -----------------------------------------------------------------------------
// Results and scheduling
// -----------------------------------------------------------------------------

func (s *service) submitCollect(devID string) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	if ent.polling {
		return true
	}
	w := s.workers[ent.busID]
	if w == nil || !w.Submit(job{kind: jobCollect, id: devID, adaptor: ent.adaptor}) {
		return false
	}
	ent.polling = true
	return true
}

func (s *service) bumpNext(ent *devEntry, from time.Time) {
	if ent.periodMS <= 0 {
		return
	}
	ent.nextDue = from.Add(time.Duration(ent.periodMS) * time.Millisecond)
}

func (s *service) earliestDue() time.Time {
	var min time.Time
	for _, ent := range s.devices {
		if ent.periodMS <= 0 || ent.nextDue.IsZero() {
			continue
		}
		if min.IsZero() || ent.nextDue.Before(min) {
			min = ent.nextDue
		}
	}
	return min
}

func (s *service) handleResult(r Result) {
	ent, ok := s.devices[r.ID]

	if r.Kind == jobControl {
		if r.Err != nil {
			s.replyErr(r.Req, errcode.Of(r.Err))
		} else {
			s.replyOK(r.Req, r.Value)
		}
		if !ok {
			return
		}
		if r.Err != nil {
			if isLinkErr(r.Err) {
				s.publishDegraded(ent, r.Err)
			}
			return
		}
		if mutates(r.Verb) {
			s.submitCollect(r.ID)
		}
		return
	}
	if !ok {
		return
	}
	if r.Kind == jobCollect {
		ent.polling = false
	}
	if r.Err != nil {
		s.publishDegraded(ent, r.Err)
		return
	}

	now := time.Now().UnixMilli()
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(capTopic(rd.Kind, id, "value"), rd.Payload, false))
		s.pubRet(capTopic(rd.Kind, id, "state"),
			types.CapabilityStatus{Link: types.LinkUp, TS: now})
	}
}

func (s *service) publishDegraded(ent *devEntry, err error) {
	now := time.Now().UnixMilli()
	for kind, id := range ent.caps {
		s.pubRet(capTopic(kind, id, "state"), types.CapabilityStatus{
			Link:  types.LinkDegraded,
			Error: string(errcode.Of(err)),
			TS:    now,
		})
	}
}

// isLinkErr reports whether err came from the wire rather than the caller.
func isLinkErr(err error) bool {
	switch errcode.Of(err) {
	case errcode.BusError, errcode.ShortRead:
		return true
	}
	return false
}

func mutates(verb string) bool {
	switch verb {
	case "set", "inc", "dec", "set_ohm":
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *service) publishState(level, status string, err error) {
	st := types.HALState{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.pubRet(bus.T("hal", "state"), st)
}

func (s *service) replyOK(req *bus.Message, result any) {
	if req == nil || len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.OKReply{OK: true, Result: result}, false)
}

func (s *service) replyErr(req *bus.Message, c errcode.Code) {
	if req == nil || len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(c)}, false)
}

func capTopic(kind types.Kind, id int, rest ...bus.Token) bus.Topic {
	base := bus.Topic{"hal", "capability", string(kind), id}
	return append(base, rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

// rearm stops t, discards a pending fire and starts it again for d.
func rearm(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
