// Package bridge carries bus traffic over a byte stream (a UART or USB CDC
// link) so a host can drive the HAL remotely. Outbound it forwards local
// messages matching the export patterns. Inbound it publishes remote
// messages matching the import patterns, and relays replies for remote
// requests back over the link.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ftrias/MCP4551/bus"
)

// Config is the JSON document expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Slash-separated patterns, "+" and "#" wildcards as on the bus.
	Export []string `json:"export,omitempty"` // default: hal/#
	Import []string `json:"import,omitempty"` // default: HAL control and config/hal

	RequestTimeoutMS int `json:"request_timeout_ms,omitempty"` // default 2000
	KeepaliveMS      int `json:"keepalive_ms,omitempty"`       // default 5000
}

var (
	defaultExport = []string{"hal/#"}
	defaultImport = []string{"hal/capability/+/+/control/+", "config/hal"}
)

// State is published retained on bridge/state.
type State struct {
	Level  string `json:"level"`  // idle | up | degraded | error | stopped
	Status string `json:"status"` // short machine string
	Error  string `json:"error,omitempty"`
	TsMs   int64  `json:"ts_ms"`
}

var stateTopic = bus.T("bridge", "state")

type service struct {
	conn *bus.Connection

	cancelLink context.CancelFunc
	linkDone   chan struct{}
}

// Start runs the bridge until ctx is cancelled. Each config on config/bridge
// tears down the current link and starts a new one.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &service{conn: conn}

	cfgSub := conn.Subscribe(bus.T("config", "bridge"))
	defer conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopLink()
			s.publishState("stopped", "context_cancelled", nil)
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.stopLink()
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.stopLink()
			lctx, cancel := context.WithCancel(ctx)
			s.cancelLink, s.linkDone = cancel, make(chan struct{})
			go func(done chan struct{}) {
				defer close(done)
				s.supervise(lctx, cfg)
			}(s.linkDone)
		}
	}
}

// stopLink cancels the running link and waits for it to unwind so two links
// never share the stream.
func (s *service) stopLink() {
	if s.cancelLink == nil {
		return
	}
	s.cancelLink()
	<-s.linkDone
	s.cancelLink, s.linkDone = nil, nil
}

// supervise dials and redials the transport until ctx ends or the peer
// closes the link cleanly.
func (s *service) supervise(ctx context.Context, cfg Config) {
	dial, err := lookupTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	l := newLink(s.conn, cfg)
	bo := backoff{min: 250 * time.Millisecond, max: 5 * time.Second}

	for ctx.Err() == nil {
		rwc, err := dial(ctx, cfg.Transport)
		if err != nil {
			d := bo.next()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%w (retry in %s)", err, d))
			if !sleep(ctx, d) {
				return
			}
			continue
		}

		bo.reset()
		s.publishState("up", "link_established", nil)
		err = l.serve(ctx, rwc)
		_ = rwc.Close()
		if err == nil {
			if ctx.Err() == nil {
				s.publishState("idle", "peer_closed", nil)
			}
			return
		}
		d := bo.next()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%w (retry in %s)", err, d))
		if !sleep(ctx, d) {
			return
		}
	}
}

func (s *service) publishState(level, status string, err error) {
	st := State{Level: level, Status: status, TsMs: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(stateTopic, st, true))
}

// link holds the per-config routing rules for one stream.
type link struct {
	conn       *bus.Connection
	exports    []bus.Topic
	imports    []bus.Topic
	reqTimeout time.Duration
	keepalive  time.Duration
}

func newLink(conn *bus.Connection, cfg Config) *link {
	l := &link{
		conn:       conn,
		exports:    parsePatterns(cfg.Export, defaultExport),
		imports:    parsePatterns(cfg.Import, defaultImport),
		reqTimeout: 2 * time.Second,
		keepalive:  5 * time.Second,
	}
	if cfg.RequestTimeoutMS > 0 {
		l.reqTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	}
	if cfg.KeepaliveMS > 0 {
		l.keepalive = time.Duration(cfg.KeepaliveMS) * time.Millisecond
	}
	return l
}

// serve pumps one stream until it fails (non-nil error), the peer sends
// close, or ctx ends (both nil).
func (l *link) serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &frameWriter{w: rwc}
	out := make(chan *bus.Message, 16)
	for _, p := range l.exports {
		sub := l.conn.Subscribe(p)
		defer l.conn.Unsubscribe(sub)
		go forward(ctx, sub, out)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(ctx, rwc, w) }()

	ka := time.NewTicker(l.keepalive)
	defer ka.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.write(frameClose, nil)
			return nil
		case err := <-readErr:
			return err
		case m := <-out:
			b, err := encodeMessage(m.Topic, m.Payload, m.Retained, nil)
			if err != nil {
				continue // payload not JSON-encodable
			}
			if err := w.write(framePub, b); err != nil {
				return err
			}
		case <-ka.C:
			if err := w.write(framePing, nil); err != nil {
				return err
			}
		}
	}
}

func (l *link) readLoop(ctx context.Context, r io.Reader, w *frameWriter) error {
	for {
		typ, body, err := readFrame(r)
		if err != nil {
			return err
		}
		switch typ {
		case framePing:
			if err := w.write(framePong, nil); err != nil {
				return err
			}
		case framePub:
			l.importMessage(ctx, w, body)
		case frameClose:
			return nil
		}
	}
}

// forward copies broadcast traffic from sub to out. Requests carry a
// ReplyTo and are point to point, so they stay local.
func forward(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			if len(m.ReplyTo) > 0 {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

// importMessage publishes one remote message locally. A message with a
// reply_to topic becomes a local request whose reply is sent back.
func (l *link) importMessage(ctx context.Context, w *frameWriter, body []byte) {
	topic, payload, replyTo, retained, ok := decodeMessage(body)
	if !ok || !matchesAny(l.imports, topic) {
		return
	}
	msg := l.conn.NewMessage(topic, payload, retained)
	if len(replyTo) == 0 {
		l.conn.Publish(msg)
		return
	}
	go func() {
		rctx, cancel := context.WithTimeout(ctx, l.reqTimeout)
		defer cancel()
		rep, err := l.conn.RequestWait(rctx, msg)
		if err != nil {
			return
		}
		if b, err := encodeMessage(nil, rep.Payload, false, replyTo); err == nil {
			_ = w.write(framePub, b)
		}
	}()
}

func decodeConfig(p any) (Config, error) {
	var cfg Config
	var b []byte
	switch v := p.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		return cfg, fmt.Errorf("bridge: empty config")
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return cfg, err
		}
	}
	err := json.Unmarshal(b, &cfg)
	return cfg, err
}

// backoff doubles from min up to max; reset after a successful dial.
type backoff struct {
	min, max, cur time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur == 0 {
		b.cur = b.min
	}
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

func (b *backoff) reset() { b.cur = 0 }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
