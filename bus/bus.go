// Package bus is an in-process pub/sub bus with MQTT-style topics:
// "+" matches exactly one level, a trailing "#" matches zero or more.
// Retained messages are replayed to matching subscribers on Subscribe.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

const (
	wildOne  = "+"
	wildMany = "#"
)

// Token is one topic level: a string or an int.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

// T builds a Topic, panicking on token types that cannot be matched.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int:
		default:
			panic("bus: topic token must be string or int")
		}
	}
	return Topic(tokens)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

var ErrClosed = errors.New("bus: subscription closed")

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks: a full queue drops its oldest message.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
}

type Bus struct {
	mu       sync.Mutex
	root     node
	retained map[string]*Message
	qLen     int
	seq      atomic.Uint64
}

// NewBus creates a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{retained: map[string]*Message{}, qLen: queueLen}
}

func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription. A retained message
// with a nil payload clears the retained slot for its topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		key := topicKey(msg.Topic)
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	b.root.walk(msg.Topic, func(s *Subscription) { s.deliver(msg) })
}

// walk visits subscriptions whose pattern matches topic.
func (n *node) walk(topic Topic, visit func(*Subscription)) {
	if c := n.children[wildMany]; c != nil {
		for _, s := range c.subs {
			visit(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			visit(s)
		}
		return
	}
	if c := n.children[topic[0]]; c != nil {
		c.walk(topic[1:], visit)
	}
	if topic[0] != wildOne {
		if c := n.children[wildOne]; c != nil {
			c.walk(topic[1:], visit)
		}
	}
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := &b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = map[Token]*node{}
		}
		c, ok := n.children[tok]
		if !ok {
			c = &node{}
			n.children[tok] = c
		}
		n = c
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.retained {
		if Match(sub.topic, m.Topic) {
			sub.deliver(m)
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := []*node{&b.root}
	n := &b.root
	for _, tok := range sub.topic {
		c := n.children[tok]
		if c == nil {
			return false
		}
		path = append(path, c)
		n = c
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	// Prune empty branches bottom-up.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		c := path[i+1]
		if len(c.subs) != 0 || len(c.children) != 0 {
			break
		}
		delete(path[i].children, sub.topic[i])
	}
	return found
}

// Match reports whether pattern (with wildcards) matches topic.
func Match(pattern, topic Topic) bool {
	for i, p := range pattern {
		if p == wildMany {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if p != wildOne && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

func topicKey(t Topic) string {
	var k []byte
	for _, tok := range t {
		switch v := tok.(type) {
		case string:
			k = append(k, 's')
			k = append(k, v...)
		case int:
			k = append(k, 'i')
			k = appendInt(k, v)
		}
		k = append(k, 0)
	}
	return string(k)
}

func appendInt(b []byte, v int) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(b, tmp[i:]...)
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.subscribe(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	owned := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			owned = true
			break
		}
	}
	c.mu.Unlock()
	if owned && c.bus.unsubscribe(sub) {
		close(sub.ch)
	}
}

// Disconnect closes every subscription owned by the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		if c.bus.unsubscribe(s) {
			close(s.ch)
		}
	}
}

// Reply publishes payload on req.ReplyTo. Requests without one are ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}

// Request assigns msg a unique ReplyTo, subscribes to it and publishes msg.
// The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = T("_reply", c.id, int(c.bus.seq.Add(1)))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait sends msg and waits for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
