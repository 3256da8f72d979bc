package bridge

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ftrias/MCP4551/bus"
)

// wireMsg is the JSON body of a pub frame. Topics travel as token arrays.
type wireMsg struct {
	Topic    []any           `json:"t,omitempty"`
	Payload  json.RawMessage `json:"p,omitempty"`
	Retained bool            `json:"r,omitempty"`
	ReplyTo  []any           `json:"rt,omitempty"`
}

// encodeMessage builds a pub body. A non-nil replyTo addresses a reply and
// replaces t.
func encodeMessage(t bus.Topic, payload any, retained bool, replyTo []any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	wm := wireMsg{Topic: []any(t), Payload: p, Retained: retained}
	if replyTo != nil {
		wm.Topic = replyTo
	}
	return json.Marshal(wm)
}

func decodeMessage(b []byte) (topic bus.Topic, payload any, replyTo []any, retained, ok bool) {
	var wm wireMsg
	if err := json.Unmarshal(b, &wm); err != nil {
		return nil, nil, nil, false, false
	}
	topic, err := topicFromWire(wm.Topic)
	if err != nil {
		return nil, nil, nil, false, false
	}
	if len(wm.Payload) > 0 {
		if err := json.Unmarshal(wm.Payload, &payload); err != nil {
			return nil, nil, nil, false, false
		}
	}
	return topic, payload, wm.ReplyTo, wm.Retained, true
}

var errBadToken = errors.New("bridge: topic token must be string or integer")

// topicFromWire turns decoded JSON tokens back into bus tokens. JSON numbers
// arrive as float64 and must be whole.
func topicFromWire(toks []any) (bus.Topic, error) {
	if len(toks) == 0 {
		return nil, errBadToken
	}
	t := make(bus.Topic, len(toks))
	for i, tok := range toks {
		switch v := tok.(type) {
		case string:
			t[i] = v
		case float64:
			if v != float64(int(v)) {
				return nil, errBadToken
			}
			t[i] = int(v)
		default:
			return nil, errBadToken
		}
	}
	return t, nil
}

// parsePatterns splits "a/+/#" into topics. Segments are string tokens, so
// integer ids are matched with "+".
func parsePatterns(ps, def []string) []bus.Topic {
	if len(ps) == 0 {
		ps = def
	}
	out := make([]bus.Topic, 0, len(ps))
	for _, p := range ps {
		var t bus.Topic
		for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
			t = append(t, seg)
		}
		out = append(out, t)
	}
	return out
}

func matchesAny(patterns []bus.Topic, t bus.Topic) bool {
	for _, p := range patterns {
		if bus.Match(p, t) {
			return true
		}
	}
	return false
}
