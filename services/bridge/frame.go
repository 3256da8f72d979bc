package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Frames are [type][len hi][len lo][payload].
const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f

	maxFrame = 0xFFFF
)

func readFrame(r io.Reader) (typ byte, body []byte, err error) {
	var hdr [3]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	if n := binary.BigEndian.Uint16(hdr[1:]); n > 0 {
		body = make([]byte, n)
		if _, err = io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}
	return hdr[0], body, nil
}

// frameWriter serialises whole frames from the pump, the reader's pongs and
// request replies.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (fw *frameWriter) write(typ byte, body []byte) error {
	if len(body) > maxFrame {
		return fmt.Errorf("bridge: frame of %d bytes exceeds %d", len(body), maxFrame)
	}
	buf := make([]byte, 3, 3+len(body))
	buf[0] = typ
	binary.BigEndian.PutUint16(buf[1:], uint16(len(body)))
	buf = append(buf, body...)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}
