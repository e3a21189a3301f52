// Package bus implements the mailbox and stream transport shared by the
// asset actors on top of Redis lists, streams and pub/sub channels.
package bus

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Message is one envelope exchanged on a mailbox or a stream.
type Message struct {
	Sender  string            `cbor:"1,keyasint"`
	Address string            `cbor:"2,keyasint"`
	Subject string            `cbor:"3,keyasint"`
	Tracker string            `cbor:"4,keyasint,omitempty"`
	Frames  [][]byte          `cbor:"5,keyasint"`
	Meta    map[string]string `cbor:"6,keyasint,omitempty"`
}

// Well known meta keys.
const (
	MetaStatus = "status"
)

// NewMessage builds a message out of string frames.
func NewMessage(subject string, frames ...string) *Message {
	return &Message{Subject: subject, Frames: StringFrames(frames...)}
}

// StringFrames converts strings into frames.
func StringFrames(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// Len returns the number of frames.
func (m *Message) Len() int { return len(m.Frames) }

// Frame returns frame i as a string, or "" when absent.
func (m *Message) Frame(i int) string {
	if i < 0 || i >= len(m.Frames) {
		return ""
	}
	return string(m.Frames[i])
}

// Strings returns every frame as a string.
func (m *Message) Strings() []string {
	out := make([]string, len(m.Frames))
	for i, f := range m.Frames {
		out[i] = string(f)
	}
	return out
}

// Pop removes and returns the first frame as a string.
func (m *Message) Pop() (string, bool) {
	if len(m.Frames) == 0 {
		return "", false
	}
	f := m.Frames[0]
	m.Frames = m.Frames[1:]
	return string(f), true
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bus: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bus: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes m with deterministic CBOR.
func Marshal(m *Message) ([]byte, error) {
	return encMode.Marshal(m)
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
