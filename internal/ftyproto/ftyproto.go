// Package ftyproto encodes and decodes the binary fty-proto messages carried
// on the asset and licensing streams.
package ftyproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Signature prefixes every fty-proto frame.
const Signature uint16 = 0xAAA0 | 9

// MessageID identifies the fty-proto message kind.
type MessageID uint8

const (
	MetricID MessageID = 1
	AlertID  MessageID = 2
	AssetID  MessageID = 3
)

func (id MessageID) String() string {
	switch id {
	case MetricID:
		return "METRIC"
	case AlertID:
		return "ALERT"
	case AssetID:
		return "ASSET"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(id))
}

// Asset operations.
const (
	OpCreate      = "create"
	OpCreateForce = "create-force"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpRetire      = "retire"
	OpInventory   = "inventory"
)

var (
	ErrMalformed    = errors.New("ftyproto: malformed message")
	ErrBadSignature = errors.New("ftyproto: invalid signature")
	ErrUnsupported  = errors.New("ftyproto: unsupported message id")
)

// Message is a decoded fty-proto ASSET or METRIC.
type Message struct {
	ID  MessageID
	Aux map[string]string

	// ASSET
	Name      string
	Operation string
	Ext       map[string]string

	// METRIC
	Time  uint64
	TTL   uint32
	Type  string
	Value string
	Unit  string
}

// NewAsset builds an ASSET message.
func NewAsset(name, operation string, aux, ext map[string]string) *Message {
	return &Message{ID: AssetID, Name: name, Operation: operation, Aux: aux, Ext: ext}
}

// NewMetric builds a METRIC message. For metrics Name holds the asset name.
func NewMetric(name, typ, value, unit string, ttl uint32, ts uint64) *Message {
	return &Message{ID: MetricID, Name: name, Type: typ, Value: value, Unit: unit, TTL: ttl, Time: ts}
}

// MetricSubject renders the stream subject of a metric, type@name.
func (m *Message) MetricSubject() string {
	return m.Type + "@" + m.Name
}

// AuxString returns aux[key] or def.
func (m *Message) AuxString(key, def string) string {
	if v, ok := m.Aux[key]; ok {
		return v
	}
	return def
}

// ExtString returns ext[key] or def.
func (m *Message) ExtString(key, def string) string {
	if v, ok := m.Ext[key]; ok {
		return v
	}
	return def
}

// Encode serializes m into one frame.
func Encode(m *Message) ([]byte, error) {
	w := &writer{}
	w.u16(Signature)
	w.u8(uint8(m.ID))
	switch m.ID {
	case AssetID:
		w.hash(m.Aux)
		if err := w.str(m.Name); err != nil {
			return nil, err
		}
		if err := w.str(m.Operation); err != nil {
			return nil, err
		}
		w.hash(m.Ext)
	case MetricID:
		w.hash(m.Aux)
		w.u64(m.Time)
		w.u32(m.TTL)
		for _, s := range []string{m.Type, m.Name, m.Value, m.Unit} {
			if err := w.str(s); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m.ID)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// Decode parses one frame produced by Encode.
func Decode(b []byte) (*Message, error) {
	r := &reader{buf: b}
	if sig := r.u16(); r.err == nil && sig != Signature {
		return nil, ErrBadSignature
	}
	m := &Message{ID: MessageID(r.u8())}
	switch m.ID {
	case AssetID:
		m.Aux = r.hash()
		m.Name = r.str()
		m.Operation = r.str()
		m.Ext = r.hash()
	case MetricID:
		m.Aux = r.hash()
		m.Time = r.u64()
		m.TTL = r.u32()
		m.Type = r.str()
		m.Name = r.str()
		m.Value = r.str()
		m.Unit = r.str()
	default:
		if r.err != nil {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m.ID)
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// IsFtyProto reports whether b starts with the fty-proto signature.
func IsFtyProto(b []byte) bool {
	return len(b) >= 3 && binary.BigEndian.Uint16(b) == Signature
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

// str writes a short string: one length byte then the bytes.
func (w *writer) str(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("ftyproto: string %q exceeds 255 bytes", s[:16])
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *writer) longstr(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// hash writes a count then key (short string) and value (long string) pairs,
// keys in lexical order.
func (w *writer) hash(h map[string]string) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		if err := w.str(k); err != nil && w.err == nil {
			w.err = err
		}
		w.longstr(h[k])
	}
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrMalformed
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) str() string {
	n := int(r.u8())
	return string(r.take(n))
}

func (r *reader) longstr() string {
	n := r.u32()
	if uint64(n) > uint64(len(r.buf)) {
		r.err = ErrMalformed
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) hash() map[string]string {
	n := r.u32()
	if r.err != nil || uint64(n) > uint64(len(r.buf)) {
		if r.err == nil {
			r.err = ErrMalformed
		}
		return nil
	}
	h := make(map[string]string, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		k := r.str()
		h[k] = r.longstr()
	}
	return h
}
