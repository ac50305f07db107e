package cycle

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// OverrideSnapshot is the saved copy of one switch port's override entry,
// captured before a cycle mutates the port. The payload is controller-defined
// and treated as opaque: it is copied on read and written back verbatim, so a
// restore reproduces the pre-cycle configuration byte for byte. A snapshot is
// owned by exactly one in-flight cycle run.
type OverrideSnapshot struct {
	raw []byte
}

// NewSnapshot wraps a raw override JSON object. The only structural demand is
// a numeric port_idx field, which every controller override carries.
func NewSnapshot(raw []byte) (*OverrideSnapshot, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty port override payload")
	}
	if jsoniter.Get(raw).ValueType() != jsoniter.ObjectValue {
		return nil, errors.New("port override payload is not a JSON object")
	}
	if jsoniter.Get(raw, "port_idx").ValueType() != jsoniter.NumberValue {
		return nil, errors.New("port override payload missing port_idx")
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &OverrideSnapshot{raw: cp}, nil
}

// Raw returns a copy of the underlying override payload.
func (s *OverrideSnapshot) Raw() []byte {
	cp := make([]byte, len(s.raw))
	copy(cp, s.raw)
	return cp
}

// Clone returns an independent deep copy.
func (s *OverrideSnapshot) Clone() *OverrideSnapshot {
	return &OverrideSnapshot{raw: s.Raw()}
}

// PortIdx reads the port index without interpreting anything else.
func (s *OverrideSnapshot) PortIdx() int {
	return jsoniter.Get(s.raw, "port_idx").ToInt()
}

// PoEMode peeks the saved power-feed mode. Empty when the override never
// recorded one.
func (s *OverrideSnapshot) PoEMode() string {
	v := jsoniter.Get(s.raw, "poe_mode")
	if v.ValueType() != jsoniter.StringValue {
		return ""
	}
	return v.ToString()
}

// Equal reports byte-for-byte equality with another snapshot.
func (s *OverrideSnapshot) Equal(o *OverrideSnapshot) bool {
	if o == nil {
		return false
	}
	return bytes.Equal(s.raw, o.raw)
}

func (s *OverrideSnapshot) String() string {
	return string(s.raw)
}
