package cycle

import (
	"bytes"
	"testing"
)

func TestNewSnapshotValidation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		okay bool
	}{
		{"full override", `{"port_idx":3,"name":"cam-3","forward":"all"}`, true},
		{"minimal", `{"port_idx":1}`, true},
		{"empty", ``, false},
		{"array", `[{"port_idx":1}]`, false},
		{"no port_idx", `{"name":"x"}`, false},
		{"string port_idx", `{"port_idx":"3"}`, false},
	}
	for _, tc := range cases {
		_, err := NewSnapshot([]byte(tc.raw))
		if (err == nil) != tc.okay {
			t.Errorf("%s: err = %v, want okay=%v", tc.name, err, tc.okay)
		}
	}
}

func TestSnapshotRawIsIndependentCopy(t *testing.T) {
	src := []byte(`{"port_idx":7,"poe_mode":"auto"}`)
	snap, err := NewSnapshot(src)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the source after capture must not leak into the snapshot.
	src[2] = 'X'
	if snap.PortIdx() != 7 {
		t.Error("snapshot shares memory with the captured payload")
	}

	out := snap.Raw()
	out[0] = 'Y'
	if !bytes.Equal(snap.Raw(), []byte(`{"port_idx":7,"poe_mode":"auto"}`)) {
		t.Error("Raw must hand out a copy, not the backing slice")
	}
}

func TestSnapshotAccessors(t *testing.T) {
	snap, err := NewSnapshot([]byte(`{"port_idx":12,"poe_mode":"off","name":"spare"}`))
	if err != nil {
		t.Fatal(err)
	}
	if snap.PortIdx() != 12 {
		t.Errorf("port idx = %d, want 12", snap.PortIdx())
	}
	if snap.PoEMode() != "off" {
		t.Errorf("poe mode = %q, want off", snap.PoEMode())
	}

	bare, _ := NewSnapshot([]byte(`{"port_idx":1}`))
	if bare.PoEMode() != "" {
		t.Errorf("poe mode = %q, want empty when never recorded", bare.PoEMode())
	}
}

func TestSnapshotCloneAndEqual(t *testing.T) {
	a, _ := NewSnapshot([]byte(`{"port_idx":2,"name":"uplink"}`))
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone must compare byte-equal")
	}
	c, _ := NewSnapshot([]byte(`{"name":"uplink","port_idx":2}`))
	if a.Equal(c) {
		t.Error("snapshots are opaque bytes; field-equivalent JSON is not equal")
	}
	if a.Equal(nil) {
		t.Error("nil is never equal")
	}
}
