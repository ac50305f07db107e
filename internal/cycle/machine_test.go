package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeGateway simulates a controller for machine tests. Link state derives
// from the writes the machine performed, so transitions behave like a real
// switch applying overrides.
type fakeGateway struct {
	mu sync.Mutex
	raw      string

	readErr    error
	disableErr error
	restoreErr error
	poeErr     error

	// stuckUp keeps the port up forever after disable; stuckDown keeps it
	// down forever after restore.
	stuckUp   bool
	stuckDown bool
	// transientReads makes the first n link reads fail.
	transientReads int

	off      bool
	polls    int
	restores [][]byte
	poeModes []string
}

func (g *fakeGateway) GetPortOverride(ctx context.Context, ref PortRef) (*OverrideSnapshot, error) {
	if g.readErr != nil {
		return nil, g.readErr
	}
	return NewSnapshot([]byte(g.raw))
}

func (g *fakeGateway) GetPortLinkState(ctx context.Context, ref PortRef) (*LinkState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	if g.transientReads > 0 {
		g.transientReads--
		return nil, errors.New("device is provisioning")
	}
	up := !g.off
	if g.stuckUp {
		up = true
	}
	if g.stuckDown {
		up = false
	}
	draw := 0.0
	if up && !g.off {
		draw = 12.5
	}
	return &LinkState{Up: up, HasPoE: true, PoEPowerDraw: draw}, nil
}

func (g *fakeGateway) SetPortOverride(ctx context.Context, ref PortRef, snap *OverrideSnapshot) error {
	if g.restoreErr != nil {
		return g.restoreErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.off = false
	g.restores = append(g.restores, snap.Raw())
	return nil
}

func (g *fakeGateway) DisablePort(ctx context.Context, ref PortRef) error {
	if g.disableErr != nil {
		return g.disableErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.off = true
	return nil
}

func (g *fakeGateway) SetPoEMode(ctx context.Context, ref PortRef, mode string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poeModes = append(g.poeModes, mode)
	if mode == PoEModeOff {
		if g.poeErr != nil {
			return g.poeErr
		}
		g.off = true
	} else {
		if g.restoreErr != nil {
			return g.restoreErr
		}
		g.off = false
	}
	return nil
}

func testTiming() Timing {
	return Timing{
		PollInterval: time.Millisecond,
		DownTimeout:  30 * time.Millisecond,
		UpTimeout:    30 * time.Millisecond,
		DefaultHold:  time.Millisecond,
	}
}

func testPort() PortRef {
	return PortRef{SiteName: "default", DeviceID: "aa:bb:cc:dd:ee:ff", PortIdx: 5}
}

func TestMachineHappyPath(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5,"name":"ap-lobby","forward":"all"}`}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded (cause %q)", res.Outcome, res.Cause)
	}
	if !res.Restored {
		t.Error("result should report the override restored")
	}
	if len(gw.restores) != 1 {
		t.Fatalf("restore writes = %d, want exactly 1", len(gw.restores))
	}
	if string(gw.restores[0]) != gw.raw {
		t.Errorf("restored payload = %s, want the saved bytes unchanged", gw.restores[0])
	}
}

func TestMachineDownTimeoutStillRestores(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5}`, stuckUp: true}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeTimeoutDown {
		t.Fatalf("outcome = %v, want timeout_down", res.Outcome)
	}
	if res.Phase != PhaseWaitingDown {
		t.Errorf("phase = %v, want waiting_down", res.Phase)
	}
	if !res.Restored || len(gw.restores) != 1 {
		t.Fatalf("override must be restored exactly once on down timeout, got %d writes", len(gw.restores))
	}
}

func TestMachineUpTimeoutReportsRestored(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5}`, stuckDown: true}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeTimeoutUp {
		t.Fatalf("outcome = %v, want timeout_up (cause %q)", res.Outcome, res.Cause)
	}
	if !res.Restored {
		t.Error("restore happened before the up wait; result must say so")
	}
	if len(gw.restores) != 1 {
		t.Fatalf("restore writes = %d, want exactly 1", len(gw.restores))
	}
}

func TestMachineDisableFailureStillRestores(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5}`, disableErr: errors.New("controller 500")}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %v, want error", res.Outcome)
	}
	if res.Phase != PhaseDisabling {
		t.Errorf("phase = %v, want disabling", res.Phase)
	}
	if !res.Restored || len(gw.restores) != 1 {
		t.Fatalf("a failed disable must still restore, got %d writes", len(gw.restores))
	}
}

func TestMachineRestoreFailureIsTerminal(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5}`, restoreErr: errors.New("controller gone")}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeError {
		t.Fatalf("outcome = %v, want error", res.Outcome)
	}
	if res.Phase != PhaseRestoring {
		t.Errorf("phase = %v, want restoring: a failed restore outranks earlier failures", res.Phase)
	}
	if res.Restored {
		t.Error("result must not claim a restore that failed")
	}
}

func TestMachineReadFailureSkipsEverything(t *testing.T) {
	gw := &fakeGateway{readErr: errors.New("controller timeout")}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeError || res.Phase != PhaseSaving {
		t.Fatalf("got %v in %v, want error in saving", res.Outcome, res.Phase)
	}
	if gw.off {
		t.Error("port must not be touched when the snapshot read fails")
	}
	if len(gw.restores) != 0 {
		t.Error("no restore attempt without a snapshot")
	}
}

func TestMachineToleratesTransientPollErrors(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5}`, transientReads: 3}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort()})

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded despite transient poll errors", res.Outcome)
	}
}

func TestMachinePoeOnlyCycle(t *testing.T) {
	gw := &fakeGateway{raw: `{"port_idx":5,"poe_mode":"auto"}`}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort(), PoeOnly: true})

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded (cause %q)", res.Outcome, res.Cause)
	}
	if len(gw.poeModes) != 2 || gw.poeModes[0] != PoEModeOff || gw.poeModes[1] != "auto" {
		t.Errorf("poe writes = %v, want [off auto]", gw.poeModes)
	}
	if len(gw.restores) != 0 {
		t.Error("a power-feed cycle must not rewrite the full override")
	}
}

func TestMachinePoeOnlyRestoreDefaultsToAuto(t *testing.T) {
	// Saved override never recorded a poe_mode; restoring "off" would
	// leave the device dark forever.
	gw := &fakeGateway{raw: `{"port_idx":5}`}
	m := NewMachine(gw, testTiming())

	res := m.Run(context.Background(), Request{Port: testPort(), PoeOnly: true})

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded", res.Outcome)
	}
	if gw.poeModes[len(gw.poeModes)-1] != PoEModeAuto {
		t.Errorf("restored poe mode = %q, want auto", gw.poeModes[len(gw.poeModes)-1])
	}
}

func TestTimingNormalized(t *testing.T) {
	var zero Timing
	n := zero.normalized()
	if n.PollInterval <= 0 || n.DownTimeout <= 0 || n.UpTimeout <= 0 || n.DefaultHold <= 0 {
		t.Fatalf("normalized timing still has unbounded waits: %+v", n)
	}
}
