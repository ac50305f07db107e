package cycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Phase enumerates the states a cycle run moves through.
type Phase int

const (
	PhaseSaving Phase = iota
	PhaseDisabling
	PhaseWaitingDown
	PhaseHolding
	PhaseRestoring
	PhaseWaitingUp
)

func (p Phase) String() string {
	switch p {
	case PhaseSaving:
		return "saving"
	case PhaseDisabling:
		return "disabling"
	case PhaseWaitingDown:
		return "waiting_down"
	case PhaseHolding:
		return "holding"
	case PhaseRestoring:
		return "restoring"
	case PhaseWaitingUp:
		return "waiting_up"
	}
	return "unknown"
}

// Outcome is the terminal classification of a run.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeTimeoutDown
	OutcomeTimeoutUp
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeTimeoutDown:
		return "timeout_down"
	case OutcomeTimeoutUp:
		return "timeout_up"
	}
	return "error"
}

// Timing bounds every waiting state of a run. The zero value of any field is
// replaced with the matching default, so a run can never wait unbounded.
type Timing struct {
	PollInterval time.Duration
	DownTimeout  time.Duration
	UpTimeout    time.Duration
	DefaultHold  time.Duration
}

// DefaultTiming returns the stock bounds: poll every 10s, give up on the
// down transition after 3 minutes and on the up transition after 5.
func DefaultTiming() Timing {
	return Timing{
		PollInterval: 10 * time.Second,
		DownTimeout:  3 * time.Minute,
		UpTimeout:    5 * time.Minute,
		DefaultHold:  30 * time.Second,
	}
}

func (t Timing) normalized() Timing {
	def := DefaultTiming()
	if t.PollInterval <= 0 {
		t.PollInterval = def.PollInterval
	}
	if t.DownTimeout <= 0 {
		t.DownTimeout = def.DownTimeout
	}
	if t.UpTimeout <= 0 {
		t.UpTimeout = def.UpTimeout
	}
	if t.DefaultHold <= 0 {
		t.DefaultHold = def.DefaultHold
	}
	return t
}

// Request describes a single cycle for the machine to execute.
type Request struct {
	Port PortRef
	// PoeOnly cycles only the power feed, leaving data forwarding up.
	PoeOnly bool
	// Hold is how long the port stays off before restore; 0 uses the
	// configured default.
	Hold time.Duration
}

// Result is the terminal report of one run.
type Result struct {
	Outcome Outcome
	// Phase is where the run ended: the failing phase, or PhaseWaitingUp
	// on success.
	Phase Phase
	// Cause is the human-readable failure reason, empty on success.
	Cause string
	// Restored reports whether the saved override was written back.
	Restored bool
	Elapsed  time.Duration
}

// Machine executes one port cycle: save, disable, wait for down, hold,
// restore, wait for up. Once the save succeeds, the saved override is written
// back on every exit path; only a failed initial read skips the restore.
type Machine struct {
	gw     PortGateway
	timing Timing
}

func NewMachine(gw PortGateway, timing Timing) *Machine {
	return &Machine{gw: gw, timing: timing.normalized()}
}

func (m *Machine) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	hold := req.Hold
	if hold <= 0 {
		hold = m.timing.DefaultHold
	}
	log := zap.L().With(
		zap.String("port", req.Port.String()),
		zap.Bool("poe_only", req.PoeOnly),
	)

	snap, err := m.gw.GetPortOverride(ctx, req.Port)
	if err != nil {
		rerr := &GatewayReadError{Err: err}
		log.Error("port override read failed, nothing to restore", zap.Error(err))
		return Result{
			Outcome: OutcomeError,
			Phase:   PhaseSaving,
			Cause:   rerr.Error(),
			Elapsed: time.Since(start),
		}
	}
	log.Info("saved port override", zap.Int("port_idx", snap.PortIdx()))

	// failed holds the first failure seen before the restore point; the
	// restore below still runs for every one of them.
	var failed *Result

	if err := m.turnOff(ctx, req); err != nil {
		werr := &GatewayWriteError{Op: "disable", Err: err}
		log.Error("disable write failed", zap.Error(err))
		failed = &Result{Outcome: OutcomeError, Phase: PhaseDisabling, Cause: werr.Error()}
	}

	if failed == nil {
		if !m.waitForState(ctx, req, false, m.timing.DownTimeout, log) {
			log.Warn("port did not report down in time",
				zap.Duration("timeout", m.timing.DownTimeout))
			failed = &Result{
				Outcome: OutcomeTimeoutDown,
				Phase:   PhaseWaitingDown,
				Cause:   fmt.Sprintf("port did not go down within %s of disable", m.timing.DownTimeout),
			}
		}
	}

	if failed == nil {
		log.Info("holding port off", zap.Duration("hold", hold))
		m.sleep(ctx, hold)
	}

	if err := m.turnOn(ctx, req, snap); err != nil {
		werr := &GatewayWriteError{Op: "restore", Err: err}
		log.Error("restore write failed, port may be left disabled", zap.Error(err))
		return Result{
			Outcome: OutcomeError,
			Phase:   PhaseRestoring,
			Cause:   werr.Error(),
			Elapsed: time.Since(start),
		}
	}
	log.Info("restored saved override")

	if failed != nil {
		failed.Restored = true
		failed.Elapsed = time.Since(start)
		return *failed
	}

	if !m.waitForState(ctx, req, true, m.timing.UpTimeout, log) {
		log.Warn("port did not report up after restore",
			zap.Duration("timeout", m.timing.UpTimeout))
		return Result{
			Outcome:  OutcomeTimeoutUp,
			Phase:    PhaseWaitingUp,
			Cause:    fmt.Sprintf("port did not come back up within %s of restore", m.timing.UpTimeout),
			Restored: true,
			Elapsed:  time.Since(start),
		}
	}

	log.Info("port cycle complete", zap.Duration("elapsed", time.Since(start)))
	return Result{
		Outcome:  OutcomeSucceeded,
		Phase:    PhaseWaitingUp,
		Restored: true,
		Elapsed:  time.Since(start),
	}
}

func (m *Machine) turnOff(ctx context.Context, req Request) error {
	if req.PoeOnly {
		return m.gw.SetPoEMode(ctx, req.Port, PoEModeOff)
	}
	return m.gw.DisablePort(ctx, req.Port)
}

func (m *Machine) turnOn(ctx context.Context, req Request, snap *OverrideSnapshot) error {
	if req.PoeOnly {
		mode := snap.PoEMode()
		if mode == "" || mode == PoEModeOff {
			mode = PoEModeAuto
		}
		return m.gw.SetPoEMode(ctx, req.Port, mode)
	}
	return m.gw.SetPortOverride(ctx, req.Port, snap)
}

// waitForState polls until the port reaches the wanted state or the window
// elapses. Transient read errors are tolerated; switches apply overrides on
// their next inform and may briefly report stale or no state.
func (m *Machine) waitForState(ctx context.Context, req Request, up bool, window time.Duration, log *zap.Logger) bool {
	deadline := time.Now().Add(window)
	for {
		st, err := m.gw.GetPortLinkState(ctx, req.Port)
		if err != nil {
			log.Debug("link state read failed, retrying", zap.Error(err))
		} else if stateReached(req.PoeOnly, st, up) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if !m.sleep(ctx, m.timing.PollInterval) {
			return false
		}
	}
}

// stateReached decides whether a poll observation satisfies the wait. A
// power-feed-only cycle watches delivered watts, since the data link stays up
// the whole time.
func stateReached(poeOnly bool, st *LinkState, up bool) bool {
	if poeOnly {
		if up {
			return st.PoEPowerDraw > 0
		}
		return st.PoEPowerDraw <= 0
	}
	return st.Up == up
}

// sleep waits d, returning false only on process shutdown.
func (m *Machine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
