package cycle

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// PortRef addresses one physical switch port at a managed site.
type PortRef struct {
	SiteName string
	DeviceID string
	PortIdx  int
}

func (p PortRef) String() string {
	return fmt.Sprintf("%s/%s/%d", p.SiteName, p.DeviceID, p.PortIdx)
}

// LinkState is a single observation of a port's link and power delivery.
type LinkState struct {
	// Up is the controller-reported link status.
	Up bool
	// HasPoE is true when the port can deliver power at all.
	HasPoE bool
	// PoEPowerDraw is the currently delivered power in watts, 0 when
	// nothing is drawing.
	PoEPowerDraw float64
}

// Power-feed modes written through the gateway.
const (
	PoEModeAuto = "auto"
	PoEModeOff  = "off"
)

var (
	// ErrPortNotFound is returned when the device or port index does not
	// exist on the controller.
	ErrPortNotFound = errors.New("port not found on device")

	// ErrCycleInFlight is returned when a cycle is already running for the
	// requested port.
	ErrCycleInFlight = errors.New("a cycle is already in flight for this port")
)

// PortGateway is the controller surface the cycle engine drives. The engine
// never constructs vendor payloads itself; the gateway owns the wire format
// and hands back opaque snapshots the engine can write back verbatim.
type PortGateway interface {
	// GetPortOverride captures the port's current override entry. When the
	// controller has none recorded for the port, the gateway synthesizes a
	// minimal restorable one from live port state.
	GetPortOverride(ctx context.Context, ref PortRef) (*OverrideSnapshot, error)

	// GetPortLinkState reads the port's current link and power state.
	GetPortLinkState(ctx context.Context, ref PortRef) (*LinkState, error)

	// SetPortOverride writes a previously captured snapshot back unchanged.
	SetPortOverride(ctx context.Context, ref PortRef, snap *OverrideSnapshot) error

	// DisablePort writes a full administratively-disabled override for the
	// port. Partial override writes are ignored by the controller, so the
	// gateway emits the complete field set.
	DisablePort(ctx context.Context, ref PortRef) error

	// SetPoEMode switches only the port's power feed, leaving data
	// forwarding untouched.
	SetPoEMode(ctx context.Context, ref PortRef, mode string) error
}

// GatewayReadError wraps a failed controller read. A read failure before the
// snapshot is captured aborts the run with no restore attempt, since there is
// nothing to restore.
type GatewayReadError struct {
	Err error
}

func (e *GatewayReadError) Error() string {
	return "gateway read failed: " + e.Err.Error()
}

func (e *GatewayReadError) Unwrap() error { return e.Err }

// GatewayWriteError wraps a failed controller write. Op names the write that
// failed; a failed restore is the most severe case because the port may be
// left disabled.
type GatewayWriteError struct {
	Op  string
	Err error
}

func (e *GatewayWriteError) Error() string {
	return fmt.Sprintf("gateway write (%s) failed: %s", e.Op, e.Err.Error())
}

func (e *GatewayWriteError) Unwrap() error { return e.Err }
