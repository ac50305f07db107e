package unifi

import (
	"context"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/netopshq/switchyard/internal/cycle"
)

var _ cycle.PortGateway = (*Client)(nil)

// disabledOverride is the full override field set that administratively
// shuts a port. The controller ignores sparse forward=disabled writes, so
// every field it expects is spelled out: security locked down, native VLAN
// cleared, tagged traffic blocked.
type disabledOverride struct {
	PortIdx                   int      `json:"port_idx"`
	SettingPreference         string   `json:"setting_preference"`
	Name                      string   `json:"name"`
	PortSecurityEnabled       bool     `json:"port_security_enabled"`
	PortSecurityMACAddress    []string `json:"port_security_mac_address"`
	NativeNetworkID           string   `json:"native_networkconf_id"`
	TaggedVLANMgmt            string   `json:"tagged_vlan_mgmt"`
	MulticastRouterNetworkIDs []string `json:"multicast_router_networkconf_ids"`
	LLDPMedEnabled            bool     `json:"lldpmed_enabled"`
	VoiceNetworkID            string   `json:"voice_networkconf_id"`
	StormCtrlBcastEnabled     bool     `json:"stormctrl_bcast_enabled"`
	StormCtrlMcastEnabled     bool     `json:"stormctrl_mcast_enabled"`
	StormCtrlUcastEnabled     bool     `json:"stormctrl_ucast_enabled"`
	EgressRateLimitEnabled    bool     `json:"egress_rate_limit_kbps_enabled"`
	Autoneg                   bool     `json:"autoneg"`
	Isolation                 bool     `json:"isolation"`
	StpPortMode               bool     `json:"stp_port_mode"`
	PortKeepaliveEnabled      bool     `json:"port_keepalive_enabled"`
	Forward                   string   `json:"forward"`
}

func newDisabledOverride(portIdx int, name string) disabledOverride {
	return disabledOverride{
		PortIdx:                   portIdx,
		SettingPreference:         "manual",
		Name:                      name,
		PortSecurityEnabled:       true,
		PortSecurityMACAddress:    []string{},
		NativeNetworkID:           "",
		TaggedVLANMgmt:            "block_all",
		MulticastRouterNetworkIDs: []string{},
		StpPortMode:               true,
		Autoneg:                   true,
		Forward:                   "disabled",
	}
}

// GetPortOverride captures the port's current override entry raw. When the
// controller never recorded one, a minimal entry is synthesized from the live
// port table so the later restore has something faithful to write back.
func (c *Client) GetPortOverride(ctx context.Context, ref cycle.PortRef) (*cycle.OverrideSnapshot, error) {
	dev, err := c.DeviceByID(ctx, ref.DeviceID)
	if err != nil {
		return nil, err
	}
	for _, raw := range dev.PortOverrides {
		if jsoniter.Get(raw, "port_idx").ToInt() == ref.PortIdx {
			return cycle.NewSnapshot(raw)
		}
	}
	port := dev.Port(ref.PortIdx)
	if port == nil {
		return nil, cycle.ErrPortNotFound
	}
	seed := map[string]interface{}{
		"port_idx":              ref.PortIdx,
		"name":                  portName(port, ref.PortIdx),
		"native_networkconf_id": port.NativeNetworkID,
		"forward":               defaultForward(port.Forward),
	}
	if port.PoeMode != "" {
		seed["poe_mode"] = port.PoeMode
	}
	raw, err := jsonx.Marshal(seed)
	if err != nil {
		return nil, errors.Wrap(err, "synthesize port override")
	}
	return cycle.NewSnapshot(raw)
}

// GetPortLinkState reads link and power delivery from the live port table.
func (c *Client) GetPortLinkState(ctx context.Context, ref cycle.PortRef) (*cycle.LinkState, error) {
	dev, err := c.DeviceByID(ctx, ref.DeviceID)
	if err != nil {
		return nil, err
	}
	port := dev.Port(ref.PortIdx)
	if port == nil {
		return nil, cycle.ErrPortNotFound
	}
	return &cycle.LinkState{
		Up:           port.Up,
		HasPoE:       port.PortPoe,
		PoEPowerDraw: port.PoePowerWatts(),
	}, nil
}

// SetPortOverride splices the saved entry back into the device's override
// list unchanged, replacing whatever the cycle wrote for that port.
func (c *Client) SetPortOverride(ctx context.Context, ref cycle.PortRef, snap *cycle.OverrideSnapshot) error {
	dev, err := c.DeviceByID(ctx, ref.DeviceID)
	if err != nil {
		return err
	}
	return c.setPortOverrides(ctx, dev.ID, spliceOverride(dev.PortOverrides, ref.PortIdx, snap.Raw()))
}

// DisablePort writes the full administratively-disabled entry for the port.
func (c *Client) DisablePort(ctx context.Context, ref cycle.PortRef) error {
	dev, err := c.DeviceByID(ctx, ref.DeviceID)
	if err != nil {
		return err
	}
	name := ""
	for _, raw := range dev.PortOverrides {
		if jsoniter.Get(raw, "port_idx").ToInt() == ref.PortIdx {
			name = jsoniter.Get(raw, "name").ToString()
			break
		}
	}
	if name == "" {
		if port := dev.Port(ref.PortIdx); port != nil {
			name = portName(port, ref.PortIdx)
		} else {
			name = fmt.Sprintf("Port %d", ref.PortIdx)
		}
	}
	raw, err := jsonx.Marshal(newDisabledOverride(ref.PortIdx, name))
	if err != nil {
		return errors.Wrap(err, "encode disabled override")
	}
	return c.setPortOverrides(ctx, dev.ID, spliceOverride(dev.PortOverrides, ref.PortIdx, raw))
}

// SetPoEMode switches only the power feed. This is a sparse write the
// controller accepts for poe_mode, so the rest of the entry stays untouched.
func (c *Client) SetPoEMode(ctx context.Context, ref cycle.PortRef, mode string) error {
	dev, err := c.DeviceByID(ctx, ref.DeviceID)
	if err != nil {
		return err
	}
	entry, err := jsonx.Marshal(map[string]interface{}{
		"port_idx": ref.PortIdx,
		"poe_mode": mode,
	})
	if err != nil {
		return errors.Wrap(err, "encode poe override")
	}
	overrides := dev.PortOverrides
	replaced := false
	for i, raw := range overrides {
		if jsoniter.Get(raw, "port_idx").ToInt() == ref.PortIdx {
			merged, err := mergePoEMode(raw, mode)
			if err != nil {
				return err
			}
			overrides[i] = merged
			replaced = true
			break
		}
	}
	if !replaced {
		overrides = append(overrides, json.RawMessage(entry))
	}
	return c.setPortOverrides(ctx, dev.ID, overrides)
}

// mergePoEMode rewrites only the poe_mode key of an existing override.
func mergePoEMode(raw json.RawMessage, mode string) (json.RawMessage, error) {
	var fields map[string]interface{}
	if err := jsonx.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "decode port override")
	}
	fields["poe_mode"] = mode
	out, err := jsonx.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "encode port override")
	}
	return out, nil
}

// spliceOverride replaces the entry for portIdx, keeping all others as-is.
func spliceOverride(overrides []json.RawMessage, portIdx int, entry []byte) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(overrides)+1)
	for _, raw := range overrides {
		if jsoniter.Get(raw, "port_idx").ToInt() == portIdx {
			continue
		}
		out = append(out, raw)
	}
	return append(out, entry)
}

func portName(port *PortEntry, portIdx int) string {
	if port.Name != "" {
		return port.Name
	}
	return fmt.Sprintf("Port %d", portIdx)
}

func defaultForward(forward string) string {
	if forward == "" {
		return "all"
	}
	return forward
}
