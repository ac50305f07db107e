package unifi

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// apiEnvelope is the controller's standard response wrapper.
type apiEnvelope struct {
	Meta struct {
		Rc  string `json:"rc"`
		Msg string `json:"msg"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// Site is one controller site.
type Site struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// PortEntry is one row of a switch's live port table.
type PortEntry struct {
	PortIdx         int    `json:"port_idx"`
	Name            string `json:"name"`
	Up              bool   `json:"up"`
	Enable          bool   `json:"enable"`
	Media           string `json:"media"`
	Speed           int    `json:"speed"`
	FullDuplex      bool   `json:"full_duplex"`
	PortPoe         bool   `json:"port_poe"`
	PoeEnable       bool   `json:"poe_enable"`
	PoeMode         string `json:"poe_mode"`
	PoePower        string `json:"poe_power"` // watts, reported as a string
	Forward         string `json:"forward"`
	NativeNetworkID string `json:"native_networkconf_id"`
}

// PoePowerWatts parses the delivered power reading.
func (p *PortEntry) PoePowerWatts() float64 {
	return cast.ToFloat64(p.PoePower)
}

// Device is a controller-managed device. Port overrides are kept raw so a
// saved entry can be written back byte for byte.
type Device struct {
	ID            string            `json:"_id"`
	Mac           string            `json:"mac"`
	Name          string            `json:"name"`
	Model         string            `json:"model"`
	Type          string            `json:"type"`
	IP            string            `json:"ip"`
	State         int               `json:"state"`
	Adopted       bool              `json:"adopted"`
	Version       string            `json:"version"`
	Uptime        int64             `json:"uptime"`
	LastSeen      int64             `json:"last_seen"`
	SiteID        string            `json:"site_id"`
	PortTable     []PortEntry       `json:"port_table"`
	PortOverrides []json.RawMessage `json:"port_overrides"`
}

// Online is the controller's connected state.
func (d *Device) Online() bool {
	return d.State == 1
}

// IsSwitch reports whether the device forwards through a port table.
func (d *Device) IsSwitch() bool {
	return d.Type == "usw"
}

// Port finds the live port table entry for an index, nil when absent.
func (d *Device) Port(portIdx int) *PortEntry {
	for i := range d.PortTable {
		if d.PortTable[i].PortIdx == portIdx {
			return &d.PortTable[i]
		}
	}
	return nil
}

// DisplayName falls back to the MAC when a device was never named.
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Mac
}

// DeviceInfo is the flattened device summary served by the inventory API.
type DeviceInfo struct {
	ID        string `json:"id"`
	Mac       string `json:"mac"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Type      string `json:"type"`
	IP        string `json:"ip"`
	Online    bool   `json:"online"`
	Adopted   bool   `json:"adopted"`
	Version   string `json:"version"`
	Uptime    int64  `json:"uptime"`
	PortCount int    `json:"port_count"`
}

// Info flattens a device for API consumers.
func (d *Device) Info() DeviceInfo {
	return DeviceInfo{
		ID:        d.ID,
		Mac:       d.Mac,
		Name:      d.DisplayName(),
		Model:     d.Model,
		Type:      d.Type,
		IP:        d.IP,
		Online:    d.Online(),
		Adopted:   d.Adopted,
		Version:   d.Version,
		Uptime:    d.Uptime,
		PortCount: len(d.PortTable),
	}
}
