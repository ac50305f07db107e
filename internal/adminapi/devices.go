package adminapi

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
)

// cyclePayload represents a manual port cycle request
type cyclePayload struct {
	PoeOnly     bool `json:"poe_only"`
	HoldSeconds int  `json:"hold_seconds" validate:"omitempty,min=0,max=3600"`
	// Detached returns immediately with the running job instead of
	// blocking until the cycle finishes
	Detached bool `json:"detached"`
}

// Back-online watch window for manual reboots, matching the scheduled path.
const (
	rebootWatchWindow = 10 * time.Minute
	rebootWatchPoll   = 15 * time.Second
)

// poePayload represents a PoE mode change request
type poePayload struct {
	Mode string `json:"mode" validate:"required,oneof=auto off"`
}

// portView joins live port state with whether a cycle is in flight
type portView struct {
	PortIdx  int     `json:"port_idx"`
	Name     string  `json:"name"`
	Up       bool    `json:"up"`
	Enabled  bool    `json:"enabled"`
	Media    string  `json:"media"`
	PortPoe  bool    `json:"port_poe"`
	PoeMode  string  `json:"poe_mode"`
	PoePower float64 `json:"poe_power"`
	Cycling  bool    `json:"cycling"`
}

// registerDeviceRoutes registers device surface routes
func registerDeviceRoutes() {
	webserver.ApiGET("/sites", ListSites)
	webserver.ApiGET("/sites/:site/devices", ListDevices)
	webserver.ApiGET("/sites/:site/devices/:device", GetDevice)
	webserver.ApiGET("/sites/:site/devices/:device/ports", ListDevicePorts)
	webserver.ApiPOST("/sites/:site/devices/:device/reboot", RebootDevice)
	webserver.ApiPOST("/sites/:site/devices/:device/ports/:port/cycle", CyclePort)
	webserver.ApiPOST("/sites/:site/devices/:device/ports/:port/poe", SetPortPoE)
	webserver.ApiPOST("/sites/:site/run-cycles", RunSiteCycles)
}

// ListSites lists the sites with a registered controller, annotated with the
// controller's own site inventory when reachable.
func ListSites(c echo.Context) error {
	var controllers []domain.Controller
	GetDB(c).Where("status = ?", "enabled").Find(&controllers)

	type siteView struct {
		SiteName  string `json:"site_name"`
		SiteDesc  string `json:"site_desc"`
		Name      string `json:"controller_name"`
		Latency   int    `json:"latency"`
		LastProbe string `json:"last_probe_result"`
	}
	sites := make([]siteView, 0, len(controllers))
	for _, ctrl := range controllers {
		sites = append(sites, siteView{
			SiteName:  ctrl.SiteName,
			SiteDesc:  ctrl.SiteDesc,
			Name:      ctrl.Name,
			Latency:   ctrl.Latency,
			LastProbe: ctrl.LastProbeResult,
		})
	}
	return ok(c, sites)
}

// ListDevices lists the controller's managed devices for a site
func ListDevices(c echo.Context) error {
	appCtx := GetAppContext(c)
	client, err := appCtx.Gateways().ForSite(c.Request().Context(), c.Param("site"))
	if err != nil {
		return fail(c, http.StatusNotFound, "SITE_UNKNOWN", "No enabled controller for site", err.Error())
	}
	devices, err := client.Devices(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusBadGateway, "CONTROLLER_ERROR", "Controller device query failed", err.Error())
	}
	infos := make([]interface{}, 0, len(devices))
	for i := range devices {
		infos = append(infos, devices[i].Info())
	}
	return ok(c, infos)
}

// GetDevice fetches one device summary
func GetDevice(c echo.Context) error {
	appCtx := GetAppContext(c)
	client, err := appCtx.Gateways().ForSite(c.Request().Context(), c.Param("site"))
	if err != nil {
		return fail(c, http.StatusNotFound, "SITE_UNKNOWN", "No enabled controller for site", err.Error())
	}
	dev, err := client.DeviceByID(c.Request().Context(), c.Param("device"))
	if err != nil {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found on site", err.Error())
	}
	return ok(c, dev.Info())
}

// ListDevicePorts lists a switch's ports with live state
func ListDevicePorts(c echo.Context) error {
	appCtx := GetAppContext(c)
	site := c.Param("site")
	client, err := appCtx.Gateways().ForSite(c.Request().Context(), site)
	if err != nil {
		return fail(c, http.StatusNotFound, "SITE_UNKNOWN", "No enabled controller for site", err.Error())
	}
	dev, err := client.DeviceByID(c.Request().Context(), c.Param("device"))
	if err != nil {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found on site", err.Error())
	}

	orch := appCtx.Orchestrator()
	ports := make([]portView, 0, len(dev.PortTable))
	for _, p := range dev.PortTable {
		ports = append(ports, portView{
			PortIdx:  p.PortIdx,
			Name:     p.Name,
			Up:       p.Up,
			Enabled:  p.Enable,
			Media:    p.Media,
			PortPoe:  p.PortPoe,
			PoeMode:  p.PoeMode,
			PoePower: p.PoePowerWatts(),
			Cycling: orch.Running(cycle.PortRef{
				SiteName: site,
				DeviceID: dev.ID,
				PortIdx:  p.PortIdx,
			}),
		})
	}
	return ok(c, ports)
}

// RebootDevice restarts one device. The reboot command is fire-and-forget;
// back-online notification runs in the background.
func RebootDevice(c echo.Context) error {
	appCtx := GetAppContext(c)
	site := c.Param("site")
	client, err := appCtx.Gateways().ForSite(c.Request().Context(), site)
	if err != nil {
		return fail(c, http.StatusNotFound, "SITE_UNKNOWN", "No enabled controller for site", err.Error())
	}
	dev, err := client.DeviceByID(c.Request().Context(), c.Param("device"))
	if err != nil {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found on site", err.Error())
	}
	if err := client.Reboot(c.Request().Context(), dev.Mac); err != nil {
		audit(c, "reboot", site, dev.ID, dev.DisplayName(), "", false, err.Error())
		return fail(c, http.StatusBadGateway, "REBOOT_FAILED", "Controller rejected reboot", err.Error())
	}
	audit(c, "reboot", site, dev.ID, dev.DisplayName(), "", true, "")
	// The watch outlives the request; the operator gets the back-online or
	// timeout push without holding the connection open.
	go appCtx.Notifier().WatchRebootedDevice(context.Background(), client,
		dev.ID, dev.DisplayName(), rebootWatchWindow, rebootWatchPoll)
	return ok(c, map[string]interface{}{"status": "rebooting", "device": dev.DisplayName()})
}

// CyclePort runs a port cycle for one switch port. The default is to block
// until the run reaches a terminal state and return the full job record; a
// detached request returns the running record immediately.
func CyclePort(c echo.Context) error {
	var payload cyclePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	portIdx, err := parsePortParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PORT", "Invalid port index", nil)
	}

	appCtx := GetAppContext(c)
	site := c.Param("site")
	deviceID := c.Param("device")

	req := cycle.CycleRequest{
		Port: cycle.PortRef{
			SiteName: site,
			DeviceID: deviceID,
			PortIdx:  portIdx,
		},
		PoeOnly: payload.PoeOnly,
		Hold:    time.Duration(payload.HoldSeconds) * time.Second,
		Source:  domain.JobSourceManual,
	}
	if client, cerr := appCtx.Gateways().ForSite(c.Request().Context(), site); cerr == nil {
		if dev, derr := client.DeviceByID(c.Request().Context(), deviceID); derr == nil {
			req.DeviceName = dev.DisplayName()
			req.Port.DeviceID = dev.ID
		}
	}

	detail, _ := jsoniter.MarshalToString(payload)
	var job *domain.JobRun
	if payload.Detached {
		job, err = appCtx.Orchestrator().SubmitDetached(c.Request().Context(), req)
	} else {
		job, err = appCtx.Orchestrator().Submit(c.Request().Context(), req)
	}
	if err != nil {
		if errors.Is(err, cycle.ErrCycleInFlight) {
			audit(c, "port_cycle", site, deviceID, req.DeviceName, detail, false, err.Error())
			return fail(c, http.StatusConflict, "CYCLE_IN_FLIGHT", "A cycle is already running for this port", nil)
		}
		audit(c, "port_cycle", site, deviceID, req.DeviceName, detail, false, err.Error())
		return fail(c, http.StatusInternalServerError, "CYCLE_FAILED", "Failed to start port cycle", err.Error())
	}

	audit(c, "port_cycle", site, deviceID, req.DeviceName, detail, true, "")
	if payload.Detached {
		return c.JSON(http.StatusAccepted, job)
	}
	return ok(c, job)
}

// SetPortPoE flips just the power feed of one port
func SetPortPoE(c echo.Context) error {
	var payload poePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	portIdx, err := parsePortParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PORT", "Invalid port index", nil)
	}

	appCtx := GetAppContext(c)
	site := c.Param("site")
	client, err := appCtx.Gateways().ForSite(c.Request().Context(), site)
	if err != nil {
		return fail(c, http.StatusNotFound, "SITE_UNKNOWN", "No enabled controller for site", err.Error())
	}
	ref := cycle.PortRef{SiteName: site, DeviceID: c.Param("device"), PortIdx: portIdx}
	if err := client.SetPoEMode(c.Request().Context(), ref, payload.Mode); err != nil {
		audit(c, "poe_"+payload.Mode, site, ref.DeviceID, "", "", false, err.Error())
		return fail(c, http.StatusBadGateway, "POE_FAILED", "Controller rejected PoE change", err.Error())
	}
	audit(c, "poe_"+payload.Mode, site, ref.DeviceID, "", "", true, "")
	return ok(c, map[string]interface{}{"port_idx": portIdx, "poe_mode": payload.Mode})
}

// RunSiteCycles starts every enabled cycle schedule for a site
func RunSiteCycles(c echo.Context) error {
	appCtx := GetAppContext(c)
	site := c.Param("site")
	started, err := appCtx.RunSiteCycles(c.Request().Context(), site)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "BULK_FAILED", "Failed to start site run", err.Error())
	}
	audit(c, "site_bulk_cycle", site, "", "", "", true, "")
	return c.JSON(http.StatusAccepted, map[string]interface{}{"site": site, "started": started})
}
