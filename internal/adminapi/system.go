package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
	"github.com/netopshq/switchyard/pkg/metrics"
)

// settingPayload represents a single settings write
type settingPayload struct {
	Type  string `json:"type" validate:"required,max=50"`
	Name  string `json:"name" validate:"required,max=100"`
	Value string `json:"value" validate:"required,max=500"`
}

// registerSystemRoutes registers settings and metrics routes
func registerSystemRoutes() {
	webserver.ApiGET("/settings", ListSettings)
	webserver.ApiPOST("/settings", SaveSetting)
	webserver.ApiGET("/metrics/:name", QueryMetric)
	webserver.ApiPOST("/notify/test", SendTestNotification)
}

// ListSettings retrieves system settings grouped by category
func ListSettings(c echo.Context) error {
	var rows []domain.SysConfig
	query := GetDB(c).Model(&domain.SysConfig{})
	if t := strings.TrimSpace(c.QueryParam("type")); t != "" {
		query = query.Where("type = ?", t)
	}
	query.Order("sort ASC").Find(&rows)
	return ok(c, rows)
}

// SaveSetting writes one setting value
func SaveSetting(c echo.Context) error {
	var payload settingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if err := GetAppContext(c).ConfigMgr().Set(payload.Type, payload.Name, payload.Value); err != nil {
		return fail(c, http.StatusInternalServerError, "SAVE_FAILED", "Failed to save setting", err.Error())
	}
	return ok(c, payload)
}

// SendTestNotification pushes a test message through the configured notifier
func SendTestNotification(c echo.Context) error {
	if err := GetAppContext(c).Notifier().Send("🔔 Test notification from switchyard."); err != nil {
		return fail(c, http.StatusBadGateway, "NOTIFY_FAILED", "Failed to deliver test notification", err.Error())
	}
	return ok(c, map[string]string{"result": "sent"})
}

// QueryMetric reads gauge samples for a time window. Defaults to the last
// hour when no bounds are given.
func QueryMetric(c echo.Context) error {
	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 3600
	if s := c.QueryParam("start"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			start = v
		}
	}
	if e := c.QueryParam("end"); e != "" {
		if v, err := strconv.ParseInt(e, 10, 64); err == nil {
			end = v
		}
	}
	points, err := metrics.Range(name, start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRIC_FAILED", "Failed to read metric", err.Error())
	}
	return ok(c, points)
}
