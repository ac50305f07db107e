package adminapi

import (
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
)

// cycleSchedulePayload represents the cycle schedule request structure
type cycleSchedulePayload struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	SiteName    string `json:"site_name" validate:"required,min=1,max=64"`
	DeviceID    string `json:"device_id" validate:"required,max=64"`
	PortIdx     int    `json:"port_idx" validate:"required,min=1"`
	PoeOnly     bool   `json:"poe_only"`
	HoldSeconds int    `json:"hold_seconds" validate:"omitempty,min=0,max=3600"`
	Frequency   string `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	TimeOfDay   string `json:"time_of_day" validate:"omitempty,len=5"`
	DayOfWeek   int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	DayOfMonth  int    `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	Enabled     *bool  `json:"enabled"`
	// TemplateID seeds timing and cycle parameters from a stored template;
	// explicit fields win over template values
	TemplateID int64 `json:"template_id,string" validate:"omitempty"`
}

// rebootSchedulePayload represents the reboot schedule request structure
type rebootSchedulePayload struct {
	Name              string   `json:"name" validate:"required,min=1,max=100"`
	Description       string   `json:"description" validate:"omitempty,max=500"`
	SiteName          string   `json:"site_name" validate:"required,min=1,max=64"`
	DeviceIDs         []string `json:"device_ids" validate:"required,min=1"`
	RollingMode       bool     `json:"rolling_mode"`
	DelayBetween      int      `json:"delay_between" validate:"omitempty,min=0,max=3600"`
	MaxWaitTime       int      `json:"max_wait_time" validate:"omitempty,min=0,max=7200"`
	ContinueOnFailure bool     `json:"continue_on_failure"`
	Frequency         string   `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	TimeOfDay         string   `json:"time_of_day" validate:"omitempty,len=5"`
	DayOfWeek         int      `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	DayOfMonth        int      `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	Enabled           *bool    `json:"enabled"`
}

// templatePayload represents the schedule template request structure
type templatePayload struct {
	Name         string                 `json:"name" validate:"required,min=1,max=100"`
	Description  string                 `json:"description" validate:"omitempty,max=500"`
	TemplateType string                 `json:"template_type" validate:"required,oneof=port_cycle device_reboot"`
	Frequency    string                 `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	TimeOfDay    string                 `json:"time_of_day" validate:"omitempty,len=5"`
	DayOfWeek    int                    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	DayOfMonth   int                    `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	Config       map[string]interface{} `json:"config"`
}

// cycleTemplateConfig is the typed shape of a port_cycle template's Config
type cycleTemplateConfig struct {
	PoeOnly     bool `mapstructure:"poe_only"`
	HoldSeconds int  `mapstructure:"hold_seconds"`
}

// registerScheduleRoutes registers maintenance schedule routes
func registerScheduleRoutes() {
	webserver.ApiGET("/schedules/cycles", ListCycleSchedules)
	webserver.ApiPOST("/schedules/cycles", CreateCycleSchedule)
	webserver.ApiPUT("/schedules/cycles/:id", UpdateCycleSchedule)
	webserver.ApiDELETE("/schedules/cycles/:id", DeleteCycleSchedule)
	webserver.ApiPOST("/schedules/cycles/:id/toggle", ToggleCycleSchedule)
	webserver.ApiPOST("/schedules/cycles/:id/run", TriggerCycleSchedule)

	webserver.ApiGET("/schedules/reboots", ListRebootSchedules)
	webserver.ApiPOST("/schedules/reboots", CreateRebootSchedule)
	webserver.ApiDELETE("/schedules/reboots/:id", DeleteRebootSchedule)
	webserver.ApiPOST("/schedules/reboots/:id/toggle", ToggleRebootSchedule)
	webserver.ApiPOST("/schedules/reboots/:id/run", TriggerRebootSchedule)

	webserver.ApiGET("/schedules/templates", ListScheduleTemplates)
	webserver.ApiPOST("/schedules/templates", CreateScheduleTemplate)
	webserver.ApiDELETE("/schedules/templates/:id", DeleteScheduleTemplate)
}

// ListCycleSchedules retrieves the cycle schedule list
func ListCycleSchedules(c echo.Context) error {
	db := GetDB(c)
	page, perPage := parsePagination(c)

	query := db.Model(&domain.CycleSchedule{})
	if site := strings.TrimSpace(c.QueryParam("site_name")); site != "" {
		query = query.Where("site_name = ?", site)
	}
	if enabled := strings.TrimSpace(c.QueryParam("enabled")); enabled != "" {
		query = query.Where("enabled = ?", enabled == "true")
	}

	var total int64
	query.Count(&total)

	var schedules []domain.CycleSchedule
	query.Order("id DESC").Limit(perPage).Offset((page - 1) * perPage).Find(&schedules)
	return paged(c, schedules, total)
}

// CreateCycleSchedule creates a recurring port cycle
func CreateCycleSchedule(c echo.Context) error {
	var payload cycleSchedulePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if err := applyCycleTemplate(c, &payload); err != nil {
		return fail(c, http.StatusBadRequest, "TEMPLATE_INVALID", "Schedule template could not be applied", err.Error())
	}
	if payload.Frequency != domain.FrequencyHourly && payload.TimeOfDay == "" {
		return fail(c, http.StatusBadRequest, "TIME_REQUIRED", "time_of_day is required for this frequency", nil)
	}

	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	sched := domain.CycleSchedule{
		Name:        payload.Name,
		Description: payload.Description,
		SiteName:    payload.SiteName,
		DeviceID:    payload.DeviceID,
		PortIdx:     payload.PortIdx,
		PoeOnly:     payload.PoeOnly,
		HoldSeconds: payload.HoldSeconds,
		Frequency:   payload.Frequency,
		TimeOfDay:   payload.TimeOfDay,
		DayOfWeek:   payload.DayOfWeek,
		DayOfMonth:  payload.DayOfMonth,
		Enabled:     enabled,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := GetDB(c).Create(&sched).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create cycle schedule", err.Error())
	}
	audit(c, "cycle_schedule_create", sched.SiteName, sched.DeviceID, sched.Name, "", true, "")
	return ok(c, sched)
}

// applyCycleTemplate fills unset fields of a payload from a stored template
func applyCycleTemplate(c echo.Context, payload *cycleSchedulePayload) error {
	if payload.TemplateID == 0 {
		return nil
	}
	var tpl domain.ScheduleTemplate
	if err := GetDB(c).Where("id = ? AND template_type = ?", payload.TemplateID, "port_cycle").
		First(&tpl).Error; err != nil {
		return err
	}
	if payload.TimeOfDay == "" {
		payload.TimeOfDay = tpl.TimeOfDay
	}
	if payload.DayOfWeek == 0 {
		payload.DayOfWeek = tpl.DayOfWeek
	}
	if payload.DayOfMonth == 0 {
		payload.DayOfMonth = tpl.DayOfMonth
	}
	if tpl.Config == "" {
		return nil
	}
	var raw map[string]interface{}
	if err := jsoniter.UnmarshalFromString(tpl.Config, &raw); err != nil {
		return err
	}
	var cfg cycleTemplateConfig
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return err
	}
	if payload.HoldSeconds == 0 {
		payload.HoldSeconds = cfg.HoldSeconds
	}
	if !payload.PoeOnly {
		payload.PoeOnly = cfg.PoeOnly
	}
	return nil
}

// UpdateCycleSchedule applies a partial update and clears the booked next run
func UpdateCycleSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	db := GetDB(c)
	var sched domain.CycleSchedule
	if err := db.Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Cycle schedule not found", nil)
	}

	var payload cycleSchedulePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	updates := map[string]interface{}{
		"name":         payload.Name,
		"description":  payload.Description,
		"site_name":    payload.SiteName,
		"device_id":    payload.DeviceID,
		"port_idx":     payload.PortIdx,
		"poe_only":     payload.PoeOnly,
		"hold_seconds": payload.HoldSeconds,
		"frequency":    payload.Frequency,
		"time_of_day":  payload.TimeOfDay,
		"day_of_week":  payload.DayOfWeek,
		"day_of_month": payload.DayOfMonth,
		"updated_at":   time.Now(),
		// Timing changed; the engine books the next run fresh
		"next_run_at": time.Time{},
	}
	if payload.Enabled != nil {
		updates["enabled"] = *payload.Enabled
	}
	if err := db.Model(&domain.CycleSchedule{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update cycle schedule", err.Error())
	}
	db.Where("id = ?", id).First(&sched)
	audit(c, "cycle_schedule_update", sched.SiteName, sched.DeviceID, sched.Name, "", true, "")
	return ok(c, sched)
}

// DeleteCycleSchedule removes a cycle schedule
func DeleteCycleSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	db := GetDB(c)
	var sched domain.CycleSchedule
	if err := db.Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Cycle schedule not found", nil)
	}
	if err := db.Delete(&domain.CycleSchedule{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete cycle schedule", err.Error())
	}
	audit(c, "cycle_schedule_delete", sched.SiteName, sched.DeviceID, sched.Name, "", true, "")
	return c.NoContent(http.StatusNoContent)
}

// ToggleCycleSchedule flips a schedule's enabled flag
func ToggleCycleSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	db := GetDB(c)
	var sched domain.CycleSchedule
	if err := db.Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Cycle schedule not found", nil)
	}
	if err := db.Model(&domain.CycleSchedule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"enabled":     !sched.Enabled,
			"next_run_at": time.Time{},
			"updated_at":  time.Now(),
		}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to toggle cycle schedule", err.Error())
	}
	sched.Enabled = !sched.Enabled
	return ok(c, sched)
}

// TriggerCycleSchedule submits a schedule immediately
func TriggerCycleSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	if err := GetAppContext(c).RunCycleScheduleNow(id); err != nil {
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to run cycle schedule", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRebootSchedules retrieves the reboot schedule list
func ListRebootSchedules(c echo.Context) error {
	db := GetDB(c)
	page, perPage := parsePagination(c)

	query := db.Model(&domain.RebootSchedule{})
	if site := strings.TrimSpace(c.QueryParam("site_name")); site != "" {
		query = query.Where("site_name = ?", site)
	}

	var total int64
	query.Count(&total)

	var schedules []domain.RebootSchedule
	query.Order("id DESC").Limit(perPage).Offset((page - 1) * perPage).Find(&schedules)
	return paged(c, schedules, total)
}

// CreateRebootSchedule creates a recurring device reboot
func CreateRebootSchedule(c echo.Context) error {
	var payload rebootSchedulePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Frequency != domain.FrequencyHourly && payload.TimeOfDay == "" {
		return fail(c, http.StatusBadRequest, "TIME_REQUIRED", "time_of_day is required for this frequency", nil)
	}

	deviceIDs, _ := jsoniter.MarshalToString(payload.DeviceIDs)
	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	sched := domain.RebootSchedule{
		Name:              payload.Name,
		Description:       payload.Description,
		SiteName:          payload.SiteName,
		DeviceIDs:         deviceIDs,
		RollingMode:       payload.RollingMode,
		DelayBetween:      payload.DelayBetween,
		MaxWaitTime:       payload.MaxWaitTime,
		ContinueOnFailure: payload.ContinueOnFailure,
		Frequency:         payload.Frequency,
		TimeOfDay:         payload.TimeOfDay,
		DayOfWeek:         payload.DayOfWeek,
		DayOfMonth:        payload.DayOfMonth,
		Enabled:           enabled,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := GetDB(c).Create(&sched).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create reboot schedule", err.Error())
	}
	audit(c, "reboot_schedule_create", sched.SiteName, "", sched.Name, "", true, "")
	return ok(c, sched)
}

// DeleteRebootSchedule removes a reboot schedule
func DeleteRebootSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	db := GetDB(c)
	var sched domain.RebootSchedule
	if err := db.Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Reboot schedule not found", nil)
	}
	if err := db.Delete(&domain.RebootSchedule{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete reboot schedule", err.Error())
	}
	audit(c, "reboot_schedule_delete", sched.SiteName, "", sched.Name, "", true, "")
	return c.NoContent(http.StatusNoContent)
}

// ToggleRebootSchedule flips a schedule's enabled flag
func ToggleRebootSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	db := GetDB(c)
	var sched domain.RebootSchedule
	if err := db.Where("id = ?", id).First(&sched).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Reboot schedule not found", nil)
	}
	if err := db.Model(&domain.RebootSchedule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"enabled":     !sched.Enabled,
			"next_run_at": time.Time{},
			"updated_at":  time.Now(),
		}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to toggle reboot schedule", err.Error())
	}
	sched.Enabled = !sched.Enabled
	return ok(c, sched)
}

// TriggerRebootSchedule runs a reboot schedule immediately
func TriggerRebootSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid schedule ID", nil)
	}
	if err := GetAppContext(c).RunRebootScheduleNow(id); err != nil {
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to run reboot schedule", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListScheduleTemplates retrieves stored schedule templates
func ListScheduleTemplates(c echo.Context) error {
	var templates []domain.ScheduleTemplate
	query := GetDB(c).Model(&domain.ScheduleTemplate{})
	if t := strings.TrimSpace(c.QueryParam("template_type")); t != "" {
		query = query.Where("template_type = ?", t)
	}
	query.Order("id DESC").Find(&templates)
	return ok(c, templates)
}

// CreateScheduleTemplate stores a reusable schedule preset
func CreateScheduleTemplate(c echo.Context) error {
	var payload templatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	cfg, _ := jsoniter.MarshalToString(payload.Config)
	tpl := domain.ScheduleTemplate{
		Name:         payload.Name,
		Description:  payload.Description,
		TemplateType: payload.TemplateType,
		Frequency:    payload.Frequency,
		TimeOfDay:    payload.TimeOfDay,
		DayOfWeek:    payload.DayOfWeek,
		DayOfMonth:   payload.DayOfMonth,
		Config:       cfg,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := GetDB(c).Create(&tpl).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create template", err.Error())
	}
	return ok(c, tpl)
}

// DeleteScheduleTemplate removes a template
func DeleteScheduleTemplate(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid template ID", nil)
	}
	if err := GetDB(c).Delete(&domain.ScheduleTemplate{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete template", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
