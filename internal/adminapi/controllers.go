package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
)

// controllerPayload represents the controller registration structure
type controllerPayload struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	SiteName  string `json:"site_name" validate:"required,min=1,max=64"`
	SiteDesc  string `json:"site_desc" validate:"omitempty,max=200"`
	BaseURL   string `json:"base_url" validate:"required,url"`
	Username  string `json:"username" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,max=200"`
	VerifySSL bool   `json:"verify_ssl"`
	Status    string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Tags      string `json:"tags" validate:"omitempty,max=200"`
	Remark    string `json:"remark" validate:"omitempty,max=500"`
}

// controllerUpdatePayload relaxes validation rules for partial updates
type controllerUpdatePayload struct {
	Name      string `json:"name" validate:"omitempty,min=1,max=100"`
	SiteDesc  string `json:"site_desc" validate:"omitempty,max=200"`
	BaseURL   string `json:"base_url" validate:"omitempty,url"`
	Username  string `json:"username" validate:"omitempty,max=100"`
	Password  string `json:"password" validate:"omitempty,max=200"`
	VerifySSL *bool  `json:"verify_ssl"`
	Status    string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Tags      string `json:"tags" validate:"omitempty,max=200"`
	Remark    string `json:"remark" validate:"omitempty,max=500"`
}

// registerControllerRoutes registers controller inventory routes
func registerControllerRoutes() {
	webserver.ApiGET("/inventory/controllers", ListControllers)
	webserver.ApiGET("/inventory/controllers/:id", GetController)
	webserver.ApiPOST("/inventory/controllers", CreateController)
	webserver.ApiPUT("/inventory/controllers/:id", UpdateController)
	webserver.ApiDELETE("/inventory/controllers/:id", DeleteController)
	webserver.ApiPOST("/inventory/controllers/:id/probe", ProbeController)
}

// ListControllers retrieves the registered controller list
func ListControllers(c echo.Context) error {
	db := GetDB(c)
	page, perPage := parsePagination(c)

	query := db.Model(&domain.Controller{})
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		if strings.EqualFold(db.Name(), "postgres") {
			query = query.Where("name ILIKE ?", "%"+name+"%")
		} else {
			query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
		}
	}
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if site := strings.TrimSpace(c.QueryParam("site_name")); site != "" {
		query = query.Where("site_name = ?", site)
	}

	var total int64
	query.Count(&total)

	var controllers []domain.Controller
	query.Order("id DESC").Limit(perPage).Offset((page - 1) * perPage).Find(&controllers)

	// Credentials never leave the API
	for i := range controllers {
		controllers[i].Password = ""
	}
	return paged(c, controllers, total)
}

// GetController fetches a single controller
func GetController(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid controller ID", nil)
	}
	var ctrl domain.Controller
	if err := GetDB(c).Where("id = ?", id).First(&ctrl).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Controller not found", nil)
	}
	ctrl.Password = ""
	return ok(c, ctrl)
}

// CreateController registers a new site controller
func CreateController(c echo.Context) error {
	var payload controllerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	db := GetDB(c)
	var count int64
	db.Model(&domain.Controller{}).Where("site_name = ?", payload.SiteName).Count(&count)
	if count > 0 {
		return fail(c, http.StatusConflict, "SITE_EXISTS", "A controller is already registered for this site", nil)
	}

	status := payload.Status
	if status == "" {
		status = "enabled"
	}
	ctrl := domain.Controller{
		Name:      payload.Name,
		SiteName:  payload.SiteName,
		SiteDesc:  payload.SiteDesc,
		BaseURL:   strings.TrimRight(payload.BaseURL, "/"),
		Username:  payload.Username,
		Password:  payload.Password,
		VerifySSL: payload.VerifySSL,
		Status:    status,
		Tags:      payload.Tags,
		Remark:    payload.Remark,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(&ctrl).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create controller", err.Error())
	}

	audit(c, "controller_create", ctrl.SiteName, "", ctrl.Name, "", true, "")
	ctrl.Password = ""
	return ok(c, ctrl)
}

// UpdateController applies a partial update and drops any cached session
func UpdateController(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid controller ID", nil)
	}

	db := GetDB(c)
	var ctrl domain.Controller
	if err := db.Where("id = ?", id).First(&ctrl).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Controller not found", nil)
	}

	var payload controllerUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if payload.Name != "" {
		updates["name"] = payload.Name
	}
	if payload.SiteDesc != "" {
		updates["site_desc"] = payload.SiteDesc
	}
	if payload.BaseURL != "" {
		updates["base_url"] = strings.TrimRight(payload.BaseURL, "/")
	}
	if payload.Username != "" {
		updates["username"] = payload.Username
	}
	if payload.Password != "" {
		updates["password"] = payload.Password
	}
	if payload.VerifySSL != nil {
		updates["verify_ssl"] = *payload.VerifySSL
	}
	if payload.Status != "" {
		updates["status"] = payload.Status
	}
	if payload.Tags != "" {
		updates["tags"] = payload.Tags
	}
	if payload.Remark != "" {
		updates["remark"] = payload.Remark
	}

	if err := db.Model(&domain.Controller{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update controller", err.Error())
	}

	// Cached sessions hold the old credentials
	GetAppContext(c).Gateways().Invalidate(id)

	audit(c, "controller_update", ctrl.SiteName, "", ctrl.Name, "", true, "")
	db.Where("id = ?", id).First(&ctrl)
	ctrl.Password = ""
	return ok(c, ctrl)
}

// DeleteController removes a controller registration
func DeleteController(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid controller ID", nil)
	}

	db := GetDB(c)
	var ctrl domain.Controller
	if err := db.Where("id = ?", id).First(&ctrl).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Controller not found", nil)
	}
	if err := db.Delete(&domain.Controller{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete controller", err.Error())
	}

	GetAppContext(c).Gateways().Invalidate(id)
	audit(c, "controller_delete", ctrl.SiteName, "", ctrl.Name, "", true, "")
	return c.NoContent(http.StatusNoContent)
}

// ProbeController runs an immediate reachability probe
func ProbeController(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid controller ID", nil)
	}
	if err := GetAppContext(c).ProbeController(id); err != nil {
		return fail(c, http.StatusInternalServerError, "PROBE_FAILED", "Failed to probe controller", err.Error())
	}
	var ctrl domain.Controller
	GetDB(c).Where("id = ?", id).First(&ctrl)
	ctrl.Password = ""
	return ok(c, ctrl)
}
