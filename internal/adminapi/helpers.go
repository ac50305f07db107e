package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/netopshq/switchyard/internal/app"
	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
)

// ErrorBody is the uniform error envelope.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// ListResponse wraps paginated listings.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
}

// GetAppContext resolves the application context injected by the webserver.
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

// GetDB resolves the request database handle.
func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, ErrorBody{Code: code, Message: message, Detail: detail})
}

func paged(c echo.Context, data interface{}, total int64) error {
	return c.JSON(http.StatusOK, ListResponse{Data: data, Total: total})
}

// parsePagination reads page/perPage query params with sane bounds.
func parsePagination(c echo.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	perPage, _ = strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}
	return page, perPage
}

// parseIDParam reads the :id path segment.
func parseIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// parsePortParam reads the :port path segment as a 1-based port index.
func parsePortParam(c echo.Context) (int, error) {
	idx, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		return 0, err
	}
	if idx < 1 {
		return 0, errPortIndex
	}
	return idx, nil
}

var errPortIndex = errors.New("port index must be >= 1")

// handleValidationError maps validator failures to a field-keyed detail map.
func handleValidationError(c echo.Context, err error) error {
	if verrs, okCast := err.(validator.ValidationErrors); okCast {
		detail := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			detail[fe.Field()] = fe.Tag()
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", detail)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
}

// audit records one operator action. Failures never fail the request.
func audit(c echo.Context, actionType, siteName, deviceID, deviceName, details string, success bool, errMsg string) {
	GetDB(c).Create(&domain.AuditLog{
		ActionType:   actionType,
		SiteName:     siteName,
		DeviceID:     deviceID,
		DeviceName:   deviceName,
		Source:       domain.JobSourceManual,
		UserIP:       c.RealIP(),
		Details:      details,
		Success:      success,
		ErrorMessage: errMsg,
		Timestamp:    time.Now(),
	})
}
