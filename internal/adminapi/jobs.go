package adminapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/webserver"
)

// jobCSVRow is the flattened job record for CSV export
type jobCSVRow struct {
	ID              int64  `csv:"id"`
	JobType         string `csv:"job_type"`
	SiteName        string `csv:"site_name"`
	DeviceName      string `csv:"device_name"`
	PortIdx         int    `csv:"port_idx"`
	Status          string `csv:"status"`
	Source          string `csv:"source"`
	StartedAt       string `csv:"started_at"`
	CompletedAt     string `csv:"completed_at"`
	DurationSeconds int    `csv:"duration_seconds"`
	ErrorMessage    string `csv:"error_message"`
}

// registerJobRoutes registers job history and audit routes
func registerJobRoutes() {
	webserver.ApiGET("/jobs", ListJobs)
	webserver.ApiGET("/jobs/export", ExportJobs)
	webserver.ApiGET("/jobs/:id", GetJob)
	webserver.ApiGET("/audit", ListAuditLogs)
}

// jobFilterFromQuery builds the repository filter from query params. Time
// bounds accept any common format (RFC3339, dates, unix seconds).
func jobFilterFromQuery(c echo.Context) (cycle.JobFilter, error) {
	page, perPage := parsePagination(c)
	f := cycle.JobFilter{
		Status:   strings.TrimSpace(c.QueryParam("status")),
		JobType:  strings.TrimSpace(c.QueryParam("job_type")),
		Source:   strings.TrimSpace(c.QueryParam("source")),
		SiteName: strings.TrimSpace(c.QueryParam("site_name")),
		DeviceID: strings.TrimSpace(c.QueryParam("device_id")),
		Page:     page,
		PageSize: perPage,
	}
	if sid := strings.TrimSpace(c.QueryParam("schedule_id")); sid != "" {
		id, err := strconv.ParseInt(sid, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid schedule_id %q", sid)
		}
		f.ScheduleID = id
	}
	if after := strings.TrimSpace(c.QueryParam("started_after")); after != "" {
		t, err := dateparse.ParseAny(after)
		if err != nil {
			return f, fmt.Errorf("invalid started_after %q", after)
		}
		f.StartedAfter = &t
	}
	if before := strings.TrimSpace(c.QueryParam("started_before")); before != "" {
		t, err := dateparse.ParseAny(before)
		if err != nil {
			return f, fmt.Errorf("invalid started_before %q", before)
		}
		f.StartedBefore = &t
	}
	return f, nil
}

// ListJobs retrieves the job run history
func ListJobs(c echo.Context) error {
	f, err := jobFilterFromQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid job filter", err.Error())
	}
	jobs, total, err := GetAppContext(c).JobRepo().List(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "LIST_FAILED", "Failed to list jobs", err.Error())
	}
	return paged(c, jobs, total)
}

// GetJob fetches a single job run
func GetJob(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid job ID", nil)
	}
	job, err := GetAppContext(c).JobRepo().GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	}
	return ok(c, job)
}

// ExportJobs streams the filtered job history as CSV
func ExportJobs(c echo.Context) error {
	f, err := jobFilterFromQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid job filter", err.Error())
	}
	// Export ignores pagination; the filter bounds the result instead
	f.Page = 0
	f.PageSize = 0

	jobs, _, err := GetAppContext(c).JobRepo().List(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export jobs", err.Error())
	}

	rows := make([]jobCSVRow, 0, len(jobs))
	for _, job := range jobs {
		row := jobCSVRow{
			ID:              job.ID,
			JobType:         job.JobType,
			SiteName:        job.SiteName,
			DeviceName:      job.DeviceName,
			PortIdx:         job.PortIdx,
			Status:          job.Status,
			Source:          job.Source,
			StartedAt:       job.StartedAt.Format(time.RFC3339),
			DurationSeconds: job.DurationSeconds,
			ErrorMessage:    job.ErrorMessage,
		}
		if job.CompletedAt != nil {
			row.CompletedAt = job.CompletedAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="jobs-%s.csv"`, time.Now().Format("20060102-150405")))
	c.Response().WriteHeader(http.StatusOK)
	return gocsv.Marshal(&rows, c.Response().Writer)
}

// ListAuditLogs retrieves the audit trail
func ListAuditLogs(c echo.Context) error {
	db := GetDB(c)
	page, perPage := parsePagination(c)

	query := db.Model(&domain.AuditLog{})
	if action := strings.TrimSpace(c.QueryParam("action_type")); action != "" {
		query = query.Where("action_type = ?", action)
	}
	if site := strings.TrimSpace(c.QueryParam("site_name")); site != "" {
		query = query.Where("site_name = ?", site)
	}
	if after := strings.TrimSpace(c.QueryParam("after")); after != "" {
		if t, err := dateparse.ParseAny(after); err == nil {
			query = query.Where("timestamp >= ?", t)
		}
	}

	var total int64
	query.Count(&total)

	var logs []domain.AuditLog
	query.Order("timestamp DESC").Limit(perPage).Offset((page - 1) * perPage).Find(&logs)
	return paged(c, logs, total)
}
