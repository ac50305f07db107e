package domain

import "time"

// Job status values. A job created by the orchestrator starts in running
// state and always reaches exactly one terminal state.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
	JobStatusTimeout = "timeout"
)

// Job type values
const (
	JobTypePortCycle = "port_cycle"
	JobTypePoECycle  = "poe_cycle"
	JobTypeReboot    = "reboot"
)

// Job trigger sources
const (
	JobSourceManual     = "manual"
	JobSourceScheduled  = "scheduled"
	JobSourceManualBulk = "manual_bulk"
)

// JobRun is the audit record of one maintenance operation. Records are
// retained indefinitely; nothing in the application deletes them.
type JobRun struct {
	ID              int64      `json:"id,string" form:"id"`                      // Primary key ID (snowflake)
	ScheduleID      int64      `gorm:"index" json:"schedule_id,string"`          // Originating schedule, 0 for manual jobs
	JobType         string     `gorm:"index" json:"job_type" form:"job_type"`    // port_cycle | poe_cycle | reboot
	SiteName        string     `gorm:"index" json:"site_name" form:"site_name"`  // Controller site name
	SiteDesc        string     `json:"site_desc" form:"site_desc"`               // Site display name
	DeviceID        string     `gorm:"index" json:"device_id" form:"device_id"`  // Target device ID or MAC
	DeviceName      string     `json:"device_name" form:"device_name"`           // Display name, e.g. "Gate Switch Port 7"
	PortIdx         int        `json:"port_idx" form:"port_idx"`                 // Target port index, 0 for device jobs
	Status          string     `gorm:"index" json:"status" form:"status"`        // pending/running/success/failed/timeout
	Source          string     `json:"source" form:"source"`                     // manual/scheduled/manual_bulk
	ErrorMessage    string     `json:"error_message" form:"error_message"`       // Failure cause, empty on success
	StartedAt       time.Time  `gorm:"index" json:"started_at"`                  // Acceptance time
	CompletedAt     *time.Time `json:"completed_at"`                             // Terminal write time
	DurationSeconds int        `json:"duration_seconds"`                         // CompletedAt - StartedAt
	Metadata        string     `json:"metadata" form:"metadata"`                 // JSON extras (poe_only, hold, ...)
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (JobRun) TableName() string {
	return "job_run"
}

// AuditLog records every manual and automated action, including ones that do
// not create a JobRun (PoE mode changes, reboot commands, CRUD on schedules).
type AuditLog struct {
	ID           int64     `json:"id,string" form:"id"`
	ActionType   string    `gorm:"index" json:"action_type" form:"action_type"` // reboot, poe_on, port_cycle, ...
	SiteName     string    `json:"site_name" form:"site_name"`
	DeviceID     string    `json:"device_id" form:"device_id"`
	DeviceName   string    `json:"device_name" form:"device_name"`
	Source       string    `json:"source" form:"source"` // manual, scheduled, api
	UserIP       string    `json:"user_ip" form:"user_ip"`
	Details      string    `json:"details" form:"details"` // JSON
	Success      bool      `json:"success" form:"success"`
	ErrorMessage string    `json:"error_message" form:"error_message"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

// TableName Specify table name
func (AuditLog) TableName() string {
	return "audit_log"
}
