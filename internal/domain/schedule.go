package domain

import "time"

// Schedule frequency values
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// CycleSchedule is a recurring port-cycle job definition. The scheduler
// engine evaluates NextRunAt and submits due schedules to the orchestrator;
// it never performs the cycle itself.
type CycleSchedule struct {
	ID          int64     `json:"id,string" form:"id"`
	Name        string    `json:"name" form:"name"`
	Description string    `json:"description" form:"description"`
	SiteName    string    `gorm:"index" json:"site_name" form:"site_name"` // Controller site hosting the target switch
	DeviceID    string    `json:"device_id" form:"device_id"`              // Target switch ID or MAC
	PortIdx     int       `json:"port_idx" form:"port_idx"`                // Target port index (1-based)
	PoeOnly     bool      `json:"poe_only" form:"poe_only"`                // Cycle only the power feed, keep link config
	HoldSeconds int       `json:"hold_seconds" form:"hold_seconds"`        // Seconds the port stays disabled
	Frequency   string    `json:"frequency" form:"frequency"`              // hourly/daily/weekly/monthly
	TimeOfDay   string    `json:"time_of_day" form:"time_of_day"`          // HH:MM
	DayOfWeek   int       `json:"day_of_week" form:"day_of_week"`          // 0-6 for weekly
	DayOfMonth  int       `json:"day_of_month" form:"day_of_month"`        // 1-31 for monthly
	Enabled     bool      `json:"enabled" form:"enabled"`
	LastRunAt   time.Time `json:"last_run_at"`
	NextRunAt   time.Time `gorm:"index" json:"next_run_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (CycleSchedule) TableName() string {
	return "cycle_schedule"
}

// RebootSchedule is a recurring device-reboot job definition covering one or
// more devices at a site, executed rolling (one at a time) or in parallel.
type RebootSchedule struct {
	ID                int64     `json:"id,string" form:"id"`
	Name              string    `json:"name" form:"name"`
	Description       string    `json:"description" form:"description"`
	SiteName          string    `gorm:"index" json:"site_name" form:"site_name"`
	DeviceIDs         string    `json:"device_ids" form:"device_ids"` // JSON array of device IDs
	RollingMode       bool      `json:"rolling_mode" form:"rolling_mode"`
	DelayBetween      int       `json:"delay_between" form:"delay_between"`   // Seconds between rolling reboots
	MaxWaitTime       int       `json:"max_wait_time" form:"max_wait_time"`   // Max seconds to wait for device online
	ContinueOnFailure bool      `json:"continue_on_failure" form:"continue_on_failure"`
	Frequency         string    `json:"frequency" form:"frequency"`
	TimeOfDay         string    `json:"time_of_day" form:"time_of_day"`
	DayOfWeek         int       `json:"day_of_week" form:"day_of_week"`
	DayOfMonth        int       `json:"day_of_month" form:"day_of_month"`
	Enabled           bool      `json:"enabled" form:"enabled"`
	LastRunAt         time.Time `json:"last_run_at"`
	NextRunAt         time.Time `gorm:"index" json:"next_run_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName Specify table name
func (RebootSchedule) TableName() string {
	return "reboot_schedule"
}

// ScheduleTemplate is a reusable preset of timing plus cycle or reboot
// parameters used when creating schedules from the console.
type ScheduleTemplate struct {
	ID           int64     `json:"id,string" form:"id"`
	Name         string    `json:"name" form:"name"`
	Description  string    `json:"description" form:"description"`
	TemplateType string    `json:"template_type" form:"template_type"` // port_cycle | device_reboot
	Frequency    string    `json:"frequency" form:"frequency"`
	TimeOfDay    string    `json:"time_of_day" form:"time_of_day"`
	DayOfWeek    int       `json:"day_of_week" form:"day_of_week"`
	DayOfMonth   int       `json:"day_of_month" form:"day_of_month"`
	Config       string    `json:"config" form:"config"` // JSON type-specific settings
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName Specify table name
func (ScheduleTemplate) TableName() string {
	return "schedule_template"
}
