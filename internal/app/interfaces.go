package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/netopshq/switchyard/config"
	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/notify"
	"github.com/netopshq/switchyard/internal/unifi"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides system settings access
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	GetSettingsInt64Value(category, key string) int64
	GetSettingsBoolValue(category, key string) bool
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ConfigManagerProvider provides configuration manager access
type ConfigManagerProvider interface {
	ConfigMgr() *ConfigManager
}

// OrchestratorProvider provides the cycle orchestrator
type OrchestratorProvider interface {
	Orchestrator() *cycle.Orchestrator
	JobRepo() cycle.JobRepository
}

// GatewayProvider provides controller client access
type GatewayProvider interface {
	Gateways() *unifi.Pool
}

// NotifierProvider provides the outbound notifier
type NotifierProvider interface {
	Notifier() *notify.Telegram
}

// AppContext combines all provider interfaces for full application context.
// Handlers should depend on specific providers or this combined interface.
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	ConfigManagerProvider
	OrchestratorProvider
	GatewayProvider
	NotifierProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// RunCycleScheduleNow triggers a cycle schedule immediately by ID
	RunCycleScheduleNow(id int64) error
	// RunRebootScheduleNow triggers a reboot schedule immediately by ID
	RunRebootScheduleNow(id int64) error
	// RunSiteCycles starts every enabled cycle schedule for a site,
	// returning how many were started
	RunSiteCycles(ctx context.Context, siteName string) (int, error)
	// ProbeController runs an immediate reachability probe for a controller
	ProbeController(id int64) error
}
