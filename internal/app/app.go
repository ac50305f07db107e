package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/netopshq/switchyard/config"
	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/notify"
	"github.com/netopshq/switchyard/internal/unifi"
	"github.com/netopshq/switchyard/pkg/metrics"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	configManager *ConfigManager
	idNode        *snowflake.Node
	bus           EventBus.Bus
	gateways      *unifi.Pool
	jobRepo       cycle.JobRepository
	orchestrator  *cycle.Orchestrator
	notifier      *notify.Telegram
	bulkPool      *ants.Pool
}

// Ensure Application implements all interfaces
var (
	_ DBProvider            = (*Application)(nil)
	_ ConfigProvider        = (*Application)(nil)
	_ SettingsProvider      = (*Application)(nil)
	_ SchedulerProvider     = (*Application)(nil)
	_ ConfigManagerProvider = (*Application)(nil)
	_ OrchestratorProvider  = (*Application)(nil)
	_ GatewayProvider       = (*Application)(nil)
	_ NotifierProvider      = (*Application)(nil)
	_ AppContext            = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
	a.jobRepo = cycle.NewGormJobRepository(db)
	a.gateways = unifi.NewPool(db)
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	// Ensure database schema is migrated before loading configs
	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.checkSettings()

	// Initialize the configuration manager
	a.configManager = NewConfigManager(a)

	a.idNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}

	a.bus = EventBus.New()
	a.gateways = unifi.NewPool(a.gormDB)
	a.jobRepo = cycle.NewGormJobRepository(a.gormDB)
	a.orchestrator = cycle.NewOrchestrator(a.jobRepo, a.gateways, a.cycleTiming(), a.idNode, a.bus)

	a.notifier = notify.NewTelegram(cfg.Telegram)
	if err := a.notifier.Subscribe(a.bus); err != nil {
		zap.S().Warnf("telegram subscription failed: %v", err)
	}

	workers := cfg.Cycle.BulkMaxWorkers
	if workers <= 0 {
		workers = 4
	}
	a.bulkPool, err = ants.NewPool(workers)
	if err != nil {
		panic(err)
	}

	a.initJob()
}

// cycleTiming resolves the cycle bounds from system settings, seeded at
// first boot from the config file.
func (a *Application) cycleTiming() cycle.Timing {
	return cycle.Timing{
		PollInterval: time.Duration(a.configManager.GetInt64("cycle", "PollIntervalSeconds")) * time.Second,
		DownTimeout:  time.Duration(a.configManager.GetInt64("cycle", "DownTimeoutSeconds")) * time.Second,
		UpTimeout:    time.Duration(a.configManager.GetInt64("cycle", "UpTimeoutSeconds")) * time.Second,
		DefaultHold:  time.Duration(a.configManager.GetInt64("cycle", "DefaultHoldSeconds")) * time.Second,
	}
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Orchestrator returns the cycle orchestrator
func (a *Application) Orchestrator() *cycle.Orchestrator {
	return a.orchestrator
}

// Gateways returns the controller client pool
func (a *Application) Gateways() *unifi.Pool {
	return a.gateways
}

// JobRepo returns the job run repository
func (a *Application) JobRepo() cycle.JobRepository {
	return a.jobRepo
}

// Bus returns the application event bus
func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Notifier returns the telegram notifier
func (a *Application) Notifier() *notify.Telegram {
	return a.notifier
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}

	if a.bulkPool != nil {
		a.bulkPool.Release()
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
