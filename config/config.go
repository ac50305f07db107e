package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AppConfig is the top-level application configuration, normally loaded
// from a YAML file with environment variable overrides applied on top.
type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	Cycle    CycleConfig    `yaml:"cycle" json:"cycle"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
}

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// CycleConfig carries the port-cycle timing knobs. The defaults reflect
// observed switch inform-cycle latency on the reference hardware; they are
// operational tuning, not correctness constraints.
type CycleConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	DownTimeoutSeconds  int `yaml:"down_timeout_seconds" json:"down_timeout_seconds"`
	UpTimeoutSeconds    int `yaml:"up_timeout_seconds" json:"up_timeout_seconds"`
	DefaultHoldSeconds  int `yaml:"default_hold_seconds" json:"default_hold_seconds"`
	BulkStaggerSeconds  int `yaml:"bulk_stagger_seconds" json:"bulk_stagger_seconds"`
	BulkMaxWorkers      int `yaml:"bulk_max_workers" json:"bulk_max_workers"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BotToken string `yaml:"bot_token" json:"bot_token"`
	ChatID   string `yaml:"chat_id" json:"chat_id"`
}

// DefaultAppConfig returns a configuration suitable for local development.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "switchyard",
			Location: "Asia/Shanghai",
			Workdir:  "/var/switchyard",
			Debug:    false,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 1890,
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "switchyard",
			User:     "postgres",
			Passwd:   "",
			MaxConn:  100,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/switchyard/switchyard.log",
		},
		Cycle: CycleConfig{
			PollIntervalSeconds: 10,
			DownTimeoutSeconds:  180,
			UpTimeoutSeconds:    300,
			DefaultHoldSeconds:  30,
			BulkStaggerSeconds:  5,
			BulkMaxWorkers:      4,
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
	}
}

// LoadConfig reads a YAML configuration file and merges it over the defaults.
// A missing file is not an error; defaults plus environment overrides apply.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "config: parse %s failed: %v\n", cfile, err)
			}
		}
	}
	setEnvValue("SWITCHYARD_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("SWITCHYARD_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvValue("SWITCHYARD_DB_TYPE", &cfg.Database.Type)
	setEnvValue("SWITCHYARD_DB_HOST", &cfg.Database.Host)
	setEnvValue("SWITCHYARD_DB_NAME", &cfg.Database.Name)
	setEnvValue("SWITCHYARD_DB_USER", &cfg.Database.User)
	setEnvValue("SWITCHYARD_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("SWITCHYARD_TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	setEnvValue("SWITCHYARD_TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID)
	setEnvInt64Value("SWITCHYARD_DB_PORT", &cfg.Database.Port)
	setEnvInt64Value("SWITCHYARD_WEB_PORT", &cfg.Web.Port)
	return cfg
}

// InitDirs creates the working directories the application expects.
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.System.Workdir, 0755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "logs"), 0755)
}

func setEnvValue(name string, val *string) {
	if v := os.Getenv(name); v != "" {
		*val = v
	}
}

func setEnvInt64Value(name string, val *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
		*val = i
	}
}
