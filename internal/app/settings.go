package app

import (
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/netopshq/switchyard/internal/domain"
)

const settingsCacheTTL = 30 * time.Second

// ConfigManager reads system settings from the sys_config table with a short
// cache, so hot paths do not hit the database per lookup. Writes go through
// Set and invalidate the cache.
type ConfigManager struct {
	app *Application

	mu       sync.RWMutex
	cache    map[string]string
	cachedAt time.Time
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app}
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.lookup(category + "/" + name)
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.lookup(category + "/" + name))
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.lookup(category + "/" + name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.lookup(category + "/" + name))
}

// Set writes one setting, creating the row when absent.
func (m *ConfigManager) Set(category, name, value string) error {
	var cfg domain.SysConfig
	db := m.app.DB()
	err := db.Where("type = ? AND name = ?", category, name).First(&cfg).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		err = db.Create(&domain.SysConfig{
			Type:      category,
			Name:      name,
			Value:     value,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}).Error
	case err == nil:
		err = db.Model(&domain.SysConfig{}).
			Where("id = ?", cfg.ID).
			Updates(map[string]interface{}{"value": value, "updated_at": time.Now()}).Error
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cache = nil
	m.mu.Unlock()
	return nil
}

func (m *ConfigManager) lookup(key string) string {
	m.mu.RLock()
	if m.cache != nil && time.Since(m.cachedAt) < settingsCacheTTL {
		v := m.cache[key]
		m.mu.RUnlock()
		return v
	}
	m.mu.RUnlock()

	var rows []domain.SysConfig
	if err := m.app.DB().Find(&rows).Error; err != nil {
		zap.L().Error("settings load failed", zap.Error(err))
		return ""
	}
	fresh := make(map[string]string, len(rows))
	for _, row := range rows {
		fresh[row.Type+"/"+row.Name] = row.Value
	}

	m.mu.Lock()
	m.cache = fresh
	m.cachedAt = time.Now()
	m.mu.Unlock()
	return fresh[key]
}
