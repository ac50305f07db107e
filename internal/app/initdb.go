package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/domain"
)

type settingSeed struct {
	category string
	name     string
	value    string
	remark   string
}

// defaultSettings returns the seeded sys_config defaults. Timing seeds come
// from the config file so a tuned deployment starts with its own values.
func (a *Application) defaultSettings() []settingSeed {
	cy := a.appConfig.Cycle
	return []settingSeed{
		{"cycle", "PollIntervalSeconds", fmt.Sprintf("%d", cy.PollIntervalSeconds), "Seconds between port state polls"},
		{"cycle", "DownTimeoutSeconds", fmt.Sprintf("%d", cy.DownTimeoutSeconds), "Give up waiting for port down after this many seconds"},
		{"cycle", "UpTimeoutSeconds", fmt.Sprintf("%d", cy.UpTimeoutSeconds), "Give up waiting for port up after this many seconds"},
		{"cycle", "DefaultHoldSeconds", fmt.Sprintf("%d", cy.DefaultHoldSeconds), "Default off window before restore"},
		{"cycle", "BulkStaggerSeconds", fmt.Sprintf("%d", cy.BulkStaggerSeconds), "Delay between starts in a bulk site run"},
		{"scheduler", "ProbeIntervalSeconds", "300", "Seconds between controller reachability probes"},
		{"scheduler", "MaxWorkers", "20", "Max concurrent probe workers"},
		{"audit", "RetentionDays", "365", "Days to keep audit log entries"},
	}
}

// checkSettings seeds missing sys_config rows, never touching existing ones.
func (a *Application) checkSettings() {
	for sortid, seed := range a.defaultSettings() {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", seed.category, seed.name).
			Count(&count)
		if count > 0 {
			continue
		}
		a.gormDB.Create(&domain.SysConfig{
			Sort:   sortid,
			Type:   seed.category,
			Name:   seed.name,
			Value:  seed.value,
			Remark: seed.remark,
		})
		zap.L().Info("initialized config",
			zap.String("key", seed.category+"."+seed.name),
			zap.String("default", seed.value))
	}
}
