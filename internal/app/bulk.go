package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
)

// RunSiteCycles starts every enabled cycle schedule for a site through the
// worker pool. Starts are staggered so one site run does not flood the
// controller; pool size bounds how many cycles hold a worker at once. A port
// already being cycled is counted as skipped, not failed.
func (a *Application) RunSiteCycles(ctx context.Context, siteName string) (int, error) {
	var schedules []domain.CycleSchedule
	err := a.gormDB.WithContext(ctx).
		Where("site_name = ? AND enabled = ?", siteName, true).
		Find(&schedules).Error
	if err != nil {
		return 0, errors.Wrapf(err, "load cycle schedules for site %s", siteName)
	}
	if len(schedules) == 0 {
		return 0, nil
	}

	stagger := time.Duration(a.GetSettingsInt64Value("cycle", "BulkStaggerSeconds")) * time.Second
	if stagger <= 0 {
		stagger = 5 * time.Second
	}

	started := 0
	for i := range schedules {
		sched := schedules[i]
		delay := time.Duration(i) * stagger
		err := a.bulkPool.Submit(func() {
			time.Sleep(delay)
			req := cycle.CycleRequest{
				Port: cycle.PortRef{
					SiteName: sched.SiteName,
					DeviceID: sched.DeviceID,
					PortIdx:  sched.PortIdx,
				},
				PoeOnly:    sched.PoeOnly,
				Hold:       time.Duration(sched.HoldSeconds) * time.Second,
				Source:     domain.JobSourceManualBulk,
				ScheduleID: sched.ID,
			}
			if _, err := a.orchestrator.Submit(context.Background(), req); err != nil {
				if errors.Is(err, cycle.ErrCycleInFlight) {
					zap.L().Info("bulk run skipped busy port",
						zap.Int64("schedule_id", sched.ID),
						zap.String("port", req.Port.String()))
					return
				}
				zap.L().Error("bulk cycle failed to start",
					zap.Int64("schedule_id", sched.ID), zap.Error(err))
			}
		})
		if err != nil {
			zap.L().Error("bulk pool submit failed", zap.Error(err))
			continue
		}
		started++
	}

	zap.L().Info("site bulk run started",
		zap.String("site", siteName), zap.Int("scheduled", started))
	return started, nil
}
