package app

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/internal/unifi"
)

const (
	rebootOnlinePoll   = 15 * time.Second
	defaultRebootWait  = 10 * time.Minute
	defaultRebootDelay = 60 * time.Second
)

// runRebootSchedule reboots every device of a schedule. Rolling mode reboots
// one device, waits for it to report back online, then moves on; parallel
// mode fires them together. Every device gets its own job record.
func (a *Application) runRebootSchedule(sched *domain.RebootSchedule) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error("reboot schedule panic:", err)
		}
	}()

	var deviceIDs []string
	if err := jsoniter.UnmarshalFromString(sched.DeviceIDs, &deviceIDs); err != nil || len(deviceIDs) == 0 {
		zap.L().Error("reboot schedule has no usable device list",
			zap.Int64("schedule_id", sched.ID), zap.Error(err))
		return
	}

	ctx := context.Background()
	client, err := a.gateways.ForSite(ctx, sched.SiteName)
	if err != nil {
		zap.L().Error("reboot schedule has no reachable controller",
			zap.Int64("schedule_id", sched.ID), zap.Error(err))
		return
	}

	maxWait := time.Duration(sched.MaxWaitTime) * time.Second
	if maxWait <= 0 {
		maxWait = defaultRebootWait
	}
	delay := time.Duration(sched.DelayBetween) * time.Second
	if delay <= 0 {
		delay = defaultRebootDelay
	}

	zap.L().Info("reboot schedule started",
		zap.Int64("schedule_id", sched.ID),
		zap.String("name", sched.Name),
		zap.Int("devices", len(deviceIDs)),
		zap.Bool("rolling", sched.RollingMode))

	if sched.RollingMode {
		for i, id := range deviceIDs {
			ok := a.rebootDevice(ctx, client, sched, id, maxWait, true)
			if !ok && !sched.ContinueOnFailure {
				zap.L().Warn("reboot schedule stopped on failure",
					zap.Int64("schedule_id", sched.ID), zap.String("device_id", id))
				return
			}
			if i < len(deviceIDs)-1 {
				time.Sleep(delay)
			}
		}
		return
	}

	for _, id := range deviceIDs {
		go a.rebootDevice(ctx, client, sched, id, maxWait, false)
	}
}

// rebootDevice restarts one device and records the attempt. When wait is set
// the job stays running until the device reports online again or the window
// elapses.
func (a *Application) rebootDevice(ctx context.Context, client *unifi.Client, sched *domain.RebootSchedule, deviceID string, maxWait time.Duration, wait bool) bool {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error("device reboot panic:", err)
		}
	}()

	name, mac := deviceID, deviceID
	if dev, err := client.DeviceByID(ctx, deviceID); err == nil {
		name = dev.DisplayName()
		mac = dev.Mac
	}

	job := &domain.JobRun{
		ID:         a.idNode.Generate().Int64(),
		ScheduleID: sched.ID,
		JobType:    domain.JobTypeReboot,
		SiteName:   sched.SiteName,
		SiteDesc:   sched.SiteName,
		DeviceID:   deviceID,
		DeviceName: name,
		Status:     domain.JobStatusRunning,
		Source:     domain.JobSourceScheduled,
		StartedAt:  time.Now(),
	}
	if err := a.jobRepo.Create(ctx, job); err != nil {
		zap.L().Error("reboot job create failed", zap.Error(err))
		return false
	}

	finalize := func(status, cause string) {
		completed := time.Now()
		duration := int(completed.Sub(job.StartedAt).Seconds())
		if err := a.jobRepo.Finalize(ctx, job.ID, status, completed, duration, cause); err != nil {
			zap.L().Error("reboot job finalize failed", zap.Int64("job_id", job.ID), zap.Error(err))
		}
		job.Status = status
		job.CompletedAt = &completed
		job.DurationSeconds = duration
		job.ErrorMessage = cause
		a.bus.Publish(cycle.TopicJobFinished, job)
	}

	if err := client.Reboot(ctx, mac); err != nil {
		finalize(domain.JobStatusFailed, fmt.Sprintf("reboot command failed: %v", err))
		return false
	}

	if !wait {
		finalize(domain.JobStatusSuccess, "")
		return true
	}

	if client.WaitDeviceOnline(ctx, deviceID, maxWait, rebootOnlinePoll) {
		finalize(domain.JobStatusSuccess, "")
		a.notifier.NotifyDeviceBackOnline(name, time.Since(job.StartedAt))
		return true
	}

	finalize(domain.JobStatusTimeout,
		fmt.Sprintf("device did not report online within %s of reboot", maxWait))
	a.notifier.NotifyDeviceRebootTimeout(name, maxWait)
	return false
}
