package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
)

// StartSchedulerService runs enabled maintenance schedules periodically
func (a *Application) StartSchedulerService(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runDueCycleSchedules()
				a.runDueRebootSchedules()
			}
		}
	}()
}

// runDueCycleSchedules submits every due cycle schedule and books its next
// occurrence. Submission is detached; the orchestrator owns the run from
// here, including the case where the port is already being cycled.
func (a *Application) runDueCycleSchedules() {
	var schedules []domain.CycleSchedule
	a.gormDB.Where("enabled = ?", true).Find(&schedules)
	now := time.Now()
	for i := range schedules {
		sched := &schedules[i]
		if sched.NextRunAt.IsZero() {
			a.bookNextCycleRun(sched, now)
			continue
		}
		if now.Before(sched.NextRunAt) {
			continue
		}
		if err := a.submitCycleSchedule(sched); err != nil {
			zap.L().Warn("cycle schedule skipped",
				zap.Int64("schedule_id", sched.ID),
				zap.String("name", sched.Name),
				zap.Error(err))
		}
		a.bookNextCycleRun(sched, now)
	}
}

func (a *Application) submitCycleSchedule(sched *domain.CycleSchedule) error {
	req := cycle.CycleRequest{
		Port: cycle.PortRef{
			SiteName: sched.SiteName,
			DeviceID: sched.DeviceID,
			PortIdx:  sched.PortIdx,
		},
		PoeOnly:    sched.PoeOnly,
		Hold:       time.Duration(sched.HoldSeconds) * time.Second,
		Source:     domain.JobSourceScheduled,
		ScheduleID: sched.ID,
	}
	// Display names are cosmetic; resolution failure never blocks the run.
	if client, err := a.gateways.ForSite(context.Background(), sched.SiteName); err == nil {
		if dev, err := client.DeviceByID(context.Background(), sched.DeviceID); err == nil {
			req.DeviceName = dev.DisplayName()
		}
	}
	_, err := a.orchestrator.SubmitDetached(context.Background(), req)
	return err
}

func (a *Application) bookNextCycleRun(sched *domain.CycleSchedule, now time.Time) {
	next, err := nextRunTime(sched.Frequency, sched.TimeOfDay, sched.DayOfWeek, sched.DayOfMonth, now)
	if err != nil {
		zap.L().Error("cycle schedule has invalid timing",
			zap.Int64("schedule_id", sched.ID), zap.Error(err))
		return
	}
	a.gormDB.Model(&domain.CycleSchedule{}).Where("id = ?", sched.ID).
		Updates(map[string]interface{}{"last_run_at": now, "next_run_at": next})
}

func (a *Application) runDueRebootSchedules() {
	var schedules []domain.RebootSchedule
	a.gormDB.Where("enabled = ?", true).Find(&schedules)
	now := time.Now()
	for i := range schedules {
		sched := &schedules[i]
		if sched.NextRunAt.IsZero() {
			a.bookNextRebootRun(sched, now)
			continue
		}
		if now.Before(sched.NextRunAt) {
			continue
		}
		go a.runRebootSchedule(sched)
		a.bookNextRebootRun(sched, now)
	}
}

func (a *Application) bookNextRebootRun(sched *domain.RebootSchedule, now time.Time) {
	next, err := nextRunTime(sched.Frequency, sched.TimeOfDay, sched.DayOfWeek, sched.DayOfMonth, now)
	if err != nil {
		zap.L().Error("reboot schedule has invalid timing",
			zap.Int64("schedule_id", sched.ID), zap.Error(err))
		return
	}
	a.gormDB.Model(&domain.RebootSchedule{}).Where("id = ?", sched.ID).
		Updates(map[string]interface{}{"last_run_at": now, "next_run_at": next})
}

// RunCycleScheduleNow triggers a cycle schedule immediately by ID
func (a *Application) RunCycleScheduleNow(id int64) error {
	var sched domain.CycleSchedule
	if err := a.gormDB.Where("id = ?", id).First(&sched).Error; err != nil {
		return errors.Wrapf(err, "cycle schedule %d", id)
	}
	return a.submitCycleSchedule(&sched)
}

// RunRebootScheduleNow triggers a reboot schedule immediately by ID
func (a *Application) RunRebootScheduleNow(id int64) error {
	var sched domain.RebootSchedule
	if err := a.gormDB.Where("id = ?", id).First(&sched).Error; err != nil {
		return errors.Wrapf(err, "reboot schedule %d", id)
	}
	go a.runRebootSchedule(&sched)
	return nil
}

// nextRunTime computes the next occurrence after `from` for a schedule's
// frequency settings. timeOfDay is HH:MM in the process location.
func nextRunTime(frequency, timeOfDay string, dayOfWeek, dayOfMonth int, from time.Time) (time.Time, error) {
	switch frequency {
	case domain.FrequencyHourly:
		return from.Truncate(time.Hour).Add(time.Hour), nil
	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly:
	default:
		return time.Time{}, errors.Errorf("unknown frequency %q", frequency)
	}

	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	switch frequency {
	case domain.FrequencyDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil
	case domain.FrequencyWeekly:
		if dayOfWeek < 0 || dayOfWeek > 6 {
			return time.Time{}, errors.Errorf("day_of_week %d out of range", dayOfWeek)
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		ahead := (dayOfWeek - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, ahead)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil
	default: // monthly
		if dayOfMonth < 1 || dayOfMonth > 31 {
			return time.Time{}, errors.Errorf("day_of_month %d out of range", dayOfMonth)
		}
		next := time.Date(from.Year(), from.Month(), clampDay(from.Year(), from.Month(), dayOfMonth),
			hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			y, m := from.Year(), from.Month()+1
			if m > 12 {
				y, m = y+1, 1
			}
			next = time.Date(y, m, clampDay(y, m, dayOfMonth), hour, minute, 0, 0, from.Location())
		}
		return next, nil
	}
}

func parseTimeOfDay(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("invalid time_of_day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Errorf("invalid time_of_day %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Errorf("invalid time_of_day %q", s)
	}
	return hour, minute, nil
}

// clampDay keeps a monthly schedule on short months rather than rolling over.
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
