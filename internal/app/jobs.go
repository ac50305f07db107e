package app

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
		go a.SchedCycleMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@every 5m", func() {
		go a.SchedReapStaleJobs()
		go a.SchedProbeControllers()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge(metrics.SystemCpuUsage, _cpuuse[0])
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge(metrics.SystemMemUsage, float64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge(metrics.ProcessCpuUsage, cpuuse)
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge(metrics.ProcessMemUsage, float64(meminfo.RSS/1024/1024))
	}
}

// SchedCycleMonitorTask records how many cycles are in flight
func (a *Application) SchedCycleMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if a.orchestrator != nil {
		metrics.SetGauge(metrics.CycleActiveCount, float64(a.orchestrator.ActiveCount()))
	}
}

// SchedReapStaleJobs fails job records orphaned by a crash mid-run. The
// cutoff is the worst legitimate run: full down wait, hold, up wait, plus a
// generous margin for slow controllers.
func (a *Application) SchedReapStaleJobs() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	t := a.cycleTiming()
	bound := t.DownTimeout + t.UpTimeout + t.DefaultHold + 10*time.Minute
	cutoff := time.Now().Add(-bound)
	n, err := a.jobRepo.FailStale(context.Background(), cutoff,
		"job abandoned: process restarted while the run was in flight")
	if err != nil {
		zap.L().Error("stale job reap failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Warn("reaped stale job runs", zap.Int64("count", n))
	}
}

// SchedClearExpireData applies the audit retention policy. Job history rows
// are kept indefinitely.
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	idays := a.configManager.GetInt("audit", "RetentionDays")
	if idays == 0 {
		idays = 365
	}
	a.gormDB.
		Where("timestamp < ? ", time.Now().
			Add(-time.Hour*24*time.Duration(idays))).Delete(&domain.AuditLog{})
}
