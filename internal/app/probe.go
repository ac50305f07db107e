package app

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	pinglib "github.com/go-ping/ping"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/domain"
	"github.com/netopshq/switchyard/pkg/metrics"
)

// SchedProbeControllers measures reachability of every enabled controller.
func (a *Application) SchedProbeControllers() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var controllers []domain.Controller
	a.gormDB.Where("status = ?", "enabled").Find(&controllers)
	if len(controllers) == 0 {
		return
	}

	const defaultMaxWorkers = 20
	maxWorkers := int(a.GetSettingsInt64Value("scheduler", "MaxWorkers"))
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for _, ctrl := range controllers {
		wg.Add(1)
		sem <- struct{}{}
		go func(c domain.Controller) {
			defer wg.Done()
			defer func() { <-sem }()
			a.probeController(&c)
		}(ctrl)
	}
	wg.Wait()
}

// ProbeController runs an immediate reachability probe for a controller
func (a *Application) ProbeController(id int64) error {
	var ctrl domain.Controller
	if err := a.gormDB.Where("id = ?", id).First(&ctrl).Error; err != nil {
		return errors.Wrapf(err, "controller %d", id)
	}
	a.probeController(&ctrl)
	return nil
}

func (a *Application) probeController(ctrl *domain.Controller) {
	latency, err := pingController(ctrl.BaseURL)
	result, msg := "ok", ""
	if err != nil {
		result, msg = "failed", err.Error()
		latency = -1
	} else {
		metrics.SetGauge(metrics.ControllerLatency, float64(latency))
	}

	uerr := a.gormDB.Model(&domain.Controller{}).Where("id = ?", ctrl.ID).
		Updates(map[string]interface{}{
			"latency":           latency,
			"last_probe_at":     time.Now(),
			"last_probe_result": result,
			"last_probe_msg":    msg,
		}).Error
	if uerr != nil {
		zap.L().Error("controller probe update failed",
			zap.Int64("controller_id", ctrl.ID), zap.Error(uerr))
		return
	}
	zap.L().Debug("controller probed",
		zap.String("site", ctrl.SiteName),
		zap.String("result", result),
		zap.Int("latency_ms", latency))
}

// pingController returns latency in ms, preferring ICMP/UDP ping and falling
// back to a TCP connect against the controller's own port.
func pingController(baseURL string) (int, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return -1, errors.Errorf("invalid controller url %q", baseURL)
	}
	host := u.Hostname()

	pinger, err := pinglib.NewPinger(host)
	if err == nil {
		pinger.Count = 3
		pinger.Timeout = 3 * time.Second
		// Unprivileged mode so the process can run without root when supported
		pinger.SetPrivileged(false)
		if err := pinger.Run(); err == nil {
			stats := pinger.Statistics()
			if stats.PacketsRecv > 0 {
				return int(stats.AvgRtt.Milliseconds()), nil
			}
		}
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	addr := fmt.Sprintf("%s:%s", host, port)
	start := time.Now()
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return -1, errors.Wrapf(err, "controller %s unreachable", addr)
	}
	conn.Close()
	return int(time.Since(start).Milliseconds()), nil
}
