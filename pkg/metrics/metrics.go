package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"go.uber.org/zap"
)

// Gauge metric names recorded by the background monitors.
const (
	SystemCpuUsage    = "system_cpu_usage"
	SystemMemUsage    = "system_mem_usage"
	ProcessCpuUsage   = "process_cpu_usage"
	ProcessMemUsage   = "process_mem_usage"
	CycleActiveCount  = "cycle_active_count"
	ControllerLatency = "controller_latency"
)

var (
	mu      sync.RWMutex
	storage tstorage.Storage
)

// InitMetrics opens the embedded time series store under the workdir.
func InitMetrics(workdir string) error {
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "data", "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	mu.Lock()
	storage = s
	mu.Unlock()
	return nil
}

// SetGauge records one sample at the current time. A no-op before
// InitMetrics, so monitors can run in tests without a store.
func SetGauge(name string, value float64, labels ...tstorage.Label) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return
	}
	err := s.InsertRows([]tstorage.Row{{
		Metric: name,
		Labels: labels,
		DataPoint: tstorage.DataPoint{
			Timestamp: time.Now().Unix(),
			Value:     value,
		},
	}})
	if err != nil {
		zap.L().Warn("metric insert failed", zap.String("metric", name), zap.Error(err))
	}
}

// Range reads samples for a metric between two unix timestamps.
func Range(name string, start, end int64, labels ...tstorage.Label) ([]*tstorage.DataPoint, error) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	points, err := s.Select(name, labels, start, end)
	if err == tstorage.ErrNoDataPoints {
		return nil, nil
	}
	return points, err
}

// Close flushes and closes the store.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
