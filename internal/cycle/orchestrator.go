package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/domain"
)

// TopicJobFinished carries the terminal *domain.JobRun on the event bus.
const TopicJobFinished = "job.finished"

// GatewayResolver hands out the port gateway serving a site.
type GatewayResolver interface {
	GatewayFor(ctx context.Context, siteName string) (PortGateway, error)
}

// CycleRequest is the single entry point payload for a port cycle, whether it
// came from an operator or the schedule engine.
type CycleRequest struct {
	Port    PortRef
	PoeOnly bool
	// Hold is the off window before restore; 0 uses the configured default.
	Hold time.Duration
	// Source records what triggered the run.
	Source string
	// ScheduleID links the run to its schedule, 0 for manual runs.
	ScheduleID int64
	// DeviceName and SiteDesc are optional display names for the job record.
	DeviceName string
	SiteDesc   string
}

func (r *CycleRequest) Validate() error {
	if r.Port.SiteName == "" || r.Port.DeviceID == "" {
		return errors.New("cycle request missing site or device")
	}
	if r.Port.PortIdx < 1 {
		return errors.New("cycle request port_idx must be >= 1")
	}
	if r.Hold < 0 {
		return errors.New("cycle request hold must be >= 0")
	}
	switch r.Source {
	case domain.JobSourceManual, domain.JobSourceScheduled, domain.JobSourceManualBulk:
		return nil
	}
	return errors.Errorf("unknown trigger source %q", r.Source)
}

// Orchestrator owns cycle admission and the job record lifecycle. It enforces
// at most one in-flight cycle per port and guarantees every accepted request
// ends with exactly one terminal JobRun write.
type Orchestrator struct {
	repo     JobRepository
	gateways GatewayResolver
	timing   Timing
	node     *snowflake.Node
	bus      EventBus.Bus

	mu       sync.Mutex
	inflight map[PortRef]struct{}
}

func NewOrchestrator(repo JobRepository, gateways GatewayResolver, timing Timing, node *snowflake.Node, bus EventBus.Bus) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		gateways: gateways,
		timing:   timing.normalized(),
		node:     node,
		bus:      bus,
		inflight: make(map[PortRef]struct{}),
	}
}

// Submit runs the cycle to completion and returns the terminal JobRun.
// Returns ErrCycleInFlight when the port is already being cycled.
func (o *Orchestrator) Submit(ctx context.Context, req CycleRequest) (*domain.JobRun, error) {
	job, err := o.accept(ctx, req)
	if err != nil {
		return nil, err
	}
	o.execute(job, req)
	return job, nil
}

// SubmitDetached validates and records the run, then returns immediately
// while the cycle continues in the background. The returned JobRun is the
// running record; its terminal state lands in the repository.
func (o *Orchestrator) SubmitDetached(ctx context.Context, req CycleRequest) (*domain.JobRun, error) {
	job, err := o.accept(ctx, req)
	if err != nil {
		return nil, err
	}
	go o.execute(job, req)
	return job, nil
}

// Running reports whether a cycle is in flight for the port.
func (o *Orchestrator) Running(port PortRef) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[port]
	return busy
}

// ActiveCount returns the number of in-flight cycles.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

func (o *Orchestrator) accept(ctx context.Context, req CycleRequest) (*domain.JobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !o.acquire(req.Port) {
		return nil, ErrCycleInFlight
	}
	job := o.newJob(req)
	if err := o.repo.Create(ctx, job); err != nil {
		o.release(req.Port)
		return nil, errors.Wrap(err, "create job run")
	}
	zap.L().Info("cycle accepted",
		zap.Int64("job_id", job.ID),
		zap.String("port", req.Port.String()),
		zap.String("source", req.Source))
	return job, nil
}

func (o *Orchestrator) newJob(req CycleRequest) *domain.JobRun {
	jobType := domain.JobTypePortCycle
	if req.PoeOnly {
		jobType = domain.JobTypePoECycle
	}
	hold := req.Hold
	if hold <= 0 {
		hold = o.timing.DefaultHold
	}
	name := req.DeviceName
	if name == "" {
		name = req.Port.DeviceID
	}
	siteDesc := req.SiteDesc
	if siteDesc == "" {
		siteDesc = req.Port.SiteName
	}
	meta, _ := jsoniter.MarshalToString(map[string]interface{}{
		"poe_only":     req.PoeOnly,
		"hold_seconds": int(hold.Seconds()),
	})
	return &domain.JobRun{
		ID:         o.node.Generate().Int64(),
		ScheduleID: req.ScheduleID,
		JobType:    jobType,
		SiteName:   req.Port.SiteName,
		SiteDesc:   siteDesc,
		DeviceID:   req.Port.DeviceID,
		DeviceName: fmt.Sprintf("%s Port %d", name, req.Port.PortIdx),
		PortIdx:    req.Port.PortIdx,
		Status:     domain.JobStatusRunning,
		Source:     req.Source,
		StartedAt:  time.Now(),
		Metadata:   meta,
	}
}

// execute drives the machine for one accepted request. Whatever happens,
// including a panic in the gateway, the job record reaches a terminal status
// exactly once and the port slot is released. The run never rides the
// submitter's context: a disconnecting HTTP client must not abort a cycle
// that has already disabled a port, so the machine, the restore write and
// the terminal repository write all use their own context.
func (o *Orchestrator) execute(job *domain.JobRun, req CycleRequest) {
	ctx := context.Background()
	finalized := false
	finalize := func(status, cause string) {
		if finalized {
			return
		}
		finalized = true
		completed := time.Now()
		duration := int(completed.Sub(job.StartedAt).Seconds())
		if err := o.repo.Finalize(ctx, job.ID, status, completed, duration, cause); err != nil {
			zap.L().Error("job run finalize failed",
				zap.Int64("job_id", job.ID), zap.Error(err))
		}
		job.Status = status
		job.CompletedAt = &completed
		job.DurationSeconds = duration
		job.ErrorMessage = cause
		if o.bus != nil {
			o.bus.Publish(TopicJobFinished, job)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("cycle run panic",
				zap.Int64("job_id", job.ID), zap.Any("panic", r))
			finalize(domain.JobStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
		o.release(req.Port)
	}()

	gw, err := o.gateways.GatewayFor(ctx, req.Port.SiteName)
	if err != nil {
		finalize(domain.JobStatusFailed,
			fmt.Sprintf("no gateway for site %s: %v", req.Port.SiteName, err))
		return
	}

	res := NewMachine(gw, o.timing).Run(ctx, Request{
		Port:    req.Port,
		PoeOnly: req.PoeOnly,
		Hold:    req.Hold,
	})
	finalize(statusFor(res.Outcome), res.Cause)
}

func statusFor(out Outcome) string {
	switch out {
	case OutcomeSucceeded:
		return domain.JobStatusSuccess
	case OutcomeTimeoutDown, OutcomeTimeoutUp:
		return domain.JobStatusTimeout
	}
	return domain.JobStatusFailed
}

func (o *Orchestrator) acquire(port PortRef) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[port]; busy {
		return false
	}
	o.inflight[port] = struct{}{}
	return true
}

func (o *Orchestrator) release(port PortRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, port)
}
