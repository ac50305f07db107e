package cycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/netopshq/switchyard/internal/domain"
)

type finalRecord struct {
	status string
	cause  string
	count  int
}

type fakeRepo struct {
	mu        sync.Mutex
	created   []*domain.JobRun
	finalized map[int64]*finalRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{finalized: make(map[int64]*finalRecord)}
}

func (r *fakeRepo) Create(ctx context.Context, job *domain.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.created = append(r.created, &cp)
	return nil
}

func (r *fakeRepo) Finalize(ctx context.Context, id int64, status string, completedAt time.Time, durationSeconds int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, okRec := r.finalized[id]
	if !okRec {
		rec = &finalRecord{}
		r.finalized[id] = rec
	}
	rec.status = status
	rec.cause = errorMessage
	rec.count++
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*domain.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.created {
		if job.ID == id {
			cp := *job
			return &cp, nil
		}
	}
	return nil, ErrPortNotFound
}

func (r *fakeRepo) List(ctx context.Context, f JobFilter) ([]domain.JobRun, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	return 0, nil
}

func (r *fakeRepo) terminal(id int64) *finalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized[id]
}

type fakeResolver struct {
	gw  PortGateway
	err error
}

func (f *fakeResolver) GatewayFor(ctx context.Context, siteName string) (PortGateway, error) {
	return f.gw, f.err
}

// blockingGateway parks the snapshot read until released, so tests can hold a
// cycle in flight deterministically.
type blockingGateway struct {
	fakeGateway
	release chan struct{}
}

func (g *blockingGateway) GetPortOverride(ctx context.Context, ref PortRef) (*OverrideSnapshot, error) {
	<-g.release
	return g.fakeGateway.GetPortOverride(ctx, ref)
}

// panicGateway blows up on first use.
type panicGateway struct{ fakeGateway }

func (g *panicGateway) GetPortOverride(ctx context.Context, ref PortRef) (*OverrideSnapshot, error) {
	panic("controller client bug")
}

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	return node
}

func testRequest() CycleRequest {
	return CycleRequest{
		Port:   testPort(),
		Source: domain.JobSourceManual,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOrchestratorSubmitRecordsTerminalState(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{raw: `{"port_idx":5}`}
	o := NewOrchestrator(repo, &fakeResolver{gw: gw}, testTiming(), testNode(t), nil)

	job, err := o.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusSuccess {
		t.Errorf("job status = %q, want success", job.Status)
	}
	if job.CompletedAt == nil {
		t.Error("terminal job must carry a completion time")
	}

	rec := repo.terminal(job.ID)
	if rec == nil || rec.status != domain.JobStatusSuccess {
		t.Fatalf("repository terminal record = %+v, want success", rec)
	}
	if rec.count != 1 {
		t.Errorf("finalize writes = %d, want exactly 1", rec.count)
	}
	if o.Running(testPort()) {
		t.Error("port slot still held after completion")
	}
}

func TestOrchestratorRejectsSecondCycleForSamePort(t *testing.T) {
	repo := newFakeRepo()
	gw := &blockingGateway{release: make(chan struct{})}
	gw.raw = `{"port_idx":5}`
	o := NewOrchestrator(repo, &fakeResolver{gw: gw}, testTiming(), testNode(t), nil)

	first, err := o.SubmitDetached(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitFor(t, func() bool { return o.Running(testPort()) }, "first cycle never started")

	if _, err := o.Submit(context.Background(), testRequest()); err != ErrCycleInFlight {
		t.Fatalf("second submit error = %v, want ErrCycleInFlight", err)
	}

	// A different port on the same device is not blocked.
	other := testRequest()
	other.Port.PortIdx = 6
	otherJob, err := o.SubmitDetached(context.Background(), other)
	if err != nil {
		t.Fatalf("different port rejected: %v", err)
	}

	close(gw.release)
	waitFor(t, func() bool { return repo.terminal(first.ID) != nil }, "first cycle never finalized")
	waitFor(t, func() bool { return repo.terminal(otherJob.ID) != nil }, "second cycle never finalized")

	// The slot frees once the run ends.
	if _, err := o.Submit(context.Background(), testRequest()); err != nil {
		t.Fatalf("resubmit after completion: %v", err)
	}
}

// disconnectGateway honors context cancellation on every call, the way the
// real HTTP client does, and signals once the disable write has landed so a
// test can cancel the caller at the worst possible moment.
type disconnectGateway struct {
	mu       sync.Mutex
	off      bool
	restores int
	disabled chan struct{}
	once     sync.Once
}

func (g *disconnectGateway) GetPortOverride(ctx context.Context, ref PortRef) (*OverrideSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewSnapshot([]byte(`{"port_idx":5,"name":"camera"}`))
}

func (g *disconnectGateway) GetPortLinkState(ctx context.Context, ref PortRef) (*LinkState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &LinkState{Up: !g.off}, nil
}

func (g *disconnectGateway) DisablePort(ctx context.Context, ref PortRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	g.off = true
	g.mu.Unlock()
	g.once.Do(func() { close(g.disabled) })
	return nil
}

func (g *disconnectGateway) SetPortOverride(ctx context.Context, ref PortRef, snap *OverrideSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	g.off = false
	g.restores++
	g.mu.Unlock()
	return nil
}

func (g *disconnectGateway) SetPoEMode(ctx context.Context, ref PortRef, mode string) error {
	return ctx.Err()
}

func TestOrchestratorSubmitSurvivesCallerDisconnect(t *testing.T) {
	repo := newFakeRepo()
	gw := &disconnectGateway{disabled: make(chan struct{})}
	o := NewOrchestrator(repo, &fakeResolver{gw: gw}, testTiming(), testNode(t), nil)

	// The caller hangs up right after the port goes dark, like an HTTP
	// client timing out mid-cycle.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-gw.disabled
		cancel()
	}()

	job, err := o.Submit(ctx, testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusSuccess {
		t.Errorf("job status = %q (%s), want success despite caller disconnect", job.Status, job.ErrorMessage)
	}

	gw.mu.Lock()
	restores, off := gw.restores, gw.off
	gw.mu.Unlock()
	if restores != 1 {
		t.Errorf("restore writes = %d, want 1", restores)
	}
	if off {
		t.Error("port left administratively disabled after caller disconnect")
	}

	rec := repo.terminal(job.ID)
	if rec == nil || rec.status != domain.JobStatusSuccess {
		t.Fatalf("repository terminal record = %+v, want success", rec)
	}
}

func TestOrchestratorFinalizesOnPanic(t *testing.T) {
	repo := newFakeRepo()
	o := NewOrchestrator(repo, &fakeResolver{gw: &panicGateway{}}, testTiming(), testNode(t), nil)

	job, err := o.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rec := repo.terminal(job.ID)
	if rec == nil || rec.status != domain.JobStatusFailed {
		t.Fatalf("terminal record = %+v, want failed after panic", rec)
	}
	if rec.count != 1 {
		t.Errorf("finalize writes = %d, want exactly 1", rec.count)
	}
	if o.Running(testPort()) {
		t.Error("port slot leaked after panic")
	}
}

func TestOrchestratorResolverFailureIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	o := NewOrchestrator(repo, &fakeResolver{err: ErrPortNotFound}, testTiming(), testNode(t), nil)

	job, err := o.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rec := repo.terminal(job.ID)
	if rec == nil || rec.status != domain.JobStatusFailed {
		t.Fatalf("terminal record = %+v, want failed", rec)
	}
}

func TestOrchestratorValidation(t *testing.T) {
	repo := newFakeRepo()
	o := NewOrchestrator(repo, &fakeResolver{gw: &fakeGateway{}}, testTiming(), testNode(t), nil)

	cases := []struct {
		name string
		mod  func(*CycleRequest)
	}{
		{"missing site", func(r *CycleRequest) { r.Port.SiteName = "" }},
		{"missing device", func(r *CycleRequest) { r.Port.DeviceID = "" }},
		{"zero port", func(r *CycleRequest) { r.Port.PortIdx = 0 }},
		{"negative hold", func(r *CycleRequest) { r.Hold = -time.Second }},
		{"unknown source", func(r *CycleRequest) { r.Source = "cron" }},
	}
	for _, tc := range cases {
		req := testRequest()
		tc.mod(&req)
		if _, err := o.Submit(context.Background(), req); err == nil {
			t.Errorf("%s: submit accepted an invalid request", tc.name)
		}
	}
	if len(repo.created) != 0 {
		t.Errorf("invalid requests created %d job records", len(repo.created))
	}
}

func TestStatusForMapping(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSucceeded:   domain.JobStatusSuccess,
		OutcomeTimeoutDown: domain.JobStatusTimeout,
		OutcomeTimeoutUp:   domain.JobStatusTimeout,
		OutcomeError:       domain.JobStatusFailed,
	}
	for out, want := range cases {
		if got := statusFor(out); got != want {
			t.Errorf("statusFor(%v) = %q, want %q", out, got, want)
		}
	}
}

func TestNewJobPoeType(t *testing.T) {
	o := NewOrchestrator(newFakeRepo(), &fakeResolver{gw: &fakeGateway{}}, testTiming(), testNode(t), nil)
	req := testRequest()
	req.PoeOnly = true
	job := o.newJob(req)
	if job.JobType != domain.JobTypePoECycle {
		t.Errorf("job type = %q, want poe_cycle", job.JobType)
	}
	if job.Status != domain.JobStatusRunning {
		t.Errorf("new job status = %q, want running", job.Status)
	}
}
