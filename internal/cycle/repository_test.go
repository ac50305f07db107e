package cycle

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/netopshq/switchyard/internal/domain"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.JobRun{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedJob(t *testing.T, repo *GormJobRepository, id int64, mod func(*domain.JobRun)) *domain.JobRun {
	t.Helper()
	job := &domain.JobRun{
		ID:        id,
		JobType:   domain.JobTypePortCycle,
		SiteName:  "default",
		DeviceID:  "switch-1",
		PortIdx:   3,
		Status:    domain.JobStatusRunning,
		Source:    domain.JobSourceManual,
		StartedAt: time.Now(),
	}
	if mod != nil {
		mod(job)
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

func TestRepositoryFinalizeIsMonotonic(t *testing.T) {
	repo := NewGormJobRepository(testDB(t))
	ctx := context.Background()
	job := seedJob(t, repo, 1, nil)

	done := time.Now()
	if err := repo.Finalize(ctx, job.ID, domain.JobStatusSuccess, done, 42, ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// A second terminal write must not overwrite the first.
	if err := repo.Finalize(ctx, job.ID, domain.JobStatusFailed, time.Now(), 99, "late writer"); err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusSuccess {
		t.Errorf("status = %q, want the first terminal state to stick", got.Status)
	}
	if got.DurationSeconds != 42 {
		t.Errorf("duration = %d, want 42", got.DurationSeconds)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at missing after finalize")
	}
}

func TestRepositoryListFilters(t *testing.T) {
	repo := NewGormJobRepository(testDB(t))
	ctx := context.Background()

	seedJob(t, repo, 1, func(j *domain.JobRun) {
		j.Status = domain.JobStatusSuccess
		j.SiteName = "hq"
	})
	seedJob(t, repo, 2, func(j *domain.JobRun) {
		j.Status = domain.JobStatusTimeout
		j.SiteName = "hq"
		j.JobType = domain.JobTypePoECycle
	})
	seedJob(t, repo, 3, func(j *domain.JobRun) {
		j.Status = domain.JobStatusSuccess
		j.SiteName = "branch"
		j.Source = domain.JobSourceScheduled
		j.ScheduleID = 77
	})

	jobs, total, err := repo.List(ctx, JobFilter{SiteName: "hq"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(jobs) != 2 {
		t.Errorf("hq jobs = %d (total %d), want 2", len(jobs), total)
	}

	jobs, _, err = repo.List(ctx, JobFilter{Status: domain.JobStatusTimeout})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 2 {
		t.Errorf("timeout filter returned %v", jobs)
	}

	jobs, _, err = repo.List(ctx, JobFilter{ScheduleID: 77})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 3 {
		t.Errorf("schedule filter returned %v", jobs)
	}

	_, total, err = repo.List(ctx, JobFilter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("paged total = %d, want 3 across all pages", total)
	}
}

func TestRepositoryFailStale(t *testing.T) {
	repo := NewGormJobRepository(testDB(t))
	ctx := context.Background()

	seedJob(t, repo, 1, func(j *domain.JobRun) {
		j.StartedAt = time.Now().Add(-2 * time.Hour)
	})
	recent := seedJob(t, repo, 2, nil)

	n, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), "orphaned by restart")
	if err != nil {
		t.Fatalf("fail stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}

	old, _ := repo.GetByID(ctx, 1)
	if old.Status != domain.JobStatusFailed {
		t.Errorf("stale job status = %q, want failed", old.Status)
	}
	if old.CompletedAt == nil {
		t.Error("reaped job missing completed_at")
	}
	// ~2h between start and reap; allow slack for test runtime.
	if old.DurationSeconds < 7100 || old.DurationSeconds > 7300 {
		t.Errorf("reaped job duration = %ds, want roughly 7200", old.DurationSeconds)
	}
	cur, _ := repo.GetByID(ctx, recent.ID)
	if cur.Status != domain.JobStatusRunning {
		t.Errorf("recent job status = %q, must stay running", cur.Status)
	}
}
