package cycle

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/netopshq/switchyard/internal/domain"
)

// JobFilter narrows a job history listing. Zero fields are ignored.
type JobFilter struct {
	Status        string
	JobType       string
	Source        string
	SiteName      string
	DeviceID      string
	ScheduleID    int64
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Page          int
	PageSize      int
}

// JobRepository persists job run records.
type JobRepository interface {
	Create(ctx context.Context, job *domain.JobRun) error
	// Finalize moves a running job to a terminal status. It only touches
	// rows still marked running, so a terminal status is written once and
	// never overwritten.
	Finalize(ctx context.Context, id int64, status string, completedAt time.Time, durationSeconds int, errorMessage string) error
	GetByID(ctx context.Context, id int64) (*domain.JobRun, error)
	List(ctx context.Context, f JobFilter) ([]domain.JobRun, int64, error)
	// FailStale marks running jobs started before cutoff as failed. Covers
	// records orphaned by a process crash mid-run.
	FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// GormJobRepository is the database-backed JobRepository.
type GormJobRepository struct {
	db *gorm.DB
}

func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

func (r *GormJobRepository) Create(ctx context.Context, job *domain.JobRun) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *GormJobRepository) Finalize(ctx context.Context, id int64, status string, completedAt time.Time, durationSeconds int, errorMessage string) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobRun{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":           status,
			"completed_at":     completedAt,
			"duration_seconds": durationSeconds,
			"error_message":    errorMessage,
		}).Error
}

func (r *GormJobRepository) GetByID(ctx context.Context, id int64) (*domain.JobRun, error) {
	var job domain.JobRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormJobRepository) List(ctx context.Context, f JobFilter) ([]domain.JobRun, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.JobRun{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.JobType != "" {
		q = q.Where("job_type = ?", f.JobType)
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.SiteName != "" {
		q = q.Where("site_name = ?", f.SiteName)
	}
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.ScheduleID != 0 {
		q = q.Where("schedule_id = ?", f.ScheduleID)
	}
	if f.StartedAfter != nil {
		q = q.Where("started_at >= ?", f.StartedAfter)
	}
	if f.StartedBefore != nil {
		q = q.Where("started_at <= ?", f.StartedBefore)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}

	var jobs []domain.JobRun
	if err := q.Order("started_at desc").Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *GormJobRepository) FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	var stale []domain.JobRun
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", domain.JobStatusRunning, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	now := time.Now()
	var reaped int64
	// Row by row so duration_seconds reflects each job's own start time.
	for i := range stale {
		ret := r.db.WithContext(ctx).
			Model(&domain.JobRun{}).
			Where("id = ? AND status = ?", stale[i].ID, domain.JobStatusRunning).
			Updates(map[string]interface{}{
				"status":           domain.JobStatusFailed,
				"completed_at":     now,
				"duration_seconds": int(now.Sub(stale[i].StartedAt).Seconds()),
				"error_message":    message,
			})
		if ret.Error != nil {
			return reaped, ret.Error
		}
		reaped += ret.RowsAffected
	}
	return reaped, nil
}
