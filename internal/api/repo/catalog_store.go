package repo

import (
	"context"
	"errors"
	"fmt"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ store.Store = (*CatalogStore)(nil)

// CatalogStore keeps job definitions in the catalog database. It has no job
// server behind it: the server version is configured and every caller may
// edit every job.
type CatalogStore struct {
	jobs          *JobRepository
	schedules     *ScheduleRepository
	alerts        *AlertRepository
	serverVersion int
}

func NewCatalogStore(serverVersion int) *CatalogStore {
	return &CatalogStore{
		jobs:          NewJobRepository(),
		schedules:     NewScheduleRepository(),
		alerts:        NewAlertRepository(),
		serverVersion: serverVersion,
	}
}

// Migrate creates the catalog tables
func (slf *CatalogStore) Migrate() error {
	return slf.jobs.Db.AutoMigrate(
		&models.Job{},
		&models.JobStep{},
		&models.Schedule{},
		&models.JobScheduleRef{},
		&models.Alert{},
	)
}

func (slf *CatalogStore) ServerVersion(_ context.Context) (int, error) {
	return slf.serverVersion, nil
}

func (slf *CatalogStore) CanEditJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if jobID == uuid.Nil {
		return true, nil
	}
	if _, err := slf.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (slf *CatalogStore) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := slf.jobRepo(ctx).FindByID(jobID)
	if err != nil {
		if IsNotFound(err) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}
	job.Created = true
	return &job, nil
}

func (slf *CatalogStore) CreateJob(ctx context.Context, job *models.Job) error {
	if err := slf.jobRepo(ctx).Create(job); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.ErrJobAlreadyExists
		}
		return fmt.Errorf("create job %s: %w", job.Name, err)
	}
	return nil
}

func (slf *CatalogStore) ListSteps(ctx context.Context, jobID uuid.UUID) ([]*models.JobStep, error) {
	if _, err := slf.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	steps, err := slf.jobRepo(ctx).FindSteps(jobID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.JobStep, 0, len(steps))
	for i := range steps {
		steps[i].Created = true
		out = append(out, &steps[i])
	}
	return out, nil
}

func (slf *CatalogStore) SaveSteps(ctx context.Context, jobID uuid.UUID, current []*models.JobStep, removed []*models.JobStep) error {
	rows := make([]models.JobStep, 0, len(current))
	for _, s := range current {
		rows = append(rows, *s)
	}
	uids := make([]uuid.UUID, 0, len(removed))
	for _, s := range removed {
		uids = append(uids, s.UID)
	}
	err := slf.jobRepo(ctx).ReplaceSteps(jobID, rows, uids)
	if IsNotFound(err) {
		return store.ErrJobNotFound
	}
	return err
}

func (slf *CatalogStore) LookupSchedule(ctx context.Context, scheduleID int) (*models.Schedule, error) {
	schedule, err := slf.scheduleRepo(ctx).FindByID(scheduleID)
	if err != nil {
		if IsNotFound(err) {
			return nil, store.ErrScheduleNotFound
		}
		return nil, err
	}
	schedule.Created = true
	return &schedule, nil
}

func (slf *CatalogStore) ListSchedules(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error) {
	schedules, err := slf.scheduleRepo(ctx).FindAllByJob(jobID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Schedule, 0, len(schedules))
	for i := range schedules {
		schedules[i].Created = true
		schedules[i].Attached = true
		out = append(out, &schedules[i])
	}
	return out, nil
}

func (slf *CatalogStore) CreateSchedule(ctx context.Context, jobID uuid.UUID, schedule *models.Schedule) (int, error) {
	row := *schedule
	row.ID = 0
	if err := slf.scheduleRepo(ctx).CreateForJob(jobID, &row); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (slf *CatalogStore) AlterSchedule(ctx context.Context, schedule *models.Schedule) error {
	return scheduleErr(slf.scheduleRepo(ctx).Update(schedule))
}

func (slf *CatalogStore) DeleteSchedule(ctx context.Context, scheduleID int) error {
	return scheduleErr(slf.scheduleRepo(ctx).Delete(scheduleID))
}

func (slf *CatalogStore) AddSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error {
	return scheduleErr(slf.scheduleRepo(ctx).AddReference(jobID, scheduleID))
}

func (slf *CatalogStore) RemoveSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error {
	return scheduleErr(slf.scheduleRepo(ctx).RemoveReference(jobID, scheduleID))
}

func (slf *CatalogStore) LookupAlert(ctx context.Context, name string) (*models.Alert, error) {
	alert, err := slf.alertRepo(ctx).FindByName(name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (slf *CatalogStore) ListAlerts(ctx context.Context, jobID uuid.UUID) ([]*models.Alert, error) {
	alerts, err := slf.alertRepo(ctx).FindAllByJob(jobID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Alert, 0, len(alerts))
	for i := range alerts {
		alerts[i].Created = true
		out = append(out, &alerts[i])
	}
	return out, nil
}

func (slf *CatalogStore) AlterAlert(ctx context.Context, alert *models.Alert) error {
	return slf.alertRepo(ctx).Update(alert)
}

func scheduleErr(err error) error {
	if IsNotFound(err) {
		return store.ErrScheduleNotFound
	}
	return err
}

func (slf *CatalogStore) jobRepo(ctx context.Context) *JobRepository {
	return &JobRepository{Db: slf.jobs.Db.WithContext(ctx)}
}

func (slf *CatalogStore) scheduleRepo(ctx context.Context) *ScheduleRepository {
	return &ScheduleRepository{Db: slf.schedules.Db.WithContext(ctx)}
}

func (slf *CatalogStore) alertRepo(ctx context.Context) *AlertRepository {
	return &AlertRepository{Db: slf.alerts.Db.WithContext(ctx)}
}
