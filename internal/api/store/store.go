// Package store defines the remote job store consumed by the editing core.
// Adapters (in-memory, catalog database, SQL Server Agent) live outside the
// core and are selected at startup.
package store

import (
	"context"
	"errors"

	"jobdef/internal/api/models"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound      = errors.New("store: job not found")
	ErrScheduleNotFound = errors.New("store: schedule not found")
	ErrJobAlreadyExists = errors.New("store: job already exists")
)

// ServerStore exposes server metadata and privileges
type ServerStore interface {
	// ServerVersion returns the major version of the job server
	ServerVersion(ctx context.Context) (int, error)

	// CanEditJob reports whether the caller may alter the given job.
	// uuid.Nil asks whether the caller may create jobs.
	CanEditJob(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// JobStore persists job headers and their step collection. Steps are saved as
// part of the job object graph rather than one by one.
type JobStore interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	CreateJob(ctx context.Context, job *models.Job) error

	ListSteps(ctx context.Context, jobID uuid.UUID) ([]*models.JobStep, error)

	// SaveSteps writes current as the complete ordered step list of the job and
	// drops the steps in removed.
	SaveSteps(ctx context.Context, jobID uuid.UUID, current []*models.JobStep, removed []*models.JobStep) error
}

// ScheduleStore manages schedules and their job references
type ScheduleStore interface {
	LookupSchedule(ctx context.Context, scheduleID int) (*models.Schedule, error)
	ListSchedules(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error)

	// CreateSchedule creates the schedule owned by (attached to) the job and
	// returns its id.
	CreateSchedule(ctx context.Context, jobID uuid.UUID, schedule *models.Schedule) (int, error)
	AlterSchedule(ctx context.Context, schedule *models.Schedule) error
	DeleteSchedule(ctx context.Context, scheduleID int) error

	AddSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error
	// RemoveSharedReference detaches the schedule from the job and deletes it
	// when no other job references it.
	RemoveSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error
}

// AlertStore manages alert to job associations
type AlertStore interface {
	// LookupAlert returns nil, nil when no alert has that name
	LookupAlert(ctx context.Context, name string) (*models.Alert, error)
	ListAlerts(ctx context.Context, jobID uuid.UUID) ([]*models.Alert, error)
	AlterAlert(ctx context.Context, alert *models.Alert) error
}

// Store is the full remote job store
type Store interface {
	ServerStore
	JobStore
	ScheduleStore
	AlertStore
}
