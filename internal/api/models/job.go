package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobMode tells whether an edit session works on an existing job or a new one
type JobMode string

const (
	JobModeCreate JobMode = "create"
	JobModeEdit   JobMode = "edit"
)

// Job is the identity and header of a scheduled job
type Job struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"not null;uniqueIndex" json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	OwnerLogin  string    `json:"ownerLogin"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Created is true once the job exists in the job store
	Created bool `gorm:"-" json:"created"`
}

// JobContext carries the identifying parameters of an edit session.
// It is built by the caller and handed to the session constructor.
type JobContext struct {
	JobID uuid.UUID
	URN   string
	Mode  JobMode

	// Schedules already detached by another pending edit; they are not loaded.
	ExcludedScheduleIDs []int
	// Schedules loaded from the job but already marked for removal.
	RemovedScheduleIDs []int

	ReadOnly           bool
	AllowEnableDisable bool
}

// Validate checks that the context identifies a job when one is required
func (c JobContext) Validate() error {
	switch c.Mode {
	case JobModeCreate:
		return nil
	case JobModeEdit:
		if c.JobID == uuid.Nil {
			return errors.New("edit mode requires a job id")
		}
		return nil
	default:
		return errors.New("job mode must be create or edit")
	}
}

// IsEditing returns true when the session edits an existing job
func (c JobContext) IsEditing() bool {
	return c.Mode == JobModeEdit
}

// JobChange describes a committed edit of a job
type JobChange struct {
	JobID     uuid.UUID `json:"jobId"`
	JobName   string    `json:"jobName"`
	Created   bool      `json:"created"`
	Steps     bool      `json:"steps"`
	Schedules bool      `json:"schedules"`
	Alerts    bool      `json:"alerts"`
	ChangedAt time.Time `json:"changedAt"`
}
