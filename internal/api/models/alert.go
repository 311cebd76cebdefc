package models

import "github.com/google/uuid"

// Alert fires a response job on an event. It points to at most one job.
type Alert struct {
	Name      string        `gorm:"primaryKey" json:"name"`
	JobID     uuid.NullUUID `gorm:"type:uuid;index" json:"jobId"`
	Severity  int           `json:"severity"`
	MessageID int           `json:"messageId"`
	Enabled   bool          `json:"enabled"`

	// Created is true once the alert is wired to the job being edited
	Created bool `gorm:"-" json:"created"`
}

func (slf *Alert) Key() string     { return slf.Name }
func (slf *Alert) IsCreated() bool { return slf.Created }

// AssociateWith points the alert at a job
func (slf *Alert) AssociateWith(jobID uuid.UUID) {
	slf.JobID = uuid.NullUUID{UUID: jobID, Valid: true}
}

// Disassociate clears the job association
func (slf *Alert) Disassociate() {
	slf.JobID = uuid.NullUUID{}
}
