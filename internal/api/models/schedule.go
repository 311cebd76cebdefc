package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FrequencyType mirrors the SQL Server Agent freq_type values
type FrequencyType int

const (
	FrequencyOnce            FrequencyType = 1
	FrequencyDaily           FrequencyType = 4
	FrequencyWeekly          FrequencyType = 8
	FrequencyMonthly         FrequencyType = 16
	FrequencyMonthlyRelative FrequencyType = 32
	FrequencyAgentStart      FrequencyType = 64
	FrequencyIdle            FrequencyType = 128
)

// Schedule is a job schedule. From the shared-schedule server version onward a
// schedule may be referenced by several jobs.
type Schedule struct {
	ID                int           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string        `gorm:"not null" json:"name"`
	Enabled           bool          `json:"enabled"`
	FrequencyType     FrequencyType `json:"frequencyType"`
	FrequencyInterval int           `json:"frequencyInterval"`
	ActiveStartDate   int           `json:"activeStartDate"` // yyyymmdd
	ActiveStartTime   int           `json:"activeStartTime"` // hhmmss
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`

	LocalID  uuid.UUID `gorm:"-" json:"localId"`
	Created  bool      `gorm:"-" json:"created"`
	Attached bool      `gorm:"-" json:"attached"`
	Dirty    bool      `gorm:"-" json:"-"`
}

// NewSchedule returns a local schedule that does not exist remotely yet
func NewSchedule(name string, frequency FrequencyType, interval int) *Schedule {
	return &Schedule{
		Name:              name,
		Enabled:           true,
		FrequencyType:     frequency,
		FrequencyInterval: interval,
		LocalID:           uuid.New(),
	}
}

// Key is the remote id once created, the local id before
func (slf *Schedule) Key() string {
	if slf.Created {
		return ScheduleKey(slf.ID)
	}
	return "new:" + slf.LocalID.String()
}

func (slf *Schedule) IsCreated() bool { return slf.Created }

// SetEnabled toggles the schedule and marks it dirty when the value changes
func (slf *Schedule) SetEnabled(enabled bool) {
	if slf.Enabled != enabled {
		slf.Enabled = enabled
		slf.Dirty = true
	}
}

// ScheduleKey is the change-set key of a created schedule
func ScheduleKey(id int) string {
	return fmt.Sprintf("id:%d", id)
}

// JobScheduleRef associates a job with a (possibly shared) schedule
type JobScheduleRef struct {
	JobID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"jobId"`
	ScheduleID int       `gorm:"primaryKey" json:"scheduleId"`
}
