package response

import (
	"time"

	"github.com/google/uuid"
)

type CompletionAction struct {
	Action   string `json:"action"`
	TargetID int    `json:"targetId,omitempty"`
}

type JobStep struct {
	UID           uuid.UUID        `json:"uid"`
	ID            int              `json:"id"`
	Name          string           `json:"name"`
	Subsystem     string           `json:"subsystem"`
	Command       string           `json:"command"`
	DatabaseName  string           `json:"databaseName,omitempty"`
	SuccessAction CompletionAction `json:"successAction"`
	FailureAction CompletionAction `json:"failureAction"`
	RetryAttempts int              `json:"retryAttempts"`
	RetryInterval int              `json:"retryInterval"`
	Created       bool             `json:"created"`
}

type Schedule struct {
	Key               string `json:"key"`
	ID                int    `json:"id,omitempty"`
	Name              string `json:"name"`
	Enabled           bool   `json:"enabled"`
	FrequencyType     int    `json:"frequencyType"`
	FrequencyInterval int    `json:"frequencyInterval"`
	ActiveStartDate   int    `json:"activeStartDate"`
	ActiveStartTime   int    `json:"activeStartTime"`
	Created           bool   `json:"created"`
}

type Alert struct {
	Name     string `json:"name"`
	Severity int    `json:"severity"`
	Enabled  bool   `json:"enabled"`
	Created  bool   `json:"created"`
}

type JobHeader struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	OwnerLogin  string    `json:"ownerLogin"`
	Enabled     bool      `json:"enabled"`
	Created     bool      `json:"created"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type JobSession struct {
	SessionID        uuid.UUID  `json:"sessionId"`
	Mode             string     `json:"mode"`
	ReadOnly         bool       `json:"readOnly"`
	Job              JobHeader  `json:"job"`
	Steps            []JobStep  `json:"steps"`
	Schedules        []Schedule `json:"schedules"`
	RemovedSchedules []Schedule `json:"removedSchedules"`
	Alerts           []Alert    `json:"alerts"`
	Warnings         []string   `json:"warnings,omitempty"`
}

type ApplyJobSession struct {
	JobID            uuid.UUID `json:"jobId"`
	JobCreated       bool      `json:"jobCreated"`
	StepsChanged     bool      `json:"stepsChanged"`
	SchedulesChanged bool      `json:"schedulesChanged"`
	AlertsChanged    bool      `json:"alertsChanged"`
}
