package request

// OpenJobSession is the request for starting an edit session
type OpenJobSession struct {
	Mode  string `json:"mode" validate:"required,oneof=create edit"`
	JobID string `json:"jobId" validate:"required_if=Mode edit"`
	URN   string `json:"urn"`

	// Header of a new job
	Name        string `json:"name" validate:"required_if=Mode create"`
	Description string `json:"description"`
	Category    string `json:"category"`
	OwnerLogin  string `json:"ownerLogin"`

	ExcludedScheduleIDs []int `json:"excludedScheduleIds"`
	RemovedScheduleIDs  []int `json:"removedScheduleIds"`
	ReadOnly            bool  `json:"readOnly"`
	AllowEnableDisable  bool  `json:"allowEnableDisable"`
}

type CompletionAction struct {
	Action   string `json:"action" validate:"required,oneof=goToNextStep quitWithSuccess quitWithFailure goToStep"`
	TargetID int    `json:"targetId" validate:"required_if=Action goToStep,min=0"`
}

// AddStep is the request for adding a step. Position 0 appends.
type AddStep struct {
	Name          string            `json:"name" validate:"required"`
	Subsystem     string            `json:"subsystem" validate:"required,oneof=TSQL CmdExec PowerShell"`
	Command       string            `json:"command"`
	DatabaseName  string            `json:"databaseName"`
	Position      int               `json:"position" validate:"min=0"`
	SuccessAction *CompletionAction `json:"successAction,omitempty"`
	FailureAction *CompletionAction `json:"failureAction,omitempty"`
	RetryAttempts int               `json:"retryAttempts" validate:"min=0"`
	RetryInterval int               `json:"retryInterval" validate:"min=0"`
}

type UpdateStep struct {
	Name          *string           `json:"name,omitempty"`
	Subsystem     *string           `json:"subsystem,omitempty" validate:"omitempty,oneof=TSQL CmdExec PowerShell"`
	Command       *string           `json:"command,omitempty"`
	DatabaseName  *string           `json:"databaseName,omitempty"`
	SuccessAction *CompletionAction `json:"successAction,omitempty"`
	FailureAction *CompletionAction `json:"failureAction,omitempty"`
	RetryAttempts *int              `json:"retryAttempts,omitempty" validate:"omitempty,min=0"`
	RetryInterval *int              `json:"retryInterval,omitempty" validate:"omitempty,min=0"`
}

type MoveStep struct {
	To int `json:"to" validate:"required,min=1"`
}

// AddSchedule either references an existing schedule by id or describes a new one
type AddSchedule struct {
	ScheduleID        int    `json:"scheduleId" validate:"min=0"`
	Name              string `json:"name" validate:"required_without=ScheduleID"`
	Enabled           *bool  `json:"enabled,omitempty"`
	FrequencyType     int    `json:"frequencyType" validate:"required_without=ScheduleID,omitempty,oneof=1 4 8 16 32 64 128"`
	FrequencyInterval int    `json:"frequencyInterval" validate:"min=0"`
	ActiveStartDate   int    `json:"activeStartDate" validate:"min=0"`
	ActiveStartTime   int    `json:"activeStartTime" validate:"min=0"`
}

type UpdateSchedule struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	Name              *string `json:"name,omitempty"`
	FrequencyType     *int    `json:"frequencyType,omitempty" validate:"omitempty,oneof=1 4 8 16 32 64 128"`
	FrequencyInterval *int    `json:"frequencyInterval,omitempty" validate:"omitempty,min=0"`
	ActiveStartDate   *int    `json:"activeStartDate,omitempty" validate:"omitempty,min=0"`
	ActiveStartTime   *int    `json:"activeStartTime,omitempty" validate:"omitempty,min=0"`
}

type AddAlert struct {
	Name string `json:"name" validate:"required"`
}

type ApplyJobSession struct {
	// Confirm accepts the validation warnings of the current steps
	Confirm bool `json:"confirm"`
}

// UpdateJobHeader sets the header of a job that is not created yet
type UpdateJobHeader struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	OwnerLogin  string `json:"ownerLogin"`
}
