package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Subsystem identifies which engine runs a step payload
type Subsystem string

const (
	SubsystemTransactSQL Subsystem = "TSQL"
	SubsystemCmdExec     Subsystem = "CmdExec"
	SubsystemPowerShell  Subsystem = "PowerShell"
)

// StepAction is the transition taken after a step finishes
type StepAction string

const (
	ActionGoToNextStep    StepAction = "goToNextStep"
	ActionQuitWithSuccess StepAction = "quitWithSuccess"
	ActionQuitWithFailure StepAction = "quitWithFailure"
	ActionGoToStep        StepAction = "goToStep"
)

// CompletionAction is a step transition. TargetID is only meaningful for ActionGoToStep.
type CompletionAction struct {
	Action   StepAction `gorm:"type:varchar(20)" json:"action"`
	TargetID int        `json:"targetId,omitempty"`
}

func GoToNextStep() CompletionAction    { return CompletionAction{Action: ActionGoToNextStep} }
func QuitWithSuccess() CompletionAction { return CompletionAction{Action: ActionQuitWithSuccess} }
func QuitWithFailure() CompletionAction { return CompletionAction{Action: ActionQuitWithFailure} }

func GoToStep(id int) CompletionAction {
	return CompletionAction{Action: ActionGoToStep, TargetID: id}
}

// IsTerminal returns true for the quit actions
func (a CompletionAction) IsTerminal() bool {
	return a.Action == ActionQuitWithSuccess || a.Action == ActionQuitWithFailure
}

func (a CompletionAction) String() string {
	if a.Action == ActionGoToStep {
		return fmt.Sprintf("%s(%d)", a.Action, a.TargetID)
	}
	return string(a.Action)
}

// Valid reports whether the action is one of the known kinds
func (a CompletionAction) Valid() bool {
	switch a.Action {
	case ActionGoToNextStep, ActionQuitWithSuccess, ActionQuitWithFailure:
		return true
	case ActionGoToStep:
		return a.TargetID > 0
	}
	return false
}

// JobStep is one executable unit of a job
type JobStep struct {
	UID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"uid"`
	JobID         uuid.UUID        `gorm:"type:uuid;index;not null" json:"jobId"`
	ID            int              `gorm:"column:step_id;not null" json:"id"`
	Name          string           `gorm:"not null" json:"name"`
	Subsystem     Subsystem        `gorm:"type:varchar(40)" json:"subsystem"`
	Command       string           `json:"command"`
	DatabaseName  string           `json:"databaseName,omitempty"`
	SuccessAction CompletionAction `gorm:"embedded;embeddedPrefix:on_success_" json:"successAction"`
	FailureAction CompletionAction `gorm:"embedded;embeddedPrefix:on_fail_" json:"failureAction"`
	RetryAttempts int              `json:"retryAttempts"`
	RetryInterval int              `json:"retryInterval"` // minutes

	ReadOnly bool `gorm:"-" json:"readOnly"`
	Created  bool `gorm:"-" json:"created"`
	Dirty    bool `gorm:"-" json:"-"`
}

// NewJobStep returns a local step with the SQL Server Agent defaults:
// continue on success, quit reporting failure on failure.
func NewJobStep(name string, subsystem Subsystem, command string) *JobStep {
	return &JobStep{
		UID:           uuid.New(),
		Name:          name,
		Subsystem:     subsystem,
		Command:       command,
		SuccessAction: GoToNextStep(),
		FailureAction: QuitWithFailure(),
	}
}

func (slf *JobStep) Key() string     { return slf.UID.String() }
func (slf *JobStep) IsCreated() bool { return slf.Created }
func (slf *JobStep) Ref() StepRef    { return StepRef{ID: slf.ID, Name: slf.Name} }

// StepRef identifies a step in reports
type StepRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
