package service

import (
	"slices"

	"jobdef/internal/api/models"

	"github.com/rs/zerolog"
)

// ValidationReport lists the warnings raised by a step graph. Warnings never
// block a commit on their own; the caller decides whether to confirm them.
type ValidationReport struct {
	UnreachableSteps   []models.StepRef `json:"unreachableSteps"`
	LastStepWillChange bool             `json:"lastStepWillChange"`
}

// HasWarnings returns true when the report needs a confirmation
func (r ValidationReport) HasWarnings() bool {
	return len(r.UnreachableSteps) > 0 || r.LastStepWillChange
}

// StepValidator validates a step graph once per structure. After a report has
// been confirmed (or came back clean), validating the same structure again
// returns an empty report. Any structural change re-arms the warnings.
type StepValidator struct {
	confirmed    []stepShape
	hasConfirmed bool
	logger       zerolog.Logger
}

func NewStepValidator(logger zerolog.Logger) *StepValidator {
	return &StepValidator{logger: logger}
}

// Validate computes the reachability and last-step report for g
func (slf *StepValidator) Validate(g *StepGraph) ValidationReport {
	shape := g.fingerprint()
	if slf.hasConfirmed && slices.Equal(slf.confirmed, shape) {
		return ValidationReport{}
	}

	report := ValidationReport{
		UnreachableSteps:   g.Unreachable(),
		LastStepWillChange: g.LastStepCompletionActionWillChange(),
	}
	if !report.HasWarnings() {
		slf.remember(shape)
		return report
	}

	slf.logger.Debug().
		Int("unreachable", len(report.UnreachableSteps)).
		Bool("lastStepWillChange", report.LastStepWillChange).
		Msg("Step graph has warnings")
	return report
}

// Confirm accepts the warnings of the current structure of g
func (slf *StepValidator) Confirm(g *StepGraph) {
	slf.remember(g.fingerprint())
}

// Reset forgets any confirmation
func (slf *StepValidator) Reset() {
	slf.confirmed = nil
	slf.hasConfirmed = false
}

func (slf *StepValidator) remember(shape []stepShape) {
	slf.confirmed = shape
	slf.hasConfirmed = true
}
