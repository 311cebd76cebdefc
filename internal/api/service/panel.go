package service

import (
	"fmt"
	"strings"

	"jobdef/internal/api/models"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
	"github.com/rs/zerolog"
)

// Panel is one editable page of a job definition. Load fills the page from the
// session, Save writes it back. switching is true when the user moves to
// another page rather than closing the editor.
type Panel interface {
	Load(session *JobSession) error
	Save(session *JobSession, switching bool) error
}

var _ Panel = (*StepPayloadPanel)(nil)

// StepPayloadPanel edits the command of one step. The text is stored as typed;
// Transact-SQL is parse checked and a failure is reported as a warning only.
type StepPayloadPanel struct {
	StepID       int
	Subsystem    models.Subsystem
	Command      string
	DatabaseName string

	// Warning holds the last parse check failure, if any
	Warning string

	logger zerolog.Logger
}

func NewStepPayloadPanel(stepID int, logger zerolog.Logger) *StepPayloadPanel {
	return &StepPayloadPanel{StepID: stepID, logger: logger}
}

func (slf *StepPayloadPanel) Load(session *JobSession) error {
	step, err := slf.step(session)
	if err != nil {
		return err
	}
	slf.Subsystem = step.Subsystem
	slf.Command = step.Command
	slf.DatabaseName = step.DatabaseName
	slf.Warning = ""
	return nil
}

func (slf *StepPayloadPanel) Save(session *JobSession, switching bool) error {
	step, err := slf.step(session)
	if err != nil {
		return err
	}
	if session.ReadOnly() || step.ReadOnly {
		return ErrReadOnly
	}

	slf.Warning = ""
	if slf.Subsystem == models.SubsystemTransactSQL {
		if perr := CheckTransactSQL(slf.Command); perr != nil {
			slf.Warning = perr.Error()
			slf.logger.Debug().Err(perr).Int("stepId", slf.StepID).Bool("switching", switching).Msg("Step command did not parse")
		}
	}

	if step.Subsystem != slf.Subsystem || step.Command != slf.Command || step.DatabaseName != slf.DatabaseName {
		step.Subsystem = slf.Subsystem
		step.Command = slf.Command
		step.DatabaseName = slf.DatabaseName
		step.Dirty = true
	}
	return nil
}

func (slf *StepPayloadPanel) step(session *JobSession) (*models.JobStep, error) {
	if session == nil || !session.Loaded() {
		return nil, ErrSessionNotLoaded
	}
	step, ok := session.Steps().Step(slf.StepID)
	if !ok {
		return nil, ErrStepNotFound
	}
	return step, nil
}

// CheckTransactSQL runs a best-effort syntax check of a step command. Batch
// separators split the text; each non-empty batch must parse.
func CheckTransactSQL(command string) error {
	for i, batch := range splitBatches(command) {
		if _, err := sqlparser.Parse(batch); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
	}
	return nil
}

func splitBatches(command string) []string {
	var batches []string
	var current strings.Builder
	flush := func() {
		if b := strings.TrimSpace(current.String()); b != "" {
			batches = append(batches, strings.TrimSuffix(b, ";"))
		}
		current.Reset()
	}
	for _, line := range strings.Split(command, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), "GO") {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return batches
}
