package service

import (
	"testing"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransactSQL(t *testing.T) {
	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{name: "single select", command: "SELECT 1"},
		{name: "batches", command: "SELECT 1;\nGO\nselect id from t where id = 2\ngo\n"},
		{name: "empty", command: "  "},
		{name: "garbage", command: "SELEC oops FROM", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransactSQL(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStepPayloadPanel_LoadAndSave(t *testing.T) {
	m := memory.New()
	job := seedJob(m, "nightly", existingSteps("a", "b")...)
	s := openSession(t, m, editContext(job))

	var panel Panel = NewStepPayloadPanel(2, zerolog.Nop())
	p := panel.(*StepPayloadPanel)
	require.NoError(t, panel.Load(s))
	assert.Equal(t, "SELECT 1", p.Command)
	assert.Equal(t, models.SubsystemTransactSQL, p.Subsystem)

	p.Command = "SELEC broken"
	require.NoError(t, panel.Save(s, true))
	assert.NotEmpty(t, p.Warning)

	step, _ := s.Steps().Step(2)
	assert.Equal(t, "SELEC broken", step.Command)
	assert.True(t, step.Dirty)

	p.Subsystem = models.SubsystemCmdExec
	p.Command = "dir C:\\"
	require.NoError(t, panel.Save(s, false))
	assert.Empty(t, p.Warning)
	assert.Equal(t, models.SubsystemCmdExec, step.Subsystem)
}

func TestStepPayloadPanel_Errors(t *testing.T) {
	m := memory.New()
	job := seedJob(m, "nightly", existingSteps("a")...)

	p := NewStepPayloadPanel(3, zerolog.Nop())
	assert.ErrorIs(t, p.Load(nil), ErrSessionNotLoaded)

	s := openSession(t, m, editContext(job))
	assert.ErrorIs(t, p.Load(s), ErrStepNotFound)

	jobCtx := editContext(job)
	jobCtx.ReadOnly = true
	ro := openSession(t, m, jobCtx)
	p = NewStepPayloadPanel(1, zerolog.Nop())
	require.NoError(t, p.Load(ro))
	assert.ErrorIs(t, p.Save(ro, false), ErrReadOnly)
}
