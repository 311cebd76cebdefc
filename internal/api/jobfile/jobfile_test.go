package jobfile

import (
	"context"
	"testing"

	"jobdef/internal/api/models"
	"jobdef/internal/api/service"
	"jobdef/internal/api/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nightlyFile = `
job:
  name: nightly
  category: ETL
  owner: sa
steps:
  - name: extract
    subsystem: TSQL
    database: sales
    command: SELECT id FROM orders
    onFailure: step:cleanup
  - name: load
    subsystem: CmdExec
    command: bcp orders in orders.dat
    onSuccess: success
    retryAttempts: 2
    retryInterval: 5
  - name: cleanup
    subsystem: PowerShell
    command: Remove-Item orders.dat
    onSuccess: failure
schedules:
  - name: every night
    frequency: daily
    interval: 1
    startTime: 20000
alerts:
  - disk full
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(nightlyFile))
	require.NoError(t, err)
	assert.Equal(t, "nightly", doc.Job.Name)
	assert.Len(t, doc.Steps, 3)
	assert.Equal(t, models.JobModeCreate, doc.Context().Mode)

	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown key",
			body: "job:\n  name: x\n  schedule: daily\n",
		},
		{
			name: "missing job name",
			body: "job:\n  category: ETL\n",
		},
		{
			name: "unknown subsystem",
			body: "job:\n  name: x\nsteps:\n  - name: a\n    subsystem: SSIS\n",
		},
		{
			name: "duplicated step",
			body: "job:\n  name: x\nsteps:\n  - name: a\n    subsystem: TSQL\n  - name: A\n    subsystem: TSQL\n",
		},
		{
			name: "unknown target",
			body: "job:\n  name: x\nsteps:\n  - name: a\n    subsystem: TSQL\n    onSuccess: step:b\n",
		},
		{
			name: "unknown action",
			body: "job:\n  name: x\nsteps:\n  - name: a\n    subsystem: TSQL\n    onFailure: retry\n",
		},
		{
			name: "schedule without frequency",
			body: "job:\n  name: x\nschedules:\n  - name: nightly\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDocument_Context(t *testing.T) {
	id := uuid.New()
	doc := &Document{Job: Header{ID: id.String(), Name: "nightly"}}
	jobCtx := doc.Context()
	assert.Equal(t, models.JobModeEdit, jobCtx.Mode)
	assert.Equal(t, id, jobCtx.JobID)
}

func openSession(t *testing.T, m *memory.Store, jobCtx models.JobContext) *service.JobSession {
	t.Helper()
	s, err := service.NewJobSession(jobCtx, m)
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestDocument_ApplyCreatesJob(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	m.PutAlert(&models.Alert{Name: "disk full", Severity: 17, Enabled: true})

	doc, err := Parse([]byte(nightlyFile))
	require.NoError(t, err)
	s := openSession(t, m, doc.Context())

	warnings, err := doc.Apply(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	steps := s.Steps().Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, models.GoToStep(3), steps[0].FailureAction)
	assert.Equal(t, models.QuitWithSuccess(), steps[1].SuccessAction)
	assert.Equal(t, 2, steps[1].RetryAttempts)
	assert.Equal(t, "sales", steps[0].DatabaseName)
	// cleanup is only reached on failure of extract
	assert.Empty(t, s.Validate().UnreachableSteps)

	result, err := s.ApplyChanges(ctx)
	require.NoError(t, err)
	assert.True(t, result.JobCreated)
	assert.True(t, result.StepsChanged)
	assert.True(t, result.SchedulesChanged)
	assert.True(t, result.AlertsChanged)

	alert, ok := m.Alert("disk full")
	require.True(t, ok)
	assert.Equal(t, s.Job().ID, alert.JobID.UUID)
}

func TestDocument_ApplyReconcilesExistingJob(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	extract := models.NewJobStep("extract", models.SubsystemTransactSQL, "SELECT 1")
	extract.ID = 1
	legacy := models.NewJobStep("legacy", models.SubsystemCmdExec, "old.cmd")
	legacy.ID = 2
	load := models.NewJobStep("load", models.SubsystemCmdExec, "bcp")
	load.ID = 3
	load.SuccessAction = models.QuitWithSuccess()
	job := &models.Job{ID: uuid.New(), Name: "nightly", Enabled: true}
	m.PutJob(job, extract, legacy, load)
	oldSchedule := m.PutSchedule(models.NewSchedule("weekly", models.FrequencyWeekly, 1), job.ID)
	kept := m.PutSchedule(models.NewSchedule("every night", models.FrequencyDaily, 1), job.ID)

	doc, err := Parse([]byte(`
job:
  id: ` + job.ID.String() + `
  name: nightly
steps:
  - name: load
    subsystem: CmdExec
    command: bcp
    onSuccess: step:extract
  - name: extract
    subsystem: TSQL
    command: SELEC 1
    onSuccess: success
schedules:
  - name: every night
    frequency: daily
    interval: 2
`))
	require.NoError(t, err)
	s := openSession(t, m, doc.Context())
	loadUID := s.Steps().Steps()[2].UID

	warnings, err := doc.Apply(ctx, s)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	steps := s.Steps().Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "load", steps[0].Name)
	assert.Equal(t, loadUID, steps[0].UID)
	assert.Equal(t, models.GoToStep(2), steps[0].SuccessAction)
	require.Len(t, s.Steps().Removed(), 1)
	assert.Equal(t, "legacy", s.Steps().Removed()[0].Name)

	current := s.Schedules().Current()
	require.Len(t, current, 1)
	assert.Equal(t, kept, current[0].ID)
	assert.Equal(t, 2, current[0].FrequencyInterval)
	assert.True(t, current[0].Dirty)

	result, err := s.ApplyChanges(ctx)
	require.NoError(t, err)
	assert.True(t, result.StepsChanged)
	assert.True(t, result.SchedulesChanged)
	assert.False(t, m.ScheduleExists(oldSchedule))

	saved, err := m.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestDocument_ApplyRejectsOtherJob(t *testing.T) {
	m := memory.New()
	job := &models.Job{ID: uuid.New(), Name: "nightly", Enabled: true}
	m.PutJob(job)

	doc := &Document{Job: Header{ID: job.ID.String(), Name: "weekly"}}
	s := openSession(t, m, doc.Context())
	_, err := doc.Apply(context.Background(), s)
	assert.Error(t, err)
}

func TestDocument_ApplyReadOnly(t *testing.T) {
	m := memory.New()
	job := &models.Job{ID: uuid.New(), Name: "nightly", Enabled: true}
	m.PutJob(job)

	doc := &Document{Job: Header{ID: job.ID.String(), Name: "nightly"}}
	jobCtx := doc.Context()
	jobCtx.ReadOnly = true
	s := openSession(t, m, jobCtx)
	_, err := doc.Apply(context.Background(), s)
	assert.ErrorIs(t, err, service.ErrReadOnly)
}
