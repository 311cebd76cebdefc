package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"
	"jobdef/internal/api/store/memory"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callOps(m *memory.Store) []string {
	var ops []string
	for _, c := range m.Calls() {
		ops = append(ops, c.String())
	}
	return ops
}

func seedJob(m *memory.Store, name string, steps ...*models.JobStep) *models.Job {
	job := &models.Job{ID: uuid.New(), Name: name, Enabled: true}
	m.PutJob(job, steps...)
	job.Created = true
	return job
}

func editContext(job *models.Job) models.JobContext {
	return models.JobContext{JobID: job.ID, Mode: models.JobModeEdit}
}

func newScheduleReconciler(t *testing.T, m *memory.Store, opts ScheduleOptions) *ScheduleReconciler {
	r, err := NewScheduleReconciler(m, m, opts, zerolog.Nop())
	require.NoError(t, err)
	return r
}

// ============ Step reconciler ============

func TestStepReconciler_SavesOnlyWhenChanged(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly", existingSteps("a", "b")...)
	steps, err := m.ListSteps(ctx, job.ID)
	require.NoError(t, err)

	g := NewStepGraph(true, steps...)
	r, err := NewStepReconciler(g, m, false, zerolog.Nop())
	require.NoError(t, err)

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())

	require.NoError(t, g.RemoveStep(1))
	changed, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"SaveSteps(1,-1)"}, callOps(m))
	assert.Empty(t, g.Removed())

	stored, err := m.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].Name)
	assert.Equal(t, 1, stored[0].ID)
}

func TestStepReconciler_DanglingTargetBlocksSave(t *testing.T) {
	m := memory.New()
	job := seedJob(m, "nightly")
	g := NewStepGraph(true)
	require.NoError(t, g.AddStep(newStep("a")))
	g.Steps()[0].SuccessAction = models.GoToStep(2)

	r, err := NewStepReconciler(g, m, false, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.ApplyChanges(context.Background(), job)
	assert.ErrorIs(t, err, ErrDanglingStepTarget)
	assert.Empty(t, m.Calls())
}

func TestStepReconciler_WrapsStoreFailure(t *testing.T) {
	boom := errors.New("boom")
	m := memory.New()
	job := seedJob(m, "nightly")
	m.FailOn("SaveSteps", boom)

	g := NewStepGraph(true)
	require.NoError(t, g.AddStep(newStep("a")))
	r, err := NewStepReconciler(g, m, false, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.ApplyChanges(context.Background(), job)
	var remote *RemoteOperationError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, OpAlter, remote.Op)
	assert.ErrorIs(t, err, boom)
	assert.True(t, g.HasChanges())
}

func TestStepReconciler_RequiresCollaborators(t *testing.T) {
	_, err := NewStepReconciler(nil, memory.New(), false, zerolog.Nop())
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)

	_, err = NewStepReconciler(NewStepGraph(false), nil, false, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNilStore)
}

// ============ Schedule reconciler ============

func TestScheduleReconciler_ExclusiveEra(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.WithServerVersion(8))
	job := seedJob(m, "nightly")
	oldID := m.PutSchedule(models.NewSchedule("old", models.FrequencyDaily, 1), job.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))
	require.Len(t, r.Current(), 1)

	r.Remove(r.Current()[0])
	r.Add(models.NewSchedule("weekly", models.FrequencyWeekly, 1))

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"DeleteSchedule(1)", "CreateSchedule(weekly)"}, callOps(m))
	assert.False(t, m.ScheduleExists(oldID))

	created := r.Current()[0]
	assert.True(t, created.Created)
	assert.True(t, created.Attached)
	assert.Equal(t, []uuid.UUID{job.ID}, m.ScheduleReferences(created.ID))
}

func TestScheduleReconciler_ExclusiveEraCopiesForeignSchedule(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.WithServerVersion(8))
	job := seedJob(m, "nightly")
	other := seedJob(m, "other")
	foreignID := m.PutSchedule(models.NewSchedule("shared", models.FrequencyDaily, 1), other.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	foreign, err := m.LookupSchedule(ctx, foreignID)
	require.NoError(t, err)
	r.Add(foreign)

	_, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateSchedule(shared)"}, callOps(m))
	assert.NotEqual(t, foreignID, r.Current()[0].ID)
	assert.Equal(t, []uuid.UUID{other.ID}, m.ScheduleReferences(foreignID))
}

func TestScheduleReconciler_SharedEra(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.WithServerVersion(9))
	job := seedJob(m, "nightly")
	other := seedJob(m, "other")
	sharedID := m.PutSchedule(models.NewSchedule("shared", models.FrequencyDaily, 1), other.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	shared, err := m.LookupSchedule(ctx, sharedID)
	require.NoError(t, err)
	r.Add(shared)

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"AddSharedReference(1)"}, callOps(m))
	assert.Len(t, m.ScheduleReferences(sharedID), 2)

	m.ResetCalls()
	require.True(t, r.Remove(r.Current()[0]))
	changed, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"RemoveSharedReference(1)"}, callOps(m))
	assert.True(t, m.ScheduleExists(sharedID))
	assert.Equal(t, []uuid.UUID{other.ID}, m.ScheduleReferences(sharedID))
	assert.Empty(t, r.Removed())
}

func TestScheduleReconciler_Pick(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly")
	other := seedJob(m, "other")
	sharedID := m.PutSchedule(models.NewSchedule("shared", models.FrequencyDaily, 1), other.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))

	picked, err := r.Pick(ctx, sharedID)
	require.NoError(t, err)
	assert.True(t, picked.Created)
	assert.False(t, picked.Attached)

	again, err := r.Pick(ctx, sharedID)
	require.NoError(t, err)
	assert.Same(t, picked, again)
	assert.Len(t, r.Current(), 1)

	_, err = r.Pick(ctx, 999)
	assert.ErrorIs(t, err, store.ErrScheduleNotFound)

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"AddSharedReference(1)"}, callOps(m))
}

func TestScheduleReconciler_PickUndoesRemoval(t *testing.T) {
	for _, version := range []int{8, 9} {
		t.Run(fmt.Sprintf("version %d", version), func(t *testing.T) {
			ctx := context.Background()
			m := memory.New(memory.WithServerVersion(version))
			job := seedJob(m, "nightly")
			id := m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

			r := newScheduleReconciler(t, m, ScheduleOptions{})
			require.NoError(t, r.Load(ctx, editContext(job)))
			loaded := r.Current()[0]
			require.True(t, r.Remove(loaded))

			picked, err := r.Pick(ctx, id)
			require.NoError(t, err)
			assert.Same(t, loaded, picked)
			assert.True(t, picked.Attached)
			assert.Empty(t, r.Removed())

			changed, err := r.ApplyChanges(ctx, job)
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Empty(t, m.Calls())
			assert.Equal(t, []uuid.UUID{job.ID}, m.ScheduleReferences(id))
		})
	}
}

func TestScheduleReconciler_PickPendingRemovalFromContext(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.WithServerVersion(8))
	job := seedJob(m, "nightly")
	id := m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

	jobCtx := editContext(job)
	jobCtx.RemovedScheduleIDs = []int{id}
	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, jobCtx))
	require.Len(t, r.Removed(), 1)

	_, err := r.Pick(ctx, id)
	require.NoError(t, err)

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}

func TestScheduleReconciler_SharedEraLastReferenceDeletes(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly")
	id := m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))
	r.Remove(r.Current()[0])

	_, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, []string{"RemoveSharedReference(1)"}, callOps(m))
	assert.False(t, m.ScheduleExists(id))
}

func TestScheduleReconciler_AltersDirtySchedule(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly")
	m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))
	r.Current()[0].SetEnabled(false)

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"AlterSchedule(1)"}, callOps(m))

	// nothing left to apply
	m.ResetCalls()
	changed, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}

func TestScheduleReconciler_UndoRemoval(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly")
	m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))
	s := r.Current()[0]
	r.Remove(s)
	r.Add(s)

	assert.Empty(t, r.Removed())
	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}

func TestScheduleReconciler_LoadHonoursContextLists(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "nightly")
	keep := m.PutSchedule(models.NewSchedule("keep", models.FrequencyDaily, 1), job.ID)
	excluded := m.PutSchedule(models.NewSchedule("excluded", models.FrequencyDaily, 1), job.ID)
	removed := m.PutSchedule(models.NewSchedule("removed", models.FrequencyDaily, 1), job.ID)

	jobCtx := editContext(job)
	jobCtx.ExcludedScheduleIDs = []int{excluded}
	jobCtx.RemovedScheduleIDs = []int{removed}

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, jobCtx))

	require.Len(t, r.Current(), 1)
	assert.Equal(t, keep, r.Current()[0].ID)
	require.Len(t, r.Removed(), 1)
	assert.Equal(t, removed, r.Removed()[0].ID)

	_, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, []string{"RemoveSharedReference(3)"}, callOps(m))
	assert.True(t, m.ScheduleExists(excluded))
}

func TestScheduleReconciler_ReadOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("no override", func(t *testing.T) {
		m := memory.New()
		job := seedJob(m, "nightly")
		m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

		r := newScheduleReconciler(t, m, ScheduleOptions{ReadOnly: true})
		require.NoError(t, r.Load(ctx, editContext(job)))
		r.Current()[0].SetEnabled(false)
		r.Add(models.NewSchedule("new", models.FrequencyOnce, 0))

		changed, err := r.ApplyChanges(ctx, job)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, m.Calls())
	})

	t.Run("enable and disable allowed", func(t *testing.T) {
		m := memory.New()
		job := seedJob(m, "nightly")
		id := m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)

		r := newScheduleReconciler(t, m, ScheduleOptions{ReadOnly: true, AllowEnableDisable: true})
		require.NoError(t, r.Load(ctx, editContext(job)))
		r.Current()[0].SetEnabled(false)
		r.Current()[0].Name = "renamed"
		r.Add(models.NewSchedule("new", models.FrequencyOnce, 0))

		changed, err := r.ApplyChanges(ctx, job)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"AlterSchedule(1)"}, callOps(m))

		stored, err := m.LookupSchedule(ctx, id)
		require.NoError(t, err)
		assert.False(t, stored.Enabled)
		assert.Equal(t, "mine", stored.Name)
	})
}

func TestScheduleReconciler_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	m := memory.New(memory.WithServerVersion(8))
	job := seedJob(m, "nightly")
	m.PutSchedule(models.NewSchedule("mine", models.FrequencyDaily, 1), job.ID)
	m.FailOn("DeleteSchedule", boom)

	r := newScheduleReconciler(t, m, ScheduleOptions{})
	require.NoError(t, r.Load(ctx, editContext(job)))
	r.Remove(r.Current()[0])

	_, err := r.ApplyChanges(ctx, job)
	var remote *RemoteOperationError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, OpDelete, remote.Op)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, r.Removed(), 1)
}

// ============ Alert reconciler ============

func TestAlertReconciler_AssociateAndClear(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "X")
	m.PutAlert(&models.Alert{Name: "DiskSpaceLow", Severity: 17, Enabled: true})

	r, err := NewAlertReconciler(m, false, zerolog.Nop())
	require.NoError(t, err)

	alert := &models.Alert{Name: "DiskSpaceLow"}
	r.Add(alert)
	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, ok := m.Alert("DiskSpaceLow")
	require.True(t, ok)
	assert.Equal(t, uuid.NullUUID{UUID: job.ID, Valid: true}, stored.JobID)
	assert.Equal(t, 17, stored.Severity)

	require.True(t, r.Remove(alert))
	changed, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, _ = m.Alert("DiskSpaceLow")
	assert.False(t, stored.JobID.Valid)
	assert.Equal(t, []string{"AlterAlert(DiskSpaceLow)", "AlterAlert(DiskSpaceLow)"}, callOps(m))

	m.ResetCalls()
	changed, err = r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}

func TestAlertReconciler_MissingAlertIsSkipped(t *testing.T) {
	m := memory.New()
	job := seedJob(m, "X")
	r, err := NewAlertReconciler(m, false, zerolog.Nop())
	require.NoError(t, err)

	r.Add(&models.Alert{Name: "Nope"})
	changed, err := r.ApplyChanges(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}

func TestAlertReconciler_RemovalKeepsForeignAssociation(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "X")
	m.PutAlert(&models.Alert{Name: "Deadlock", JobID: uuid.NullUUID{UUID: job.ID, Valid: true}})

	r, err := NewAlertReconciler(m, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Load(ctx, editContext(job)))
	require.Len(t, r.Current(), 1)

	other := uuid.New()
	m.PutAlert(&models.Alert{Name: "Deadlock", JobID: uuid.NullUUID{UUID: other, Valid: true}})
	r.Remove(r.Current()[0])

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	stored, _ := m.Alert("Deadlock")
	assert.Equal(t, other, stored.JobID.UUID)
	assert.Empty(t, r.Removed())
}

func TestAlertReconciler_RemovalOfUnassociatedAlert(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	job := seedJob(m, "X")
	m.PutAlert(&models.Alert{Name: "Deadlock", JobID: uuid.NullUUID{UUID: job.ID, Valid: true}})

	r, err := NewAlertReconciler(m, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Load(ctx, editContext(job)))
	require.Len(t, r.Current(), 1)

	m.PutAlert(&models.Alert{Name: "Deadlock"})
	r.Remove(r.Current()[0])

	changed, err := r.ApplyChanges(ctx, job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
	assert.Empty(t, r.Removed())
}

func TestAlertReconciler_ReadOnly(t *testing.T) {
	m := memory.New()
	job := seedJob(m, "X")
	m.PutAlert(&models.Alert{Name: "DiskSpaceLow"})
	r, err := NewAlertReconciler(m, true, zerolog.Nop())
	require.NoError(t, err)

	r.Add(&models.Alert{Name: "DiskSpaceLow"})
	changed, err := r.ApplyChanges(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Calls())
}
