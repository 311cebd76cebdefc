package service

import (
	"context"
	"slices"

	"jobdef/internal/api/changeset"
	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/rs/zerolog"
)

// DefaultSharedScheduleMinVersion is the first server major version on which
// schedules can be shared between jobs.
const DefaultSharedScheduleMinVersion = 9

// ScheduleOptions tune a ScheduleReconciler
type ScheduleOptions struct {
	// SharedMinVersion is the server major version from which schedules are shared
	SharedMinVersion int
	// ReadOnly blocks structural changes
	ReadOnly bool
	// AllowEnableDisable lets a read-only collection still push enabled flags
	AllowEnableDisable bool
}

// ScheduleReconciler tracks the schedules of a job and applies the local
// changes to the job store.
type ScheduleReconciler struct {
	schedules *changeset.ChangeSet[*models.Schedule]
	store     store.ScheduleStore
	server    store.ServerStore
	opts      ScheduleOptions
	logger    zerolog.Logger
}

func NewScheduleReconciler(schedules store.ScheduleStore, server store.ServerStore, opts ScheduleOptions, logger zerolog.Logger) (*ScheduleReconciler, error) {
	if schedules == nil {
		return nil, &ArgumentError{Name: "schedules", Err: ErrNilStore}
	}
	if server == nil {
		return nil, &ArgumentError{Name: "server", Err: ErrNilStore}
	}
	if opts.SharedMinVersion <= 0 {
		opts.SharedMinVersion = DefaultSharedScheduleMinVersion
	}
	return &ScheduleReconciler{
		schedules: changeset.New[*models.Schedule](),
		store:     schedules,
		server:    server,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Load reads the schedules of an existing job. Excluded schedules are skipped,
// schedules listed as removed start as pending removals.
func (slf *ScheduleReconciler) Load(ctx context.Context, jobCtx models.JobContext) error {
	if !jobCtx.IsEditing() {
		return nil
	}
	schedules, err := slf.store.ListSchedules(ctx, jobCtx.JobID)
	if err != nil {
		return remoteError(OpLookup, "schedules of job", jobCtx.JobID.String(), err)
	}
	for _, s := range schedules {
		switch {
		case slices.Contains(jobCtx.ExcludedScheduleIDs, s.ID):
			continue
		case slices.Contains(jobCtx.RemovedScheduleIDs, s.ID):
			slf.schedules.MarkRemoved(s)
		default:
			slf.schedules.Add(s)
		}
	}
	return nil
}

// Add puts a schedule on the job, undoing a pending removal of the same schedule
func (slf *ScheduleReconciler) Add(s *models.Schedule) {
	slf.schedules.Add(s)
}

// Pick adds an existing schedule of another job (or a detached one) by id.
// A schedule already on the job is returned as is; one pending removal is put
// back unchanged.
func (slf *ScheduleReconciler) Pick(ctx context.Context, scheduleID int) (*models.Schedule, error) {
	key := models.ScheduleKey(scheduleID)
	if s, ok := slf.schedules.Get(key); ok {
		return s, nil
	}
	if s, ok := slf.schedules.GetRemoved(key); ok {
		slf.schedules.Add(s)
		return s, nil
	}
	s, err := slf.store.LookupSchedule(ctx, scheduleID)
	if err != nil {
		return nil, remoteError(OpLookup, "schedule", key, err)
	}
	s.Created = true
	s.Attached = false
	s.Dirty = false
	slf.schedules.Add(s)
	return s, nil
}

// Remove takes a schedule off the job
func (slf *ScheduleReconciler) Remove(s *models.Schedule) bool {
	return slf.schedules.Remove(s)
}

// Get returns the current schedule with the given change-set key
func (slf *ScheduleReconciler) Get(key string) (*models.Schedule, bool) {
	return slf.schedules.Get(key)
}

func (slf *ScheduleReconciler) Current() []*models.Schedule { return slf.schedules.Current() }
func (slf *ScheduleReconciler) Removed() []*models.Schedule { return slf.schedules.Removed() }

// IsShared reports whether the server shares schedules between jobs
func (slf *ScheduleReconciler) IsShared(ctx context.Context) (bool, error) {
	version, err := slf.server.ServerVersion(ctx)
	if err != nil {
		return false, remoteError(OpServerVersion, "server", "", err)
	}
	return version >= slf.opts.SharedMinVersion, nil
}

// ApplyChanges detaches or deletes removed schedules and attaches, creates or
// alters the current ones. It returns true when the job store was modified.
// A failure stops the run; calls already made are not rolled back.
func (slf *ScheduleReconciler) ApplyChanges(ctx context.Context, job *models.Job) (bool, error) {
	if slf.opts.ReadOnly {
		if !slf.opts.AllowEnableDisable {
			return false, nil
		}
		return slf.applyEnabledFlags(ctx)
	}

	shared, err := slf.IsShared(ctx)
	if err != nil {
		return false, err
	}
	changed := false

	for _, s := range slf.schedules.Removed() {
		if s.Created {
			if shared {
				err = slf.store.RemoveSharedReference(ctx, job.ID, s.ID)
			} else {
				err = slf.store.DeleteSchedule(ctx, s.ID)
			}
			if err != nil {
				slf.logger.Error().Err(err).Int("scheduleId", s.ID).Bool("shared", shared).Msg("Error removing schedule")
				if shared {
					return changed, remoteError(OpDetach, "schedule", s.Key(), err)
				}
				return changed, remoteError(OpDelete, "schedule", s.Key(), err)
			}
			changed = true
		}
		slf.schedules.Forget(s.Key())
	}

	for _, s := range slf.schedules.Current() {
		written, err := slf.applySchedule(ctx, job, s, shared)
		changed = changed || written
		if err != nil {
			return changed, err
		}
	}

	if changed {
		slf.logger.Info().Str("jobId", job.ID.String()).Bool("shared", shared).Msg("Job schedules applied")
	}
	return changed, nil
}

func (slf *ScheduleReconciler) applySchedule(ctx context.Context, job *models.Job, s *models.Schedule, shared bool) (bool, error) {
	// Before shared schedules a schedule belongs to one job only, so a schedule
	// picked from another job is copied to this one.
	if !s.Created || (!shared && !s.Attached) {
		id, err := slf.store.CreateSchedule(ctx, job.ID, s)
		if err != nil {
			slf.logger.Error().Err(err).Str("schedule", s.Name).Msg("Error creating schedule")
			return false, remoteError(OpCreate, "schedule", s.Name, err)
		}
		s.ID = id
		s.Created = true
		s.Attached = true
		s.Dirty = false
		return true, nil
	}

	changed := false
	if !s.Attached {
		if err := slf.store.AddSharedReference(ctx, job.ID, s.ID); err != nil {
			slf.logger.Error().Err(err).Int("scheduleId", s.ID).Msg("Error attaching shared schedule")
			return false, remoteError(OpAttach, "schedule", s.Key(), err)
		}
		s.Attached = true
		changed = true
	}
	if s.Dirty {
		if err := slf.store.AlterSchedule(ctx, s); err != nil {
			slf.logger.Error().Err(err).Int("scheduleId", s.ID).Msg("Error altering schedule")
			return changed, remoteError(OpAlter, "schedule", s.Key(), err)
		}
		s.Dirty = false
		changed = true
	}
	return changed, nil
}

// applyEnabledFlags pushes only the enabled flag of changed existing schedules
func (slf *ScheduleReconciler) applyEnabledFlags(ctx context.Context) (bool, error) {
	changed := false
	for _, s := range slf.schedules.Current() {
		if !s.Created || !s.Dirty {
			continue
		}
		remote, err := slf.store.LookupSchedule(ctx, s.ID)
		if err != nil {
			return changed, remoteError(OpLookup, "schedule", s.Key(), err)
		}
		if remote.Enabled != s.Enabled {
			remote.Enabled = s.Enabled
			if err := slf.store.AlterSchedule(ctx, remote); err != nil {
				return changed, remoteError(OpAlter, "schedule", s.Key(), err)
			}
			changed = true
		}
		s.Dirty = false
	}
	return changed, nil
}
