package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier is told about jobs whose definition changed
type Notifier interface {
	JobChanged(ctx context.Context, change models.JobChange) error
}

// ApplyResult summarises one ApplyChanges run
type ApplyResult struct {
	Permitted        bool `json:"permitted"`
	JobCreated       bool `json:"jobCreated"`
	StepsChanged     bool `json:"stepsChanged"`
	SchedulesChanged bool `json:"schedulesChanged"`
	AlertsChanged    bool `json:"alertsChanged"`
}

// ChangesMade returns true when the job store was modified
func (r ApplyResult) ChangesMade() bool {
	return r.JobCreated || r.StepsChanged || r.SchedulesChanged || r.AlertsChanged
}

type SessionOption func(*JobSession)

func WithNotifier(n Notifier) SessionOption {
	return func(s *JobSession) { s.notifier = n }
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *JobSession) { s.logger = logger }
}

// WithSharedScheduleMinVersion overrides the server major version from which
// schedules are shared between jobs.
func WithSharedScheduleMinVersion(major int) SessionOption {
	return func(s *JobSession) { s.sharedMinVersion = major }
}

// JobSession is one edit of a job definition. It owns the step graph and the
// schedule and alert change-sets until ApplyChanges writes them to the store.
// A session is not safe for concurrent use.
type JobSession struct {
	jobCtx models.JobContext
	store  store.Store

	job       *models.Job
	graph     *StepGraph
	validator *StepValidator
	schedules *ScheduleReconciler
	alerts    *AlertReconciler

	notifier         Notifier
	sharedMinVersion int
	logger           zerolog.Logger
	loaded           bool
}

func NewJobSession(jobCtx models.JobContext, jobStore store.Store, opts ...SessionOption) (*JobSession, error) {
	if jobStore == nil {
		return nil, &ArgumentError{Name: "store", Err: ErrNilStore}
	}
	if err := jobCtx.Validate(); err != nil {
		return nil, &ArgumentError{Name: "jobContext", Err: err}
	}

	s := &JobSession{
		jobCtx:           jobCtx,
		store:            jobStore,
		sharedMinVersion: DefaultSharedScheduleMinVersion,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewStepValidator(s.logger)
	return s, nil
}

// Load reads the job, its steps, schedules and alerts. In create mode the
// session starts from an empty, enabled job.
func (slf *JobSession) Load(ctx context.Context) error {
	schedules, err := NewScheduleReconciler(slf.store, slf.store, ScheduleOptions{
		SharedMinVersion:   slf.sharedMinVersion,
		ReadOnly:           slf.jobCtx.ReadOnly,
		AllowEnableDisable: slf.jobCtx.AllowEnableDisable,
	}, slf.logger)
	if err != nil {
		return err
	}
	alerts, err := NewAlertReconciler(slf.store, slf.jobCtx.ReadOnly, slf.logger)
	if err != nil {
		return err
	}

	if !slf.jobCtx.IsEditing() {
		slf.job = &models.Job{ID: uuid.New(), Enabled: true}
		slf.graph = NewStepGraph(false)
		slf.schedules, slf.alerts = schedules, alerts
		slf.loaded = true
		return nil
	}

	jobID := slf.jobCtx.JobID
	job, err := slf.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return err
		}
		return remoteError(OpLookup, "job", jobID.String(), err)
	}
	job.Created = true

	steps, err := slf.store.ListSteps(ctx, jobID)
	if err != nil {
		return remoteError(OpLookup, "steps of job", job.Name, err)
	}
	for _, step := range steps {
		step.Created = true
		step.ReadOnly = slf.jobCtx.ReadOnly
	}
	if err := schedules.Load(ctx, slf.jobCtx); err != nil {
		return err
	}
	if err := alerts.Load(ctx, slf.jobCtx); err != nil {
		return err
	}

	slf.job = job
	slf.graph = NewStepGraph(true, steps...)
	slf.schedules, slf.alerts = schedules, alerts
	slf.validator.Reset()
	slf.loaded = true

	slf.logger.Debug().
		Str("jobId", jobID.String()).
		Int("steps", len(steps)).
		Int("schedules", len(schedules.Current())).
		Int("alerts", len(alerts.Current())).
		Msg("Job definition loaded")
	return nil
}

func (slf *JobSession) Context() models.JobContext     { return slf.jobCtx }
func (slf *JobSession) Job() *models.Job               { return slf.job }
func (slf *JobSession) Steps() *StepGraph              { return slf.graph }
func (slf *JobSession) Schedules() *ScheduleReconciler { return slf.schedules }
func (slf *JobSession) Alerts() *AlertReconciler       { return slf.alerts }
func (slf *JobSession) Loaded() bool                   { return slf.loaded }
func (slf *JobSession) ReadOnly() bool                 { return slf.jobCtx.ReadOnly }
func (slf *JobSession) SetNotifier(n Notifier)         { slf.notifier = n }
func (slf *JobSession) SharedScheduleMinVersion() int  { return slf.sharedMinVersion }

// SetHeader fills the header of a job that does not exist yet
func (slf *JobSession) SetHeader(name, description, category, owner string) error {
	if !slf.loaded {
		return ErrSessionNotLoaded
	}
	if slf.job.Created {
		return errors.New("the header of an existing job cannot be changed in an edit session")
	}
	if strings.TrimSpace(name) == "" {
		return ErrJobNameRequired
	}
	slf.job.Name = name
	slf.job.Description = description
	slf.job.Category = category
	slf.job.OwnerLogin = owner
	return nil
}

// Validate reports the warnings of the current step graph. Once confirmed, the
// same structure validates clean until it is mutated again.
func (slf *JobSession) Validate() ValidationReport {
	if !slf.loaded {
		return ValidationReport{}
	}
	return slf.validator.Validate(slf.graph)
}

// Confirm accepts the warnings of the current step graph
func (slf *JobSession) Confirm() {
	if slf.loaded {
		slf.validator.Confirm(slf.graph)
	}
}

// ApplyChanges writes the session to the job store: permission check, job
// creation when needed, then steps, schedules and alerts. A denied permission
// returns a result with Permitted false and no error. Calls already issued
// are not rolled back when a later one fails.
func (slf *JobSession) ApplyChanges(ctx context.Context) (ApplyResult, error) {
	var result ApplyResult
	if !slf.loaded {
		return result, ErrSessionNotLoaded
	}

	checkID := uuid.Nil
	if slf.job.Created {
		checkID = slf.job.ID
	}
	allowed, err := slf.store.CanEditJob(ctx, checkID)
	if err != nil {
		return result, remoteError(OpPermissionCheck, "job", slf.job.Name, err)
	}
	if !allowed {
		slf.logger.Warn().Str("jobId", slf.job.ID.String()).Msg("Not allowed to modify job")
		return result, nil
	}
	result.Permitted = true

	if slf.jobCtx.ReadOnly && !slf.jobCtx.AllowEnableDisable {
		return result, nil
	}
	if !slf.jobCtx.ReadOnly {
		if err := slf.graph.CheckNames(); err != nil {
			return result, err
		}
		if err := slf.graph.CheckTargets(); err != nil {
			return result, err
		}
	}

	if !slf.job.Created {
		if strings.TrimSpace(slf.job.Name) == "" {
			return result, ErrJobNameRequired
		}
		if err := slf.store.CreateJob(ctx, slf.job); err != nil {
			slf.logger.Error().Err(err).Str("job", slf.job.Name).Msg("Error creating job")
			return result, remoteError(OpCreate, "job", slf.job.Name, err)
		}
		slf.job.Created = true
		slf.jobCtx.Mode = models.JobModeEdit
		slf.jobCtx.JobID = slf.job.ID
		result.JobCreated = true
	}

	if !slf.jobCtx.ReadOnly {
		slf.graph.ApplyLastStepCompletionChange()
	}

	steps, err := NewStepReconciler(slf.graph, slf.store, slf.jobCtx.ReadOnly, slf.logger)
	if err != nil {
		return result, err
	}
	if result.StepsChanged, err = steps.ApplyChanges(ctx, slf.job); err != nil {
		return result, err
	}
	if result.SchedulesChanged, err = slf.schedules.ApplyChanges(ctx, slf.job); err != nil {
		return result, err
	}
	if result.AlertsChanged, err = slf.alerts.ApplyChanges(ctx, slf.job); err != nil {
		return result, err
	}

	if result.ChangesMade() {
		slf.notify(ctx, result)
	}
	return result, nil
}

func (slf *JobSession) notify(ctx context.Context, result ApplyResult) {
	if slf.notifier == nil {
		return
	}
	change := models.JobChange{
		JobID:     slf.job.ID,
		JobName:   slf.job.Name,
		Created:   result.JobCreated,
		Steps:     result.StepsChanged,
		Schedules: result.SchedulesChanged,
		Alerts:    result.AlertsChanged,
		ChangedAt: time.Now().UTC(),
	}
	if err := slf.notifier.JobChanged(ctx, change); err != nil {
		slf.logger.Warn().Err(err).Str("jobId", slf.job.ID.String()).Msg("Error publishing job change")
	}
}
