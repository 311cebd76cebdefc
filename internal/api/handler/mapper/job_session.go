package mapper

import (
	"jobdef/internal/api/handler/request"
	"jobdef/internal/api/handler/response"
	"jobdef/internal/api/models"
	"jobdef/internal/api/service"

	"github.com/google/uuid"
)

// JobSessionMapper handles mapping between edit sessions and DTOs
type JobSessionMapper interface {
	ToJobContext(req request.OpenJobSession) (models.JobContext, error)
	ToJobStep(req request.AddStep) *models.JobStep
	ToCompletionAction(req request.CompletionAction) models.CompletionAction
	ToSchedule(req request.AddSchedule) *models.Schedule
	PatchSchedule(s *models.Schedule, req request.UpdateSchedule)
	ToJobSessionResponse(id uuid.UUID, s *service.JobSession) response.JobSession
	ToApplyResponse(job *models.Job, result service.ApplyResult) response.ApplyJobSession
}

// JobSessionMapperImpl implements JobSessionMapper
type JobSessionMapperImpl struct{}

func NewJobSessionMapper() JobSessionMapper {
	return &JobSessionMapperImpl{}
}

func (m *JobSessionMapperImpl) ToJobContext(req request.OpenJobSession) (models.JobContext, error) {
	jobCtx := models.JobContext{
		Mode:                models.JobMode(req.Mode),
		URN:                 req.URN,
		ExcludedScheduleIDs: req.ExcludedScheduleIDs,
		RemovedScheduleIDs:  req.RemovedScheduleIDs,
		ReadOnly:            req.ReadOnly,
		AllowEnableDisable:  req.AllowEnableDisable,
	}
	if req.JobID != "" {
		id, err := uuid.Parse(req.JobID)
		if err != nil {
			return models.JobContext{}, err
		}
		jobCtx.JobID = id
	}
	return jobCtx, nil
}

// ToJobStep maps an add request to a local step. Missing actions keep the
// step defaults.
func (m *JobSessionMapperImpl) ToJobStep(req request.AddStep) *models.JobStep {
	step := models.NewJobStep(req.Name, models.Subsystem(req.Subsystem), req.Command)
	step.DatabaseName = req.DatabaseName
	step.RetryAttempts = req.RetryAttempts
	step.RetryInterval = req.RetryInterval
	if req.SuccessAction != nil {
		step.SuccessAction = m.ToCompletionAction(*req.SuccessAction)
	}
	if req.FailureAction != nil {
		step.FailureAction = m.ToCompletionAction(*req.FailureAction)
	}
	return step
}

func (m *JobSessionMapperImpl) ToCompletionAction(req request.CompletionAction) models.CompletionAction {
	action := models.CompletionAction{Action: models.StepAction(req.Action)}
	if action.Action == models.ActionGoToStep {
		action.TargetID = req.TargetID
	}
	return action
}

func (m *JobSessionMapperImpl) ToSchedule(req request.AddSchedule) *models.Schedule {
	s := models.NewSchedule(req.Name, models.FrequencyType(req.FrequencyType), req.FrequencyInterval)
	s.ActiveStartDate = req.ActiveStartDate
	s.ActiveStartTime = req.ActiveStartTime
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	return s
}

// PatchSchedule applies the set fields of req and marks s dirty on change
func (m *JobSessionMapperImpl) PatchSchedule(s *models.Schedule, req request.UpdateSchedule) {
	before := *s
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.FrequencyType != nil {
		s.FrequencyType = models.FrequencyType(*req.FrequencyType)
	}
	if req.FrequencyInterval != nil {
		s.FrequencyInterval = *req.FrequencyInterval
	}
	if req.ActiveStartDate != nil {
		s.ActiveStartDate = *req.ActiveStartDate
	}
	if req.ActiveStartTime != nil {
		s.ActiveStartTime = *req.ActiveStartTime
	}
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	if before != *s {
		s.Dirty = true
	}
}

func (m *JobSessionMapperImpl) ToJobSessionResponse(id uuid.UUID, s *service.JobSession) response.JobSession {
	job := s.Job()
	res := response.JobSession{
		SessionID: id,
		Mode:      string(s.Context().Mode),
		ReadOnly:  s.ReadOnly(),
		Job: response.JobHeader{
			ID:          job.ID,
			Name:        job.Name,
			Description: job.Description,
			Category:    job.Category,
			OwnerLogin:  job.OwnerLogin,
			Enabled:     job.Enabled,
			Created:     job.Created,
			UpdatedAt:   job.UpdatedAt,
		},
		Steps:            make([]response.JobStep, 0, s.Steps().Len()),
		Schedules:        m.toSchedules(s.Schedules().Current()),
		RemovedSchedules: m.toSchedules(s.Schedules().Removed()),
		Alerts:           make([]response.Alert, 0, len(s.Alerts().Current())),
	}
	for _, step := range s.Steps().Steps() {
		res.Steps = append(res.Steps, m.toStep(step))
	}
	for _, a := range s.Alerts().Current() {
		res.Alerts = append(res.Alerts, response.Alert{
			Name:     a.Name,
			Severity: a.Severity,
			Enabled:  a.Enabled,
			Created:  a.Created,
		})
	}
	return res
}

func (m *JobSessionMapperImpl) ToApplyResponse(job *models.Job, result service.ApplyResult) response.ApplyJobSession {
	return response.ApplyJobSession{
		JobID:            job.ID,
		JobCreated:       result.JobCreated,
		StepsChanged:     result.StepsChanged,
		SchedulesChanged: result.SchedulesChanged,
		AlertsChanged:    result.AlertsChanged,
	}
}

func (m *JobSessionMapperImpl) toStep(step *models.JobStep) response.JobStep {
	return response.JobStep{
		UID:           step.UID,
		ID:            step.ID,
		Name:          step.Name,
		Subsystem:     string(step.Subsystem),
		Command:       step.Command,
		DatabaseName:  step.DatabaseName,
		SuccessAction: response.CompletionAction{Action: string(step.SuccessAction.Action), TargetID: step.SuccessAction.TargetID},
		FailureAction: response.CompletionAction{Action: string(step.FailureAction.Action), TargetID: step.FailureAction.TargetID},
		RetryAttempts: step.RetryAttempts,
		RetryInterval: step.RetryInterval,
		Created:       step.Created,
	}
}

func (m *JobSessionMapperImpl) toSchedules(schedules []*models.Schedule) []response.Schedule {
	out := make([]response.Schedule, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, response.Schedule{
			Key:               s.Key(),
			ID:                s.ID,
			Name:              s.Name,
			Enabled:           s.Enabled,
			FrequencyType:     int(s.FrequencyType),
			FrequencyInterval: s.FrequencyInterval,
			ActiveStartDate:   s.ActiveStartDate,
			ActiveStartTime:   s.ActiveStartTime,
			Created:           s.Created,
		})
	}
	return out
}
