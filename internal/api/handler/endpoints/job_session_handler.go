package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"jobdef"
	"jobdef/internal/api/handler/mapper"
	"jobdef/internal/api/handler/middleware"
	"jobdef/internal/api/handler/request"
	"jobdef/internal/api/handler/response"
	"jobdef/internal/api/models"
	"jobdef/internal/api/service"
	"jobdef/internal/api/store"
	"jobdef/pkg"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errAlertNotFound = errors.New("alert not found")

type jobSessionHandler struct {
	sessions *service.SessionRegistry
	mapper   mapper.JobSessionMapper
	config   jobdef.AppConfig
	logger   zerolog.Logger
}

func newJobSessionHandler(sessions *service.SessionRegistry, cfg jobdef.AppConfig) *jobSessionHandler {
	return &jobSessionHandler{
		sessions: sessions,
		mapper:   mapper.NewJobSessionMapper(),
		config:   cfg,
		logger:   jobdef.Logger,
	}
}

func JobSessionHandler(router gin.IRouter, sessions *service.SessionRegistry, cfg jobdef.AppConfig) {
	h := newJobSessionHandler(sessions, cfg)

	routes := router.Group("/api/v1/job-sessions")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.POST("", h.open)
		routes.GET("/:sid", h.get)
		routes.DELETE("/:sid", h.close)
		routes.PUT("/:sid/job", h.updateHeader)

		// Steps
		routes.POST("/:sid/steps", h.addStep)
		routes.PUT("/:sid/steps/:stepId", h.updateStep)
		routes.DELETE("/:sid/steps/:stepId", h.removeStep)
		routes.POST("/:sid/steps/:stepId/move", h.moveStep)

		// Schedules
		routes.POST("/:sid/schedules", h.addSchedule)
		routes.PUT("/:sid/schedules/:key", h.updateSchedule)
		routes.DELETE("/:sid/schedules/:key", h.removeSchedule)

		// Alerts
		routes.POST("/:sid/alerts", h.addAlert)
		routes.DELETE("/:sid/alerts/:name", h.removeAlert)

		routes.GET("/:sid/validate", h.validate)
		routes.POST("/:sid/apply", middleware.RequireRole(h.config, models.RoleAdmin, models.RoleEditor), h.apply)
	}
}

// fail renders err with the status matching its kind. fallback is used for
// errors the editing core does not classify.
func (slf *jobSessionHandler) fail(c *gin.Context, err error, fallback int) {
	var (
		argErr      *service.ArgumentError
		conflictErr *service.NameConflictError
		remoteErr   *service.RemoteOperationError
	)
	status := fallback
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrStepNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrScheduleNotFound),
		errors.Is(err, errAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrReadOnly):
		status = http.StatusForbidden
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.As(err, &argErr),
		errors.Is(err, service.ErrDanglingStepTarget),
		errors.Is(err, service.ErrJobNameRequired):
		status = http.StatusBadRequest
	case errors.As(err, &remoteErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		slf.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Job session request failed")
	}
	c.JSON(status, response.APIError{Message: err.Error()})
}

func (slf *jobSessionHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("sid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (slf *jobSessionHandler) stepID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("stepId"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid step ID"})
		return 0, false
	}
	return id, true
}

func (slf *jobSessionHandler) bind(c *gin.Context, dto interface{}) bool {
	if err := pkg.ParseAndValidate(c, dto); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error(), Data: pkg.ValidationMessages(err)})
		return false
	}
	return true
}

// edit runs fn on the session named in the path and answers with the session state
func (slf *jobSessionHandler) edit(c *gin.Context, status int, fn func(*service.JobSession) ([]string, error)) {
	id, ok := slf.sessionID(c)
	if !ok {
		return
	}
	var res response.JobSession
	err := slf.sessions.With(id, func(s *service.JobSession) error {
		warnings, err := fn(s)
		if err != nil {
			return err
		}
		res = slf.mapper.ToJobSessionResponse(id, s)
		res.Warnings = warnings
		return nil
	})
	if err != nil {
		slf.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(status, res)
}

func writable(s *service.JobSession) error {
	if s.ReadOnly() {
		return service.ErrReadOnly
	}
	return nil
}

// ──────────────────────────────────────────────────
// Session lifecycle
// ──────────────────────────────────────────────────

func (slf *jobSessionHandler) open(c *gin.Context) {
	var req request.OpenJobSession
	if !slf.bind(c, &req) {
		return
	}
	jobCtx, err := slf.mapper.ToJobContext(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	id, session, err := slf.sessions.Open(c.Request.Context(), jobCtx)
	if err != nil {
		slf.fail(c, err, http.StatusInternalServerError)
		return
	}

	var res response.JobSession
	err = slf.sessions.With(id, func(s *service.JobSession) error {
		if jobCtx.Mode == models.JobModeCreate {
			if err := s.SetHeader(req.Name, req.Description, req.Category, req.OwnerLogin); err != nil {
				return err
			}
		}
		res = slf.mapper.ToJobSessionResponse(id, s)
		return nil
	})
	if err != nil {
		_ = slf.sessions.Close(id)
		slf.fail(c, err, http.StatusBadRequest)
		return
	}

	userID, _ := pkg.GetUserID(c)
	slf.logger.Info().
		Str("sessionId", id.String()).
		Str("jobId", session.Job().ID.String()).
		Str("userId", userID).
		Msg("Job session opened")
	c.JSON(http.StatusCreated, res)
}

func (slf *jobSessionHandler) get(c *gin.Context) {
	slf.edit(c, http.StatusOK, func(*service.JobSession) ([]string, error) { return nil, nil })
}

func (slf *jobSessionHandler) close(c *gin.Context) {
	id, ok := slf.sessionID(c)
	if !ok {
		return
	}
	if err := slf.sessions.Close(id); err != nil {
		slf.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (slf *jobSessionHandler) updateHeader(c *gin.Context) {
	var req request.UpdateJobHeader
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if s.Job().Created {
			return nil, service.ErrReadOnly
		}
		return nil, s.SetHeader(req.Name, req.Description, req.Category, req.OwnerLogin)
	})
}

// ──────────────────────────────────────────────────
// Steps
// ──────────────────────────────────────────────────

func (slf *jobSessionHandler) addStep(c *gin.Context) {
	var req request.AddStep
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusCreated, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		step := slf.mapper.ToJobStep(req)
		graph := s.Steps()
		var err error
		if req.Position > 0 {
			err = graph.InsertStep(req.Position, step)
		} else {
			err = graph.AddStep(step)
		}
		if err != nil {
			return nil, err
		}
		return payloadWarnings(step), nil
	})
}

func (slf *jobSessionHandler) updateStep(c *gin.Context) {
	stepID, ok := slf.stepID(c)
	if !ok {
		return
	}
	var req request.UpdateStep
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		graph := s.Steps()
		step, found := graph.Step(stepID)
		if !found {
			return nil, service.ErrStepNotFound
		}
		if req.Name != nil {
			if err := graph.RenameStep(stepID, *req.Name); err != nil {
				return nil, err
			}
		}
		if req.SuccessAction != nil {
			if err := graph.SetSuccessAction(stepID, slf.mapper.ToCompletionAction(*req.SuccessAction)); err != nil {
				return nil, err
			}
		}
		if req.FailureAction != nil {
			if err := graph.SetFailureAction(stepID, slf.mapper.ToCompletionAction(*req.FailureAction)); err != nil {
				return nil, err
			}
		}
		if req.RetryAttempts != nil && *req.RetryAttempts != step.RetryAttempts {
			step.RetryAttempts = *req.RetryAttempts
			step.Dirty = true
		}
		if req.RetryInterval != nil && *req.RetryInterval != step.RetryInterval {
			step.RetryInterval = *req.RetryInterval
			step.Dirty = true
		}

		panel := service.NewStepPayloadPanel(stepID, slf.logger)
		if err := panel.Load(s); err != nil {
			return nil, err
		}
		panel.Subsystem = models.Subsystem(pkg.ValueOr(req.Subsystem, string(panel.Subsystem)))
		panel.Command = pkg.ValueOr(req.Command, panel.Command)
		panel.DatabaseName = pkg.ValueOr(req.DatabaseName, panel.DatabaseName)
		if err := panel.Save(s, false); err != nil {
			return nil, err
		}
		if panel.Warning != "" {
			return []string{panel.Warning}, nil
		}
		return nil, nil
	})
}

func (slf *jobSessionHandler) removeStep(c *gin.Context) {
	stepID, ok := slf.stepID(c)
	if !ok {
		return
	}
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		return nil, s.Steps().RemoveStep(stepID)
	})
}

func (slf *jobSessionHandler) moveStep(c *gin.Context) {
	stepID, ok := slf.stepID(c)
	if !ok {
		return
	}
	var req request.MoveStep
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		return nil, s.Steps().MoveStep(stepID, req.To)
	})
}

func payloadWarnings(step *models.JobStep) []string {
	if step.Subsystem != models.SubsystemTransactSQL {
		return nil
	}
	if err := service.CheckTransactSQL(step.Command); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func (slf *jobSessionHandler) addSchedule(c *gin.Context) {
	var req request.AddSchedule
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusCreated, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		if req.ScheduleID > 0 {
			_, err := s.Schedules().Pick(c.Request.Context(), req.ScheduleID)
			return nil, err
		}
		s.Schedules().Add(slf.mapper.ToSchedule(req))
		return nil, nil
	})
}

// updateSchedule changes a schedule of the job. A read-only session opened with
// enable/disable allowed still accepts a change of the enabled flag alone.
func (slf *jobSessionHandler) updateSchedule(c *gin.Context) {
	var req request.UpdateSchedule
	if !slf.bind(c, &req) {
		return
	}
	key := c.Param("key")
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		toggleOnly := req.Name == nil && req.FrequencyType == nil && req.FrequencyInterval == nil &&
			req.ActiveStartDate == nil && req.ActiveStartTime == nil
		if s.ReadOnly() && !(toggleOnly && s.Context().AllowEnableDisable) {
			return nil, service.ErrReadOnly
		}
		schedule, found := s.Schedules().Get(key)
		if !found {
			return nil, store.ErrScheduleNotFound
		}
		slf.mapper.PatchSchedule(schedule, req)
		return nil, nil
	})
}

func (slf *jobSessionHandler) removeSchedule(c *gin.Context) {
	key := c.Param("key")
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		schedule, found := s.Schedules().Get(key)
		if !found {
			return nil, store.ErrScheduleNotFound
		}
		s.Schedules().Remove(schedule)
		return nil, nil
	})
}

// ──────────────────────────────────────────────────
// Alerts
// ──────────────────────────────────────────────────

func (slf *jobSessionHandler) addAlert(c *gin.Context) {
	var req request.AddAlert
	if !slf.bind(c, &req) {
		return
	}
	slf.edit(c, http.StatusCreated, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		if _, found := s.Alerts().Get(req.Name); !found {
			s.Alerts().Add(&models.Alert{Name: req.Name})
		}
		return nil, nil
	})
}

func (slf *jobSessionHandler) removeAlert(c *gin.Context) {
	name := c.Param("name")
	slf.edit(c, http.StatusOK, func(s *service.JobSession) ([]string, error) {
		if err := writable(s); err != nil {
			return nil, err
		}
		alert, found := s.Alerts().Get(name)
		if !found {
			return nil, errAlertNotFound
		}
		s.Alerts().Remove(alert)
		return nil, nil
	})
}

// ──────────────────────────────────────────────────
// Validation and commit
// ──────────────────────────────────────────────────

func (slf *jobSessionHandler) validate(c *gin.Context) {
	id, ok := slf.sessionID(c)
	if !ok {
		return
	}
	var report service.ValidationReport
	err := slf.sessions.With(id, func(s *service.JobSession) error {
		report = s.Validate()
		return nil
	})
	if err != nil {
		slf.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, report)
}

// apply validates the steps and writes the session to the job store. Warnings
// that were not confirmed stop the commit with 409 and the report.
func (slf *jobSessionHandler) apply(c *gin.Context) {
	id, ok := slf.sessionID(c)
	if !ok {
		return
	}
	var req request.ApplyJobSession
	if !slf.bind(c, &req) {
		return
	}

	var (
		report   service.ValidationReport
		result   service.ApplyResult
		res      response.ApplyJobSession
		conflict bool
	)
	err := slf.sessions.With(id, func(s *service.JobSession) error {
		report = s.Validate()
		if report.HasWarnings() {
			if !req.Confirm {
				conflict = true
				return nil
			}
			s.Confirm()
		}
		var err error
		if result, err = s.ApplyChanges(c.Request.Context()); err != nil {
			return err
		}
		res = slf.mapper.ToApplyResponse(s.Job(), result)
		return nil
	})
	switch {
	case err != nil:
		slf.fail(c, err, http.StatusInternalServerError)
	case conflict:
		c.JSON(http.StatusConflict, response.APIError{Message: "Step validation raised warnings that must be confirmed", Data: report})
	case !result.Permitted:
		c.JSON(http.StatusForbidden, response.APIError{Message: service.ErrPermissionDenied.Error()})
	default:
		slf.logger.Info().
			Str("sessionId", id.String()).
			Str("jobId", res.JobID.String()).
			Bool("created", res.JobCreated).
			Msg("Job session applied")
		c.JSON(http.StatusOK, res)
	}
}
