package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
)

var _ store.Store = (*MSDBStore)(nil)

// MSDBStore edits SQL Server Agent jobs through the msdb stored procedures.
// The connection must use msdb as its database.
type MSDBStore struct {
	db *sql.DB
}

func NewMSDBStore(db *sql.DB) *MSDBStore {
	return &MSDBStore{db: db}
}

func jobParam(id uuid.UUID) sql.NamedArg {
	return sql.Named("job_id", mssql.UniqueIdentifier(id))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ──────────────────────────────────────────────────
// Server
// ──────────────────────────────────────────────────

func (slf *MSDBStore) ServerVersion(ctx context.Context) (int, error) {
	var version string
	if err := slf.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS nvarchar(128))").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read server version: %w", err)
	}
	return parseMajorVersion(version)
}

// CanEditJob allows sysadmins everywhere, job owners on their jobs and
// SQLAgentUserRole members to create jobs.
func (slf *MSDBStore) CanEditJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var allowed int
	var err error
	if jobID == uuid.Nil {
		err = slf.db.QueryRowContext(ctx, `
			SELECT CASE WHEN IS_SRVROLEMEMBER('sysadmin') = 1
			         OR ISNULL(IS_ROLEMEMBER('SQLAgentUserRole'), 0) = 1
			       THEN 1 ELSE 0 END`).Scan(&allowed)
	} else {
		err = slf.db.QueryRowContext(ctx, `
			SELECT CASE WHEN IS_SRVROLEMEMBER('sysadmin') = 1
			         OR EXISTS (SELECT 1 FROM dbo.sysjobs WHERE job_id = @job_id AND owner_sid = SUSER_SID())
			       THEN 1 ELSE 0 END`, jobParam(jobID)).Scan(&allowed)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check job permission: %w", err)
	}
	return allowed == 1, nil
}

// ──────────────────────────────────────────────────
// Jobs and steps
// ──────────────────────────────────────────────────

func (slf *MSDBStore) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var (
		id          mssql.UniqueIdentifier
		job         models.Job
		description sql.NullString
		category    sql.NullString
		owner       sql.NullString
		enabled     int
	)
	err := slf.db.QueryRowContext(ctx, `
		SELECT j.job_id, j.name, j.description, c.name, SUSER_SNAME(j.owner_sid), j.enabled, j.date_created, j.date_modified
		FROM dbo.sysjobs j
		LEFT JOIN dbo.syscategories c ON c.category_id = j.category_id
		WHERE j.job_id = @job_id`, jobParam(jobID)).
		Scan(&id, &job.Name, &description, &category, &owner, &enabled, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.ID = uuid.UUID(id)
	job.Description = description.String
	job.Category = category.String
	job.OwnerLogin = owner.String
	job.Enabled = enabled == 1
	job.Created = true
	return &job, nil
}

// CreateJob adds the job and targets it at the local server. The id assigned
// by the server is written back to job.
func (slf *MSDBStore) CreateJob(ctx context.Context, job *models.Job) error {
	tx, err := slf.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id mssql.UniqueIdentifier
	_, err = tx.ExecContext(ctx, `
		EXEC dbo.sp_add_job
			@job_name = @name,
			@enabled = @enabled,
			@description = @description,
			@category_name = @category,
			@owner_login_name = @owner,
			@job_id = @job_id OUTPUT`,
		sql.Named("name", job.Name),
		sql.Named("enabled", job.Enabled),
		sql.Named("description", nullString(job.Description)),
		sql.Named("category", nullString(job.Category)),
		sql.Named("owner", nullString(job.OwnerLogin)),
		sql.Named("job_id", sql.Out{Dest: &id}),
	)
	if err != nil {
		return fmt.Errorf("sp_add_job %s: %w", job.Name, err)
	}
	if _, err = tx.ExecContext(ctx, "EXEC dbo.sp_add_jobserver @job_id = @job_id, @server_name = N'(local)'", jobParam(uuid.UUID(id))); err != nil {
		return fmt.Errorf("sp_add_jobserver %s: %w", job.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	job.ID = uuid.UUID(id)
	return nil
}

func (slf *MSDBStore) ListSteps(ctx context.Context, jobID uuid.UUID) ([]*models.JobStep, error) {
	rows, err := slf.db.QueryContext(ctx, `
		SELECT step_uid, step_id, step_name, subsystem, command, database_name,
		       on_success_action, on_success_step_id, on_fail_action, on_fail_step_id,
		       retry_attempts, retry_interval
		FROM dbo.sysjobsteps
		WHERE job_id = @job_id
		ORDER BY step_id`, jobParam(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.JobStep
	for rows.Next() {
		var (
			uid                      mssql.UniqueIdentifier
			step                     models.JobStep
			subsystem                string
			command, database        sql.NullString
			onSuccess, onSuccessStep int
			onFailure, onFailureStep int
		)
		if err := rows.Scan(&uid, &step.ID, &step.Name, &subsystem, &command, &database,
			&onSuccess, &onSuccessStep, &onFailure, &onFailureStep,
			&step.RetryAttempts, &step.RetryInterval); err != nil {
			return nil, err
		}
		if step.SuccessAction, err = agentAction(onSuccess, onSuccessStep); err != nil {
			return nil, err
		}
		if step.FailureAction, err = agentAction(onFailure, onFailureStep); err != nil {
			return nil, err
		}
		step.UID = uuid.UUID(uid)
		step.JobID = jobID
		step.Subsystem = models.Subsystem(subsystem)
		step.Command = command.String
		step.DatabaseName = database.String
		step.Created = true
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

// SaveSteps rewrites the step list of a job in one transaction. Removed steps
// are deleted first, then every current step is updated in place, re-added at
// its position or added. Transitions are written in a last pass so that
// GoToStep targets always exist.
func (slf *MSDBStore) SaveSteps(ctx context.Context, jobID uuid.UUID, current []*models.JobStep, removed []*models.JobStep) error {
	tx, err := slf.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	uids := assignedUIDs{}
	for _, step := range removed {
		remoteID, found, err := slf.remoteStepID(ctx, tx, jobID, step.UID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := deleteStep(ctx, tx, jobID, remoteID); err != nil {
			return err
		}
	}

	for i, step := range current {
		position := i + 1
		remoteID, found, err := slf.remoteStepID(ctx, tx, jobID, step.UID)
		if err != nil {
			return err
		}
		switch {
		case found && remoteID == position:
			err = updateStep(ctx, tx, jobID, position, step)
		case found:
			if err = deleteStep(ctx, tx, jobID, remoteID); err == nil {
				uids[step], err = addStep(ctx, tx, jobID, position, step)
			}
		default:
			uids[step], err = addStep(ctx, tx, jobID, position, step)
		}
		if err != nil {
			return err
		}
	}

	for i, step := range current {
		onSuccess, onSuccessStep := agentActionCode(step.SuccessAction)
		onFailure, onFailureStep := agentActionCode(step.FailureAction)
		if _, err := tx.ExecContext(ctx, `
			EXEC dbo.sp_update_jobstep
				@job_id = @job_id,
				@step_id = @step_id,
				@on_success_action = @on_success_action,
				@on_success_step_id = @on_success_step_id,
				@on_fail_action = @on_fail_action,
				@on_fail_step_id = @on_fail_step_id`,
			jobParam(jobID),
			sql.Named("step_id", i+1),
			sql.Named("on_success_action", onSuccess),
			sql.Named("on_success_step_id", onSuccessStep),
			sql.Named("on_fail_action", onFailure),
			sql.Named("on_fail_step_id", onFailureStep),
		); err != nil {
			return fmt.Errorf("sp_update_jobstep %d transitions: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	uids.apply()
	return nil
}

// assignedUIDs holds the step_uid values the server handed out inside a
// transaction that has not committed yet.
type assignedUIDs map[*models.JobStep]uuid.UUID

func (a assignedUIDs) apply() {
	for step, uid := range a {
		step.UID = uid
	}
}

func (slf *MSDBStore) remoteStepID(ctx context.Context, tx *sql.Tx, jobID, uid uuid.UUID) (int, bool, error) {
	var id int
	err := tx.QueryRowContext(ctx, "SELECT step_id FROM dbo.sysjobsteps WHERE job_id = @job_id AND step_uid = @step_uid",
		jobParam(jobID), sql.Named("step_uid", mssql.UniqueIdentifier(uid))).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func deleteStep(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, stepID int) error {
	if _, err := tx.ExecContext(ctx, "EXEC dbo.sp_delete_jobstep @job_id = @job_id, @step_id = @step_id",
		jobParam(jobID), sql.Named("step_id", stepID)); err != nil {
		return fmt.Errorf("sp_delete_jobstep %d: %w", stepID, err)
	}
	return nil
}

// addStep inserts the step with placeholder transitions and returns the
// step_uid the server assigned.
func addStep(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, position int, step *models.JobStep) (uuid.UUID, error) {
	var uid mssql.UniqueIdentifier
	if _, err := tx.ExecContext(ctx, `
		EXEC dbo.sp_add_jobstep
			@job_id = @job_id,
			@step_id = @step_id,
			@step_name = @step_name,
			@subsystem = @subsystem,
			@command = @command,
			@database_name = @database_name,
			@on_success_action = 1,
			@on_fail_action = 2,
			@retry_attempts = @retry_attempts,
			@retry_interval = @retry_interval,
			@step_uid = @step_uid OUTPUT`,
		jobParam(jobID),
		sql.Named("step_id", position),
		sql.Named("step_name", step.Name),
		sql.Named("subsystem", agentSubsystem(step.Subsystem)),
		sql.Named("command", step.Command),
		sql.Named("database_name", nullString(step.DatabaseName)),
		sql.Named("retry_attempts", step.RetryAttempts),
		sql.Named("retry_interval", step.RetryInterval),
		sql.Named("step_uid", sql.Out{Dest: &uid}),
	); err != nil {
		return uuid.Nil, fmt.Errorf("sp_add_jobstep %s: %w", step.Name, err)
	}
	return uuid.UUID(uid), nil
}

func updateStep(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, position int, step *models.JobStep) error {
	if _, err := tx.ExecContext(ctx, `
		EXEC dbo.sp_update_jobstep
			@job_id = @job_id,
			@step_id = @step_id,
			@step_name = @step_name,
			@subsystem = @subsystem,
			@command = @command,
			@database_name = @database_name,
			@retry_attempts = @retry_attempts,
			@retry_interval = @retry_interval`,
		jobParam(jobID),
		sql.Named("step_id", position),
		sql.Named("step_name", step.Name),
		sql.Named("subsystem", agentSubsystem(step.Subsystem)),
		sql.Named("command", step.Command),
		sql.Named("database_name", nullString(step.DatabaseName)),
		sql.Named("retry_attempts", step.RetryAttempts),
		sql.Named("retry_interval", step.RetryInterval),
	); err != nil {
		return fmt.Errorf("sp_update_jobstep %s: %w", step.Name, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

const scheduleColumns = "s.schedule_id, s.name, s.enabled, s.freq_type, s.freq_interval, s.active_start_date, s.active_start_time"

func scanSchedule(row interface{ Scan(...any) error }) (*models.Schedule, error) {
	var (
		s       models.Schedule
		enabled int
	)
	if err := row.Scan(&s.ID, &s.Name, &enabled, &s.FrequencyType, &s.FrequencyInterval, &s.ActiveStartDate, &s.ActiveStartTime); err != nil {
		return nil, err
	}
	s.Enabled = enabled == 1
	s.Created = true
	return &s, nil
}

func (slf *MSDBStore) LookupSchedule(ctx context.Context, scheduleID int) (*models.Schedule, error) {
	s, err := scanSchedule(slf.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM dbo.sysschedules s WHERE s.schedule_id = @schedule_id",
		sql.Named("schedule_id", scheduleID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrScheduleNotFound
	}
	return s, err
}

func (slf *MSDBStore) ListSchedules(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error) {
	rows, err := slf.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM dbo.sysschedules s
		JOIN dbo.sysjobschedules js ON js.schedule_id = s.schedule_id
		WHERE js.job_id = @job_id
		ORDER BY s.schedule_id`, jobParam(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		s.Attached = true
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// CreateSchedule creates the schedule and attaches it to the job in one call
func (slf *MSDBStore) CreateSchedule(ctx context.Context, jobID uuid.UUID, schedule *models.Schedule) (int, error) {
	var id int
	_, err := slf.db.ExecContext(ctx, `
		EXEC dbo.sp_add_jobschedule
			@job_id = @job_id,
			@name = @name,
			@enabled = @enabled,
			@freq_type = @freq_type,
			@freq_interval = @freq_interval,
			@active_start_date = @active_start_date,
			@active_start_time = @active_start_time,
			@schedule_id = @schedule_id OUTPUT`,
		jobParam(jobID),
		sql.Named("name", schedule.Name),
		sql.Named("enabled", schedule.Enabled),
		sql.Named("freq_type", int(schedule.FrequencyType)),
		sql.Named("freq_interval", schedule.FrequencyInterval),
		sql.Named("active_start_date", schedule.ActiveStartDate),
		sql.Named("active_start_time", schedule.ActiveStartTime),
		sql.Named("schedule_id", sql.Out{Dest: &id}),
	)
	if err != nil {
		return 0, fmt.Errorf("sp_add_jobschedule %s: %w", schedule.Name, err)
	}
	return id, nil
}

func (slf *MSDBStore) AlterSchedule(ctx context.Context, schedule *models.Schedule) error {
	_, err := slf.db.ExecContext(ctx, `
		EXEC dbo.sp_update_schedule
			@schedule_id = @schedule_id,
			@new_name = @name,
			@enabled = @enabled,
			@freq_type = @freq_type,
			@freq_interval = @freq_interval,
			@active_start_date = @active_start_date,
			@active_start_time = @active_start_time`,
		sql.Named("schedule_id", schedule.ID),
		sql.Named("name", schedule.Name),
		sql.Named("enabled", schedule.Enabled),
		sql.Named("freq_type", int(schedule.FrequencyType)),
		sql.Named("freq_interval", schedule.FrequencyInterval),
		sql.Named("active_start_date", schedule.ActiveStartDate),
		sql.Named("active_start_time", schedule.ActiveStartTime),
	)
	if err != nil {
		return fmt.Errorf("sp_update_schedule %d: %w", schedule.ID, err)
	}
	return nil
}

func (slf *MSDBStore) DeleteSchedule(ctx context.Context, scheduleID int) error {
	if _, err := slf.db.ExecContext(ctx, "EXEC dbo.sp_delete_schedule @schedule_id = @schedule_id, @force_delete = 1",
		sql.Named("schedule_id", scheduleID)); err != nil {
		return fmt.Errorf("sp_delete_schedule %d: %w", scheduleID, err)
	}
	return nil
}

func (slf *MSDBStore) AddSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error {
	if _, err := slf.db.ExecContext(ctx, "EXEC dbo.sp_attach_schedule @job_id = @job_id, @schedule_id = @schedule_id",
		jobParam(jobID), sql.Named("schedule_id", scheduleID)); err != nil {
		return fmt.Errorf("sp_attach_schedule %d: %w", scheduleID, err)
	}
	return nil
}

func (slf *MSDBStore) RemoveSharedReference(ctx context.Context, jobID uuid.UUID, scheduleID int) error {
	if _, err := slf.db.ExecContext(ctx,
		"EXEC dbo.sp_detach_schedule @job_id = @job_id, @schedule_id = @schedule_id, @delete_unused_schedule = 1",
		jobParam(jobID), sql.Named("schedule_id", scheduleID)); err != nil {
		return fmt.Errorf("sp_detach_schedule %d: %w", scheduleID, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Alerts
// ──────────────────────────────────────────────────

const alertColumns = "name, job_id, severity, message_id, enabled"

func scanAlert(row interface{ Scan(...any) error }) (*models.Alert, error) {
	var (
		a       models.Alert
		jobID   mssql.UniqueIdentifier
		enabled int
	)
	if err := row.Scan(&a.Name, &jobID, &a.Severity, &a.MessageID, &enabled); err != nil {
		return nil, err
	}
	if id := uuid.UUID(jobID); id != uuid.Nil {
		a.AssociateWith(id)
	}
	a.Enabled = enabled == 1
	return &a, nil
}

func (slf *MSDBStore) LookupAlert(ctx context.Context, name string) (*models.Alert, error) {
	a, err := scanAlert(slf.db.QueryRowContext(ctx,
		"SELECT "+alertColumns+" FROM dbo.sysalerts WHERE name = @name", sql.Named("name", name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (slf *MSDBStore) ListAlerts(ctx context.Context, jobID uuid.UUID) ([]*models.Alert, error) {
	rows, err := slf.db.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM dbo.sysalerts WHERE job_id = @job_id ORDER BY name", jobParam(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		a.Created = true
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlterAlert writes the enabled flag and the response job. An unassociated
// alert is written with the empty job id, which clears the response.
func (slf *MSDBStore) AlterAlert(ctx context.Context, alert *models.Alert) error {
	jobID := uuid.Nil
	if alert.JobID.Valid {
		jobID = alert.JobID.UUID
	}
	if _, err := slf.db.ExecContext(ctx, "EXEC dbo.sp_update_alert @name = @name, @enabled = @enabled, @job_id = @job_id",
		sql.Named("name", alert.Name), sql.Named("enabled", alert.Enabled), jobParam(jobID)); err != nil {
		return fmt.Errorf("sp_update_alert %s: %w", alert.Name, err)
	}
	return nil
}
