package service

import (
	"context"

	"jobdef/internal/api/changeset"
	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/rs/zerolog"
)

// AlertReconciler tracks which alerts respond with a job and applies the
// associations to the job store.
type AlertReconciler struct {
	alerts   *changeset.ChangeSet[*models.Alert]
	store    store.AlertStore
	readOnly bool
	logger   zerolog.Logger
}

func NewAlertReconciler(alerts store.AlertStore, readOnly bool, logger zerolog.Logger) (*AlertReconciler, error) {
	if alerts == nil {
		return nil, &ArgumentError{Name: "alerts", Err: ErrNilStore}
	}
	return &AlertReconciler{
		alerts:   changeset.New[*models.Alert](),
		store:    alerts,
		readOnly: readOnly,
		logger:   logger,
	}, nil
}

// Load reads the alerts already associated with an existing job
func (slf *AlertReconciler) Load(ctx context.Context, jobCtx models.JobContext) error {
	if !jobCtx.IsEditing() {
		return nil
	}
	alerts, err := slf.store.ListAlerts(ctx, jobCtx.JobID)
	if err != nil {
		return remoteError(OpLookup, "alerts of job", jobCtx.JobID.String(), err)
	}
	for _, a := range alerts {
		a.Created = true
		slf.alerts.Add(a)
	}
	return nil
}

func (slf *AlertReconciler) Add(a *models.Alert)         { slf.alerts.Add(a) }
func (slf *AlertReconciler) Remove(a *models.Alert) bool { return slf.alerts.Remove(a) }
func (slf *AlertReconciler) Current() []*models.Alert    { return slf.alerts.Current() }
func (slf *AlertReconciler) Removed() []*models.Alert    { return slf.alerts.Removed() }

// Get returns the current alert with the given name
func (slf *AlertReconciler) Get(name string) (*models.Alert, bool) {
	return slf.alerts.Get(name)
}

// ApplyChanges points new alerts at job and clears the association of removed
// ones. Alerts that no longer exist on the server are skipped.
func (slf *AlertReconciler) ApplyChanges(ctx context.Context, job *models.Job) (bool, error) {
	if slf.readOnly {
		return false, nil
	}
	changed := false

	for _, a := range slf.alerts.Current() {
		if a.Created {
			continue
		}
		remote, err := slf.store.LookupAlert(ctx, a.Name)
		if err != nil {
			return changed, remoteError(OpLookup, "alert", a.Name, err)
		}
		if remote == nil {
			slf.logger.Warn().Str("alert", a.Name).Msg("Alert not found, association skipped")
			continue
		}
		remote.AssociateWith(job.ID)
		if err := slf.store.AlterAlert(ctx, remote); err != nil {
			slf.logger.Error().Err(err).Str("alert", a.Name).Msg("Error associating alert")
			return changed, remoteError(OpAlter, "alert", a.Name, err)
		}
		a.JobID = remote.JobID
		a.Created = true
		changed = true
	}

	for _, a := range slf.alerts.Removed() {
		remote, err := slf.store.LookupAlert(ctx, a.Name)
		if err != nil {
			return changed, remoteError(OpLookup, "alert", a.Name, err)
		}
		// An alert moved to another job meanwhile keeps its new association.
		if remote != nil && remote.JobID.Valid && remote.JobID.UUID == job.ID {
			remote.Disassociate()
			if err := slf.store.AlterAlert(ctx, remote); err != nil {
				slf.logger.Error().Err(err).Str("alert", a.Name).Msg("Error clearing alert association")
				return changed, remoteError(OpAlter, "alert", a.Name, err)
			}
			changed = true
		}
		slf.alerts.Forget(a.Key())
	}
	return changed, nil
}
