package service

import (
	"context"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/rs/zerolog"
)

// StepReconciler writes the local step collection of a job to the job store
type StepReconciler struct {
	graph    *StepGraph
	jobs     store.JobStore
	readOnly bool
	logger   zerolog.Logger
}

func NewStepReconciler(graph *StepGraph, jobs store.JobStore, readOnly bool, logger zerolog.Logger) (*StepReconciler, error) {
	if graph == nil {
		return nil, &ArgumentError{Name: "graph", Err: errNilGraph}
	}
	if jobs == nil {
		return nil, &ArgumentError{Name: "jobs", Err: ErrNilStore}
	}
	return &StepReconciler{graph: graph, jobs: jobs, readOnly: readOnly, logger: logger}, nil
}

// ApplyChanges saves the steps of job when any step was added, changed or
// removed. Name conflicts and dangling transitions are reported before any
// remote call.
func (slf *StepReconciler) ApplyChanges(ctx context.Context, job *models.Job) (bool, error) {
	if slf.readOnly {
		return false, nil
	}
	if err := slf.graph.CheckNames(); err != nil {
		return false, err
	}
	if err := slf.graph.CheckTargets(); err != nil {
		return false, err
	}
	if !slf.graph.HasChanges() {
		return false, nil
	}

	current := slf.graph.Steps()
	for _, s := range current {
		s.JobID = job.ID
	}
	removed := slf.graph.Removed()

	if err := slf.jobs.SaveSteps(ctx, job.ID, current, removed); err != nil {
		slf.logger.Error().Err(err).Str("jobId", job.ID.String()).Msg("Error saving job steps")
		return false, remoteError(OpAlter, "job steps of", job.Name, err)
	}
	slf.graph.MarkCommitted()

	slf.logger.Info().
		Str("jobId", job.ID.String()).
		Int("steps", len(current)).
		Int("removed", len(removed)).
		Msg("Job steps saved")
	return true, nil
}
