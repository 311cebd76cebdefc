package jobfile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"jobdef"
	"jobdef/internal/api/models"
	"jobdef/internal/api/service"
)

// Apply makes the session match the document. Steps are matched by name so
// existing steps keep their identity. It returns the parse warnings of
// Transact-SQL commands; they do not fail the apply.
func (d *Document) Apply(ctx context.Context, s *service.JobSession) ([]string, error) {
	if !s.Loaded() {
		return nil, service.ErrSessionNotLoaded
	}
	if s.ReadOnly() {
		return nil, service.ErrReadOnly
	}

	job := s.Job()
	if !job.Created {
		if err := s.SetHeader(d.Job.Name, d.Job.Description, d.Job.Category, d.Job.Owner); err != nil {
			return nil, err
		}
	} else if !strings.EqualFold(job.Name, d.Job.Name) {
		return nil, fmt.Errorf("job file describes %q but job %s is %q", d.Job.Name, job.ID, job.Name)
	}

	warnings, err := d.applySteps(s)
	if err != nil {
		return warnings, err
	}
	if err := d.applySchedules(ctx, s.Schedules()); err != nil {
		return warnings, err
	}
	d.applyAlerts(s.Alerts())
	return warnings, nil
}

func (d *Document) applySteps(s *service.JobSession) ([]string, error) {
	graph := s.Steps()
	ids := make(map[string]int, len(d.Steps))
	for i, fs := range d.Steps {
		ids[strings.ToLower(fs.Name)] = i + 1
	}

	// from the end so the ids of the steps still to visit do not move
	for id := graph.Len(); id >= 1; id-- {
		step, _ := graph.Step(id)
		if _, keep := ids[strings.ToLower(step.Name)]; !keep {
			if err := graph.RemoveStep(id); err != nil {
				return nil, err
			}
		}
	}

	for i, fs := range d.Steps {
		pos := i + 1
		if cur := position(graph, fs.Name); cur > 0 {
			if cur != pos {
				if err := graph.MoveStep(cur, pos); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := graph.InsertStep(pos, models.NewJobStep(fs.Name, models.Subsystem(fs.Subsystem), fs.Command)); err != nil {
			return nil, err
		}
	}

	var warnings []string
	for i, fs := range d.Steps {
		id := i + 1
		if err := graph.RenameStep(id, fs.Name); err != nil {
			return warnings, err
		}
		success, err := parseAction(fs.successAction(), ids)
		if err != nil {
			return warnings, fmt.Errorf("step %q: %w", fs.Name, err)
		}
		failure, err := parseAction(fs.failureAction(), ids)
		if err != nil {
			return warnings, fmt.Errorf("step %q: %w", fs.Name, err)
		}
		if err := graph.SetSuccessAction(id, success); err != nil {
			return warnings, err
		}
		if err := graph.SetFailureAction(id, failure); err != nil {
			return warnings, err
		}

		step, _ := graph.Step(id)
		if step.RetryAttempts != fs.RetryAttempts || step.RetryInterval != fs.RetryInterval {
			step.RetryAttempts = fs.RetryAttempts
			step.RetryInterval = fs.RetryInterval
			step.Dirty = true
		}

		panel := service.NewStepPayloadPanel(id, jobdef.Logger)
		if err := panel.Load(s); err != nil {
			return warnings, err
		}
		panel.Subsystem = models.Subsystem(fs.Subsystem)
		panel.Command = fs.Command
		panel.DatabaseName = fs.Database
		if err := panel.Save(s, false); err != nil {
			return warnings, err
		}
		if panel.Warning != "" {
			warnings = append(warnings, fmt.Sprintf("step %q: %s", fs.Name, panel.Warning))
		}
	}
	return warnings, nil
}

func position(graph *service.StepGraph, name string) int {
	for _, step := range graph.Steps() {
		if strings.EqualFold(step.Name, name) {
			return step.ID
		}
	}
	return 0
}

func (d *Document) applySchedules(ctx context.Context, schedules *service.ScheduleReconciler) error {
	byID := make(map[int]Schedule)
	byName := make(map[string]Schedule)
	for _, fs := range d.Schedules {
		if fs.ID > 0 {
			byID[fs.ID] = fs
		} else {
			byName[fs.Name] = fs
		}
	}

	matched := make(map[string]bool)
	for _, cur := range slices.Clone(schedules.Current()) {
		if _, keep := byID[cur.ID]; cur.Created && keep {
			continue
		}
		if fs, ok := byName[cur.Name]; ok && !matched[cur.Name] {
			fs.patch(cur)
			matched[cur.Name] = true
			continue
		}
		schedules.Remove(cur)
	}

	for _, fs := range d.Schedules {
		switch {
		case fs.ID > 0:
			picked, err := schedules.Pick(ctx, fs.ID)
			if err != nil {
				return err
			}
			if fs.Enabled != nil {
				picked.SetEnabled(*fs.Enabled)
			}
		case !matched[fs.Name]:
			s := models.NewSchedule(fs.Name, frequencies[fs.Frequency], fs.Interval)
			fs.patch(s)
			s.Dirty = false
			schedules.Add(s)
			matched[fs.Name] = true
		}
	}
	return nil
}

// patch copies the described fields onto s and marks it dirty on change
func (fs Schedule) patch(s *models.Schedule) {
	before := *s
	s.FrequencyType = frequencies[fs.Frequency]
	s.FrequencyInterval = fs.Interval
	s.ActiveStartDate = fs.StartDate
	s.ActiveStartTime = fs.StartTime
	if fs.Enabled != nil {
		s.Enabled = *fs.Enabled
	}
	if before != *s {
		s.Dirty = true
	}
}

func (d *Document) applyAlerts(alerts *service.AlertReconciler) {
	for _, cur := range slices.Clone(alerts.Current()) {
		if !slices.Contains(d.Alerts, cur.Name) {
			alerts.Remove(cur)
		}
	}
	for _, name := range d.Alerts {
		if _, ok := alerts.Get(name); !ok {
			alerts.Add(&models.Alert{Name: name})
		}
	}
}
