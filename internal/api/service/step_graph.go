package service

import (
	"fmt"
	"slices"
	"strings"

	"jobdef/internal/api/changeset"
	"jobdef/internal/api/models"

	"github.com/google/uuid"
)

// StepGraph is the ordered step collection of a job together with the
// transition edges between steps. Step ids stay 1-based and contiguous, and
// GoToStep targets follow the steps they point at when the order changes.
type StepGraph struct {
	steps   *changeset.ChangeSet[*models.JobStep]
	editing bool

	// lastAnchor is the step that was last when the graph was loaded or committed
	lastAnchor uuid.UUID
}

// NewStepGraph builds a graph from steps ordered by id. editing is true when the
// steps belong to an existing job.
func NewStepGraph(editing bool, steps ...*models.JobStep) *StepGraph {
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b *models.JobStep) int { return a.ID - b.ID })

	g := &StepGraph{
		steps:   changeset.New(sorted...),
		editing: editing,
	}
	g.renumber()
	g.resetAnchor()
	return g
}

// Steps returns the steps in execution order
func (slf *StepGraph) Steps() []*models.JobStep {
	return slf.steps.Current()
}

// Removed returns the steps that exist remotely and were deleted locally
func (slf *StepGraph) Removed() []*models.JobStep {
	return slf.steps.Removed()
}

func (slf *StepGraph) Len() int {
	return slf.steps.Len()
}

// Step returns the step with the given id
func (slf *StepGraph) Step(id int) (*models.JobStep, bool) {
	if id < 1 || id > slf.steps.Len() {
		return nil, false
	}
	return slf.steps.At(id - 1), true
}

// AddStep appends a step at the end of the job
func (slf *StepGraph) AddStep(step *models.JobStep) error {
	return slf.InsertStep(slf.steps.Len()+1, step)
}

// InsertStep places step at position pos (1-based). Steps at or after pos move
// down by one and transitions pointing at them are shifted accordingly.
func (slf *StepGraph) InsertStep(pos int, step *models.JobStep) error {
	if step == nil {
		return &ArgumentError{Name: "step", Err: fmt.Errorf("nil step")}
	}
	if step.UID == uuid.Nil {
		step.UID = uuid.New()
	}
	if err := slf.checkName(step.Name, step.UID); err != nil {
		return err
	}
	pos = max(1, min(pos, slf.steps.Len()+1))

	slf.remapTargets(func(target int) int {
		if target >= pos {
			return target + 1
		}
		return target
	}, nil)

	step.Dirty = true
	slf.steps.Insert(pos-1, step)
	slf.renumber()
	return nil
}

// RemoveStep deletes the step with the given id. Transitions that pointed at it
// become quit actions, later steps move up by one.
func (slf *StepGraph) RemoveStep(id int) error {
	step, ok := slf.Step(id)
	if !ok {
		return ErrStepNotFound
	}
	slf.steps.Remove(step)

	slf.remapTargets(func(target int) int {
		if target > id {
			return target - 1
		}
		return target
	}, func(target int) bool { return target == id })

	slf.renumber()
	return nil
}

// MoveStep moves the step at position from to position to
func (slf *StepGraph) MoveStep(from, to int) error {
	if _, ok := slf.Step(from); !ok {
		return ErrStepNotFound
	}
	if _, ok := slf.Step(to); !ok {
		return ErrStepNotFound
	}
	if from == to {
		return nil
	}

	order := make([]uuid.UUID, 0, slf.steps.Len())
	for _, s := range slf.steps.Current() {
		order = append(order, s.UID)
	}
	slf.steps.Move(from-1, to-1)

	newID := make(map[uuid.UUID]int, len(order))
	for i, s := range slf.steps.Current() {
		newID[s.UID] = i + 1
	}
	slf.remapTargets(func(target int) int {
		if target < 1 || target > len(order) {
			return target
		}
		return newID[order[target-1]]
	}, nil)

	slf.renumber()
	return nil
}

// RenameStep changes the name of a step, keeping names unique
func (slf *StepGraph) RenameStep(id int, name string) error {
	step, ok := slf.Step(id)
	if !ok {
		return ErrStepNotFound
	}
	if err := slf.checkName(name, step.UID); err != nil {
		return err
	}
	if step.Name != name {
		step.Name = name
		step.Dirty = true
	}
	return nil
}

// SetSuccessAction sets the transition taken when the step succeeds
func (slf *StepGraph) SetSuccessAction(id int, action models.CompletionAction) error {
	return slf.setAction(id, action, true)
}

// SetFailureAction sets the transition taken when the step fails
func (slf *StepGraph) SetFailureAction(id int, action models.CompletionAction) error {
	return slf.setAction(id, action, false)
}

func (slf *StepGraph) setAction(id int, action models.CompletionAction, success bool) error {
	step, ok := slf.Step(id)
	if !ok {
		return ErrStepNotFound
	}
	if !action.Valid() {
		return fmt.Errorf("invalid completion action %s", action)
	}
	target := &step.FailureAction
	if success {
		target = &step.SuccessAction
	}
	if *target != action {
		*target = action
		step.Dirty = true
	}
	return nil
}

// Unreachable returns the steps that cannot be reached from the first step by
// following success and failure transitions.
func (slf *StepGraph) Unreachable() []models.StepRef {
	steps := slf.steps.Current()
	n := len(steps)
	if n == 0 {
		return nil
	}

	visited := make([]bool, n+1)
	visited[1] = true
	work := []int{1}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]

		step := steps[id-1]
		for _, action := range []models.CompletionAction{step.SuccessAction, step.FailureAction} {
			next := nextStepID(action, id, n)
			if next == 0 || visited[next] {
				continue
			}
			visited[next] = true
			work = append(work, next)
		}
	}

	var unreachable []models.StepRef
	for id := 1; id <= n; id++ {
		if !visited[id] {
			unreachable = append(unreachable, steps[id-1].Ref())
		}
	}
	return unreachable
}

// nextStepID returns the step an action leads to, or 0 when it ends the job or
// points outside the job.
func nextStepID(action models.CompletionAction, from, n int) int {
	switch action.Action {
	case models.ActionGoToNextStep:
		if from+1 <= n {
			return from + 1
		}
	case models.ActionGoToStep:
		if action.TargetID >= 1 && action.TargetID <= n {
			return action.TargetID
		}
	}
	return 0
}

// LastStepCompletionActionWillChange reports, for an existing job, whether the
// pending additions and removals change how the job ends: either the step that
// used to be last quits with success while steps now follow it, or the current
// last step relies on "go to next step" and will be saved as quit with success.
func (slf *StepGraph) LastStepCompletionActionWillChange() bool {
	former, last := slf.lastStepChange()
	return former != nil || last != nil
}

// ApplyLastStepCompletionChange performs the change announced by
// LastStepCompletionActionWillChange. It returns true when a step was modified.
func (slf *StepGraph) ApplyLastStepCompletionChange() bool {
	former, last := slf.lastStepChange()
	if former != nil {
		former.SuccessAction = models.GoToNextStep()
		former.Dirty = true
	}
	if last != nil {
		last.SuccessAction = models.QuitWithSuccess()
		last.Dirty = true
	}
	return former != nil || last != nil
}

func (slf *StepGraph) lastStepChange() (former, last *models.JobStep) {
	n := slf.steps.Len()
	if !slf.editing || n == 0 {
		return nil, nil
	}
	current := slf.steps.At(n - 1)
	if slf.lastAnchor == current.UID {
		return nil, nil
	}
	if anchor, ok := slf.steps.Get(slf.lastAnchor.String()); ok && anchor.SuccessAction.Action == models.ActionQuitWithSuccess {
		former = anchor
	}
	if current.SuccessAction.Action == models.ActionGoToNextStep {
		last = current
	}
	return former, last
}

// CheckNames returns a NameConflictError for the first duplicated step name
func (slf *StepGraph) CheckNames() error {
	seen := make(map[string]struct{}, slf.steps.Len())
	for _, s := range slf.steps.Current() {
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return &NameConflictError{Name: s.Name}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// CheckTargets makes sure every GoToStep resolves to an existing step
func (slf *StepGraph) CheckTargets() error {
	n := slf.steps.Len()
	for _, s := range slf.steps.Current() {
		for _, a := range []models.CompletionAction{s.SuccessAction, s.FailureAction} {
			if a.Action == models.ActionGoToStep && (a.TargetID < 1 || a.TargetID > n) {
				return fmt.Errorf("step %d %q: %w (%d)", s.ID, s.Name, ErrDanglingStepTarget, a.TargetID)
			}
		}
	}
	return nil
}

// HasChanges reports whether a commit would write anything
func (slf *StepGraph) HasChanges() bool {
	if len(slf.steps.Removed()) > 0 {
		return true
	}
	return slices.ContainsFunc(slf.steps.Current(), func(s *models.JobStep) bool {
		return !s.Created || s.Dirty
	})
}

// MarkCommitted records that the current steps now exist remotely
func (slf *StepGraph) MarkCommitted() {
	for _, s := range slf.steps.Current() {
		s.Created = true
		s.Dirty = false
	}
	slf.steps.ClearRemoved()
	slf.editing = true
	slf.resetAnchor()
}

// stepShape is the structural part of a step used to detect graph mutations
type stepShape struct {
	uid     uuid.UUID
	id      int
	success models.CompletionAction
	failure models.CompletionAction
}

// fingerprint captures the structure of the graph
func (slf *StepGraph) fingerprint() []stepShape {
	out := make([]stepShape, 0, slf.steps.Len())
	for _, s := range slf.steps.Current() {
		out = append(out, stepShape{uid: s.UID, id: s.ID, success: s.SuccessAction, failure: s.FailureAction})
	}
	return out
}

func (slf *StepGraph) checkName(name string, self uuid.UUID) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("step name is required")
	}
	for _, s := range slf.steps.Current() {
		if s.UID != self && strings.EqualFold(s.Name, name) {
			return &NameConflictError{Name: name}
		}
	}
	return nil
}

// remapTargets rewrites GoToStep targets with remap. Targets matched by drop
// become quit actions: success edges quit with success, failure edges with failure.
func (slf *StepGraph) remapTargets(remap func(int) int, drop func(int) bool) {
	for _, s := range slf.steps.Current() {
		changed := false
		if s.SuccessAction.Action == models.ActionGoToStep {
			if drop != nil && drop(s.SuccessAction.TargetID) {
				s.SuccessAction = models.QuitWithSuccess()
				changed = true
			} else if t := remap(s.SuccessAction.TargetID); t != s.SuccessAction.TargetID {
				s.SuccessAction.TargetID = t
				changed = true
			}
		}
		if s.FailureAction.Action == models.ActionGoToStep {
			if drop != nil && drop(s.FailureAction.TargetID) {
				s.FailureAction = models.QuitWithFailure()
				changed = true
			} else if t := remap(s.FailureAction.TargetID); t != s.FailureAction.TargetID {
				s.FailureAction.TargetID = t
				changed = true
			}
		}
		if changed {
			s.Dirty = true
		}
	}
}

func (slf *StepGraph) renumber() {
	for i, s := range slf.steps.Current() {
		if s.ID != i+1 {
			s.ID = i + 1
			s.Dirty = true
		}
	}
}

func (slf *StepGraph) resetAnchor() {
	slf.lastAnchor = uuid.Nil
	if n := slf.steps.Len(); n > 0 {
		slf.lastAnchor = slf.steps.At(n - 1).UID
	}
}
