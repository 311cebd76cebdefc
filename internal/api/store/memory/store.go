// Package memory provides an in-memory job store with a call journal.
// Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

// Call is one recorded store operation
type Call struct {
	Op  string
	Arg string
}

func (c Call) String() string { return c.Op + "(" + c.Arg + ")" }

// Option configures a Store
type Option func(*Store)

// WithServerVersion sets the reported server major version
func WithServerVersion(major int) Option {
	return func(s *Store) { s.version = major }
}

// WithDeniedJobs makes CanEditJob return false for the given jobs
func WithDeniedJobs(ids ...uuid.UUID) Option {
	return func(s *Store) {
		for _, id := range ids {
			s.denied[id] = true
		}
	}
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	version int
	denied  map[uuid.UUID]bool

	jobs      map[uuid.UUID]*models.Job
	steps     map[uuid.UUID][]*models.JobStep
	schedules map[int]*models.Schedule
	refs      map[int]map[uuid.UUID]struct{}
	alerts    map[string]*models.Alert

	nextScheduleID int
	failures       map[string]error
	calls          []Call
}

// New returns a new empty Store reporting server version 16
func New(opts ...Option) *Store {
	s := &Store{
		version:        16,
		denied:         make(map[uuid.UUID]bool),
		jobs:           make(map[uuid.UUID]*models.Job),
		steps:          make(map[uuid.UUID][]*models.JobStep),
		schedules:      make(map[int]*models.Schedule),
		refs:           make(map[int]map[uuid.UUID]struct{}),
		alerts:         make(map[string]*models.Alert),
		nextScheduleID: 1,
		failures:       make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Seeding and inspection
// ──────────────────────────────────────────────────

// PutJob stores a job and its steps as already existing
func (m *Store) PutJob(job *models.Job, steps ...*models.JobStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	cp.Created = true
	m.jobs[job.ID] = &cp
	m.steps[job.ID] = cloneSteps(steps, job.ID)
}

// PutSchedule stores a schedule referenced by the given jobs and returns its id
func (m *Store) PutSchedule(schedule *models.Schedule, jobIDs ...uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := schedule.ID
	if id == 0 {
		id = m.nextScheduleID
	}
	m.nextScheduleID = max(m.nextScheduleID, id+1)
	cp := *schedule
	cp.ID = id
	m.schedules[id] = &cp
	m.refs[id] = make(map[uuid.UUID]struct{})
	for _, jobID := range jobIDs {
		m.refs[id][jobID] = struct{}{}
	}
	return id
}

// PutAlert stores an alert
func (m *Store) PutAlert(alert *models.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.alerts[alert.Name] = &cp
}

// FailOn makes the next calls of op return err
func (m *Store) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Calls returns the journal of mutating calls
func (m *Store) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

// ResetCalls clears the journal
func (m *Store) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ScheduleExists reports whether a schedule is stored
func (m *Store) ScheduleExists(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.schedules[id]
	return ok
}

// ScheduleReferences returns the jobs referencing a schedule
func (m *Store) ScheduleReferences(id int) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.refs[id]))
	for jobID := range m.refs[id] {
		out = append(out, jobID)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].String() < out[k].String() })
	return out
}

// Alert returns the stored alert
func (m *Store) Alert(name string) (models.Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[name]
	if !ok {
		return models.Alert{}, false
	}
	return *a, true
}

func (m *Store) record(op, arg string) error {
	m.calls = append(m.calls, Call{Op: op, Arg: arg})
	if err, ok := m.failures[op]; ok {
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────
// Server
// ──────────────────────────────────────────────────

func (m *Store) ServerVersion(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *Store) CanEditJob(_ context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.denied[jobID], nil
}

// ──────────────────────────────────────────────────
// Jobs and steps
// ──────────────────────────────────────────────────

func (m *Store) GetJob(_ context.Context, jobID uuid.UUID) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Store) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateJob", job.Name); err != nil {
		return err
	}
	if _, exists := m.jobs[job.ID]; exists {
		return store.ErrJobAlreadyExists
	}
	cp := *job
	cp.Created = true
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Store) ListSteps(_ context.Context, jobID uuid.UUID) ([]*models.JobStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[jobID]; !ok {
		return nil, store.ErrJobNotFound
	}
	return cloneSteps(m.steps[jobID], jobID), nil
}

func (m *Store) SaveSteps(_ context.Context, jobID uuid.UUID, current []*models.JobStep, removed []*models.JobStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SaveSteps", fmt.Sprintf("%d,-%d", len(current), len(removed))); err != nil {
		return err
	}
	if _, ok := m.jobs[jobID]; !ok {
		return store.ErrJobNotFound
	}
	m.steps[jobID] = cloneSteps(current, jobID)
	return nil
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func (m *Store) LookupSchedule(_ context.Context, scheduleID int) (*models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	cp := *s
	cp.Created = true
	return &cp, nil
}

func (m *Store) ListSchedules(_ context.Context, jobID uuid.UUID) ([]*models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Schedule
	for id, s := range m.schedules {
		if _, ok := m.refs[id][jobID]; !ok {
			continue
		}
		cp := *s
		cp.Created = true
		cp.Attached = true
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *Store) CreateSchedule(_ context.Context, jobID uuid.UUID, schedule *models.Schedule) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateSchedule", schedule.Name); err != nil {
		return 0, err
	}
	id := m.nextScheduleID
	m.nextScheduleID++
	cp := *schedule
	cp.ID = id
	m.schedules[id] = &cp
	m.refs[id] = map[uuid.UUID]struct{}{jobID: {}}
	return id, nil
}

func (m *Store) AlterSchedule(_ context.Context, schedule *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AlterSchedule", fmt.Sprint(schedule.ID)); err != nil {
		return err
	}
	if _, ok := m.schedules[schedule.ID]; !ok {
		return store.ErrScheduleNotFound
	}
	cp := *schedule
	m.schedules[schedule.ID] = &cp
	return nil
}

func (m *Store) DeleteSchedule(_ context.Context, scheduleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteSchedule", fmt.Sprint(scheduleID)); err != nil {
		return err
	}
	if _, ok := m.schedules[scheduleID]; !ok {
		return store.ErrScheduleNotFound
	}
	delete(m.schedules, scheduleID)
	delete(m.refs, scheduleID)
	return nil
}

func (m *Store) AddSharedReference(_ context.Context, jobID uuid.UUID, scheduleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AddSharedReference", fmt.Sprint(scheduleID)); err != nil {
		return err
	}
	if _, ok := m.schedules[scheduleID]; !ok {
		return store.ErrScheduleNotFound
	}
	m.refs[scheduleID][jobID] = struct{}{}
	return nil
}

func (m *Store) RemoveSharedReference(_ context.Context, jobID uuid.UUID, scheduleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoveSharedReference", fmt.Sprint(scheduleID)); err != nil {
		return err
	}
	refs, ok := m.refs[scheduleID]
	if !ok {
		return store.ErrScheduleNotFound
	}
	delete(refs, jobID)
	if len(refs) == 0 {
		delete(m.schedules, scheduleID)
		delete(m.refs, scheduleID)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Alerts
// ──────────────────────────────────────────────────

func (m *Store) LookupAlert(_ context.Context, name string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[name]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *Store) ListAlerts(_ context.Context, jobID uuid.UUID) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.JobID.Valid && a.JobID.UUID == jobID {
			cp := *a
			cp.Created = true
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (m *Store) AlterAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AlterAlert", alert.Name); err != nil {
		return err
	}
	cp := *alert
	cp.Created = false
	m.alerts[alert.Name] = &cp
	return nil
}

func cloneSteps(steps []*models.JobStep, jobID uuid.UUID) []*models.JobStep {
	out := make([]*models.JobStep, 0, len(steps))
	for _, s := range steps {
		cp := *s
		cp.JobID = jobID
		cp.Created = true
		cp.Dirty = false
		out = append(out, &cp)
	}
	return out
}
