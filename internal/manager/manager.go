// Package manager owns the in-memory tasks, epics and subtasks together with
// the view history and the start-time ordered schedule.
//
// Every exported method takes a single mutex, so a Manager may be shared by
// concurrent HTTP handlers. Items passed in are copied; items returned are
// copies. Changing a returned item has no effect until it is passed to an
// Update method.
package manager

import (
	"log/slog"
	"sort"
	"sync"

	"kanban/internal/history"
	"kanban/internal/models"
	"kanban/internal/schedule"
)

// Manager is the task store.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger

	lastID   int64
	tasks    map[int64]*models.Task
	epics    map[int64]*models.Epic
	subtasks map[int64]*models.Subtask
	history  *history.Tracker
	view     *schedule.View
}

// New returns an empty manager. Ids start at 1.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		tasks:    make(map[int64]*models.Task),
		epics:    make(map[int64]*models.Epic),
		subtasks: make(map[int64]*models.Subtask),
		history:  history.New(),
		view:     schedule.New(),
	}
}

func (m *Manager) nextID() int64 {
	m.lastID++
	return m.lastID
}

// CreateTask stores a copy of t under a fresh id, which is also written back to t.
func (m *Manager) CreateTask(t *models.Task) (int64, error) {
	if t == nil {
		return 0, ErrNullInput
	}
	if err := models.ValidateDuration(t.DurationMinutes); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := t.Clone()
	stored.ID = 0
	stored.Status = normalizeStatus(stored.Status)
	if err := m.checkConflict(stored); err != nil {
		return 0, err
	}

	stored.ID = m.nextID()
	m.tasks[stored.ID] = stored
	m.insertView(stored)
	t.ID = stored.ID
	return stored.ID, nil
}

// CreateEpic stores a copy of e without subtasks. A nil epic is not an
// error: nothing is created and the returned id is 0.
func (m *Manager) CreateEpic(e *models.Epic) (int64, error) {
	if e == nil {
		m.logger.Debug("epic not created: nil input")
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := models.NewEpic(e.Title, e.Description)
	stored.ID = m.nextID()
	m.epics[stored.ID] = stored
	m.insertView(stored)
	e.ID = stored.ID
	return stored.ID, nil
}

// CreateSubtask stores a copy of s and attaches it to its epic.
func (m *Manager) CreateSubtask(s *models.Subtask) (int64, error) {
	if s == nil {
		return 0, ErrNullInput
	}
	if err := models.ValidateDuration(s.DurationMinutes); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.epics[s.EpicID]
	if !ok {
		return 0, ErrMissingParent
	}
	stored := s.Clone()
	stored.ID = 0
	stored.Status = normalizeStatus(stored.Status)
	if err := m.checkConflict(stored); err != nil {
		return 0, err
	}

	stored.ID = m.nextID()
	m.subtasks[stored.ID] = stored
	m.insertView(stored)
	parent.AddSubtask(stored)
	m.insertView(parent)
	s.ID = stored.ID
	return stored.ID, nil
}

// TaskByID returns a copy of the task and records the view in history.
func (m *Manager) TaskByID(id int64) (*models.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	m.history.Record(id)
	return t.Clone(), true
}

// EpicByID returns a copy of the epic and records the view in history.
func (m *Manager) EpicByID(id int64) (*models.Epic, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.epics[id]
	if !ok {
		return nil, false
	}
	m.history.Record(id)
	return e.Clone(), true
}

// SubtaskByID returns a copy of the subtask and records the view in history.
func (m *Manager) SubtaskByID(id int64) (*models.Subtask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subtasks[id]
	if !ok {
		return nil, false
	}
	m.history.Record(id)
	return s.Clone(), true
}

// UpdateTask replaces the stored task id with the fields of t and reports
// whether a task was replaced. An unknown id is not an error, but the
// duration and conflict checks still apply.
func (m *Manager) UpdateTask(t *models.Task, id int64) (bool, error) {
	if t == nil {
		return false, ErrNullInput
	}
	if err := models.ValidateDuration(t.DurationMinutes); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := t.Clone()
	next.ID = id
	next.Status = normalizeStatus(next.Status)
	if err := m.checkConflict(next); err != nil {
		return false, err
	}
	stored, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	*stored = *next
	m.insertView(stored)
	return true, nil
}

// UpdateEpic copies the title and description of e onto the stored epic
// and reports whether an epic was updated. Derived fields are never taken
// from e.
func (m *Manager) UpdateEpic(e *models.Epic, id int64) (bool, error) {
	if e == nil {
		return false, ErrNullInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.epics[id]
	if !ok {
		return false, nil
	}
	stored.Title = e.Title
	stored.Description = e.Description
	return true, nil
}

// UpdateSubtask replaces the stored subtask id with the fields of s,
// recomputes its epic and reports whether a subtask was replaced. An unknown
// id is not an error once the parent, duration and conflict checks pass.
func (m *Manager) UpdateSubtask(s *models.Subtask, id int64) (bool, error) {
	if s == nil {
		return false, ErrNullInput
	}
	if err := models.ValidateDuration(s.DurationMinutes); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.epics[s.EpicID]
	if !ok {
		return false, ErrMissingParent
	}
	next := s.Clone()
	next.ID = id
	next.Status = normalizeStatus(next.Status)
	if err := m.checkConflict(next); err != nil {
		return false, err
	}
	stored, ok := m.subtasks[id]
	if !ok {
		return false, nil
	}
	if stored.EpicID != s.EpicID {
		return false, ErrParentChanged
	}
	stored.Task = next.Task
	m.insertView(stored)
	parent.Recompute()
	m.insertView(parent)
	return true, nil
}

// RemoveTask deletes the task. Unknown ids are ignored.
func (m *Manager) RemoveTask(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return
	}
	delete(m.tasks, id)
	m.forget(id)
}

// RemoveEpic deletes the epic and every subtask it owns.
func (m *Manager) RemoveEpic(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	epic, ok := m.epics[id]
	if !ok {
		return ErrMissingParent
	}
	subtasks := epic.Subtasks()
	for _, s := range subtasks {
		delete(m.subtasks, s.ID)
		m.forget(s.ID)
	}
	delete(m.epics, id)
	m.forget(id)
	m.logger.Debug("epic removed", "epic_id", id, "subtasks", len(subtasks))
	return nil
}

// RemoveSubtask deletes the subtask and recomputes its epic. Unknown ids are ignored.
func (m *Manager) RemoveSubtask(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subtasks[id]
	if !ok {
		return
	}
	if parent, ok := m.epics[s.EpicID]; ok {
		parent.RemoveSubtask(id)
		m.insertView(parent)
	}
	delete(m.subtasks, id)
	m.forget(id)
}

// RemoveAllTasks deletes every plain task.
func (m *Manager) RemoveAllTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.tasks {
		m.forget(id)
	}
	clear(m.tasks)
}

// RemoveAllEpics deletes every subtask, then every epic.
func (m *Manager) RemoveAllEpics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeAllSubtasks()
	for id := range m.epics {
		m.forget(id)
	}
	clear(m.epics)
}

// RemoveAllSubtasks deletes every subtask and recomputes each epic that lost one.
func (m *Manager) RemoveAllSubtasks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeAllSubtasks()
}

func (m *Manager) removeAllSubtasks() {
	parents := make(map[int64]struct{})
	for id, s := range m.subtasks {
		parents[s.EpicID] = struct{}{}
		m.forget(id)
	}
	clear(m.subtasks)
	for id := range parents {
		if epic, ok := m.epics[id]; ok {
			epic.ClearSubtasks()
			m.insertView(epic)
		}
	}
}

// SubtasksByEpic returns copies of the epic's subtasks in insertion order.
// The bool is false when the epic does not exist. History is not touched.
func (m *Manager) SubtasksByEpic(epicID int64) ([]*models.Subtask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	epic, ok := m.epics[epicID]
	if !ok {
		return nil, false
	}
	subtasks := epic.Subtasks()
	out := make([]*models.Subtask, len(subtasks))
	for i, s := range subtasks {
		out[i] = s.Clone()
	}
	return out, true
}

// Tasks lists plain tasks by id without touching history.
func (m *Manager) Tasks() []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSorted(m.tasks, (*models.Task).Clone)
}

// Epics lists epics by id without touching history.
func (m *Manager) Epics() []*models.Epic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSorted(m.epics, (*models.Epic).Clone)
}

// Subtasks lists subtasks by id without touching history.
func (m *Manager) Subtasks() []*models.Subtask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSorted(m.subtasks, (*models.Subtask).Clone)
}

// History returns copies of the viewed items, oldest first.
func (m *Manager) History() []models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.history.Snapshot()
	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := m.lookup(id); ok {
			out = append(out, models.CloneItem(it))
		}
	}
	return out
}

// Prioritized returns copies of every dated item ordered by start time.
func (m *Manager) Prioritized() []models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.view.All()
	for i, it := range items {
		items[i] = models.CloneItem(it)
	}
	return items
}

// Contains reports whether an item of the given kind exists, without
// recording a view.
func (m *Manager) Contains(kind models.Kind, id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ok bool
	switch kind {
	case models.KindTask:
		_, ok = m.tasks[id]
	case models.KindEpic:
		_, ok = m.epics[id]
	case models.KindSubtask:
		_, ok = m.subtasks[id]
	}
	return ok
}

func (m *Manager) lookup(id int64) (models.Item, bool) {
	if t, ok := m.tasks[id]; ok {
		return t, true
	}
	if e, ok := m.epics[id]; ok {
		return e, true
	}
	if s, ok := m.subtasks[id]; ok {
		return s, true
	}
	return nil, false
}

func (m *Manager) checkConflict(candidate models.Item) error {
	other, ok := m.view.CheckConflict(candidate)
	if !ok {
		return nil
	}
	conflictID := other.Base().ID
	m.logger.Debug("time conflict", "kind", candidate.Kind(), "id", candidate.Base().ID, "conflict_id", conflictID)
	return &ConflictError{ID: conflictID}
}

// insertView is only called with stored items, which always carry an id.
func (m *Manager) insertView(it models.Item) {
	if err := m.view.Insert(it); err != nil {
		m.logger.Error("schedule insert failed", "kind", it.Kind(), "error", err)
	}
}

func (m *Manager) forget(id int64) {
	m.history.Forget(id)
	m.view.Remove(id)
}

func normalizeStatus(s models.Status) models.Status {
	if _, ok := models.ValidStatuses[s]; !ok {
		return models.StatusNew
	}
	return s
}

func cloneSorted[T any](items map[int64]T, clone func(T) T) []T {
	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = clone(items[id])
	}
	return out
}
