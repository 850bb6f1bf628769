package manager

import (
	"fmt"
	"sort"

	"kanban/internal/models"
)

// State is a detached copy of everything a Manager holds.
type State struct {
	Tasks    []*models.Task
	Epics    []*models.Epic
	Subtasks []*models.Subtask
	// History lists viewed ids, oldest first.
	History []int64
	LastID  int64
}

// Export copies the current contents.
func (m *Manager) Export() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		Tasks:    cloneSorted(m.tasks, (*models.Task).Clone),
		Epics:    cloneSorted(m.epics, (*models.Epic).Clone),
		Subtasks: cloneSorted(m.subtasks, (*models.Subtask).Clone),
		History:  m.history.Snapshot(),
		LastID:   m.lastID,
	}
}

// Import replaces the contents with st. Epics are rebuilt from the
// subtasks that reference them, dated tasks and subtasks are checked for
// conflicts, and history ids that do not resolve are dropped. On error the
// manager is left unchanged.
func (m *Manager) Import(st State) error {
	next := New(m.logger)
	if err := next.load(st); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = next.lastID
	m.tasks = next.tasks
	m.epics = next.epics
	m.subtasks = next.subtasks
	m.history = next.history
	m.view = next.view
	return nil
}

func (m *Manager) load(st State) error {
	seen := make(map[int64]models.Kind)
	claim := func(kind models.Kind, id int64) error {
		if id <= 0 {
			return fmt.Errorf("%s has invalid id %d", kind, id)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s id %d already used by %s", kind, id, prev)
		}
		seen[id] = kind
		if id > m.lastID {
			m.lastID = id
		}
		return nil
	}

	for _, e := range sortedByID(st.Epics, func(e *models.Epic) int64 { return e.ID }) {
		if err := claim(models.KindEpic, e.ID); err != nil {
			return err
		}
		stored := models.NewEpic(e.Title, e.Description)
		stored.ID = e.ID
		m.epics[e.ID] = stored
	}

	for _, t := range sortedByID(st.Tasks, func(t *models.Task) int64 { return t.ID }) {
		if err := claim(models.KindTask, t.ID); err != nil {
			return err
		}
		if err := models.ValidateDuration(t.DurationMinutes); err != nil {
			return fmt.Errorf("task %d: %w", t.ID, err)
		}
		stored := t.Clone()
		stored.Status = normalizeStatus(stored.Status)
		if err := m.checkConflict(stored); err != nil {
			return fmt.Errorf("task %d: %w", t.ID, err)
		}
		m.tasks[t.ID] = stored
		m.insertView(stored)
	}

	for _, s := range sortedByID(st.Subtasks, func(s *models.Subtask) int64 { return s.ID }) {
		if err := claim(models.KindSubtask, s.ID); err != nil {
			return err
		}
		parent, ok := m.epics[s.EpicID]
		if !ok {
			return fmt.Errorf("subtask %d: %w", s.ID, ErrMissingParent)
		}
		if err := models.ValidateDuration(s.DurationMinutes); err != nil {
			return fmt.Errorf("subtask %d: %w", s.ID, err)
		}
		stored := s.Clone()
		stored.Status = normalizeStatus(stored.Status)
		if err := m.checkConflict(stored); err != nil {
			return fmt.Errorf("subtask %d: %w", s.ID, err)
		}
		m.subtasks[s.ID] = stored
		m.insertView(stored)
		parent.AddSubtask(stored)
	}

	for _, e := range m.epics {
		m.insertView(e)
	}

	for _, id := range st.History {
		if _, ok := seen[id]; ok {
			m.history.Record(id)
		}
	}

	if st.LastID > m.lastID {
		m.lastID = st.LastID
	}
	return nil
}

func sortedByID[T any](items []*T, id func(*T) int64) []*T {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
