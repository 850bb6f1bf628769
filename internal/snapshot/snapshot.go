// Package snapshot converts manager state to and from flat records that
// can be encoded as JSON or YAML, and defines the Sink that persists them.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kanban/internal/manager"
	"kanban/internal/models"
)

// Record is the structured form of a single task, epic or subtask.
// EndTime is informational and ignored when decoding.
type Record struct {
	ID              int64         `json:"id" yaml:"id"`
	Kind            models.Kind   `json:"kind" yaml:"kind"`
	Title           string        `json:"title" yaml:"title"`
	Description     string        `json:"description" yaml:"description"`
	Status          models.Status `json:"status" yaml:"status"`
	StartTime       *time.Time    `json:"startTime" yaml:"start_time"`
	DurationMinutes int64         `json:"durationMinutes" yaml:"duration_minutes"`
	EndTime         *time.Time    `json:"endTime" yaml:"end_time"`
	ParentID        *int64        `json:"parentId,omitempty" yaml:"parent_id,omitempty"`
}

// Snapshot is a full copy of a manager: every item plus the viewed ids in
// access order.
type Snapshot struct {
	Records []Record `json:"records" yaml:"records"`
	History []int64  `json:"history" yaml:"history"`
	LastID  int64    `json:"lastId" yaml:"last_id"`
}

// Sink stores snapshots somewhere outside the process.
type Sink interface {
	Save(ctx context.Context, snap Snapshot) error
}

// NewRecord renders any item variant.
func NewRecord(it models.Item) Record {
	b := it.Base()
	r := Record{
		ID:              b.ID,
		Kind:            it.Kind(),
		Title:           b.Title,
		Description:     b.Description,
		Status:          b.Status,
		DurationMinutes: b.DurationMinutes,
	}
	if start, end, ok := it.Interval(); ok {
		r.StartTime = &start
		r.EndTime = &end
	}
	if s, ok := it.(*models.Subtask); ok {
		parent := s.EpicID
		r.ParentID = &parent
	}
	return r
}

// NewRecords renders a list of items in order.
func NewRecords[T models.Item](items []T) []Record {
	out := make([]Record, len(items))
	for i, it := range items {
		out[i] = NewRecord(it)
	}
	return out
}

// Item rebuilds the item described by r. Epic status and dates are not
// restored; they are derived again once subtasks are attached.
func (r Record) Item() (models.Item, error) {
	kind, err := models.ParseKind(string(r.Kind))
	if err != nil {
		return nil, err
	}
	status, err := models.ParseStatus(string(r.Status))
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	if err := models.ValidateDuration(r.DurationMinutes); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}

	base := models.Task{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Status:          status,
		DurationMinutes: r.DurationMinutes,
	}
	if r.StartTime != nil {
		start := *r.StartTime
		base.StartTime = &start
	}

	switch kind {
	case models.KindEpic:
		e := models.NewEpic(r.Title, r.Description)
		e.ID = r.ID
		return e, nil
	case models.KindSubtask:
		if r.ParentID == nil {
			return nil, fmt.Errorf("subtask %d has no parent id", r.ID)
		}
		return &models.Subtask{Task: base, EpicID: *r.ParentID}, nil
	default:
		return &base, nil
	}
}

// FromState flattens manager state into a snapshot ordered by id.
func FromState(st manager.State) Snapshot {
	records := make([]Record, 0, len(st.Tasks)+len(st.Epics)+len(st.Subtasks))
	records = append(records, NewRecords(st.Epics)...)
	records = append(records, NewRecords(st.Tasks)...)
	records = append(records, NewRecords(st.Subtasks)...)
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	history := make([]int64, len(st.History))
	copy(history, st.History)
	return Snapshot{Records: records, History: history, LastID: st.LastID}
}

// State decodes the records back into manager state.
func (s Snapshot) State() (manager.State, error) {
	st := manager.State{LastID: s.LastID}
	for _, r := range s.Records {
		it, err := r.Item()
		if err != nil {
			return manager.State{}, err
		}
		switch v := it.(type) {
		case *models.Epic:
			st.Epics = append(st.Epics, v)
		case *models.Subtask:
			st.Subtasks = append(st.Subtasks, v)
		case *models.Task:
			st.Tasks = append(st.Tasks, v)
		}
	}
	st.History = append([]int64(nil), s.History...)
	return st, nil
}

// Capture exports m as a snapshot.
func Capture(m *manager.Manager) Snapshot {
	return FromState(m.Export())
}

// Restore replaces the contents of m with s.
func Restore(m *manager.Manager, s Snapshot) error {
	st, err := s.State()
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := m.Import(st); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}
