package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxDurationMinutes is the longest duration whose end time is still
// representable as a time.Duration offset from the start.
const MaxDurationMinutes = math.MaxInt64 / int64(time.Minute)

// ErrInvalidDuration is returned for negative or unrepresentable durations.
var ErrInvalidDuration = errors.New("invalid duration")

// ValidateDuration checks that minutes lies in [0, MaxDurationMinutes].
func ValidateDuration(minutes int64) error {
	if minutes < 0 || minutes > MaxDurationMinutes {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}
	return nil
}

// Status is the workflow state of a task, epic or subtask.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// ValidStatuses enumerates the statuses an item may carry.
var ValidStatuses = map[Status]struct{}{
	StatusNew:        {},
	StatusInProgress: {},
	StatusDone:       {},
}

// ParseStatus accepts any letter case and the "in progress" / "in-progress" spellings.
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if norm == "" {
		return StatusNew, nil
	}
	s := Status(norm)
	if _, ok := ValidStatuses[s]; !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Kind distinguishes the three item variants.
type Kind string

const (
	KindTask    Kind = "TASK"
	KindEpic    Kind = "EPIC"
	KindSubtask Kind = "SUBTASK"
)

// ParseKind validates a serialized kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	switch k {
	case KindTask, KindEpic, KindSubtask:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", raw)
}

// Item is implemented by *Task, *Epic and *Subtask.
type Item interface {
	// Base exposes the fields shared by every variant.
	Base() *Task
	Kind() Kind
	// Interval reports the half-open [start, end) window of a dated item.
	Interval() (start, end time.Time, ok bool)
}

// Task is a single unit of work. ID zero means the task has not been stored yet.
type Task struct {
	ID              int64
	Title           string
	Description     string
	Status          Status
	StartTime       *time.Time
	DurationMinutes int64
}

// NewTask returns an unsaved task in status NEW.
func NewTask(title, description string) *Task {
	return &Task{Title: title, Description: description, Status: StatusNew}
}

// Base returns t itself.
func (t *Task) Base() *Task { return t }

// Kind reports KindTask.
func (t *Task) Kind() Kind { return KindTask }

// EndTime is StartTime plus the duration, or nil when the task is undated.
func (t *Task) EndTime() *time.Time {
	if t.StartTime == nil {
		return nil
	}
	end := t.StartTime.Add(time.Duration(t.DurationMinutes) * time.Minute)
	return &end
}

// Interval is [StartTime, EndTime) when the task is dated.
func (t *Task) Interval() (time.Time, time.Time, bool) {
	if t.StartTime == nil {
		return time.Time{}, time.Time{}, false
	}
	return *t.StartTime, *t.EndTime(), true
}

// Schedule sets the start time and duration together.
func (t *Task) Schedule(start time.Time, minutes int64) {
	t.StartTime = &start
	t.DurationMinutes = minutes
}

// Clone returns a copy that shares no memory with t.
func (t *Task) Clone() *Task {
	c := *t
	c.StartTime = cloneTime(t.StartTime)
	return &c
}

// Subtask belongs to exactly one epic, referenced by EpicID.
type Subtask struct {
	Task
	EpicID int64
}

// NewSubtask returns an unsaved subtask owned by the epic with the given id.
func NewSubtask(title, description string, epicID int64) *Subtask {
	return &Subtask{Task: *NewTask(title, description), EpicID: epicID}
}

// Kind reports KindSubtask.
func (s *Subtask) Kind() Kind { return KindSubtask }

// Clone returns a copy that shares no memory with s.
func (s *Subtask) Clone() *Subtask {
	return &Subtask{Task: *s.Task.Clone(), EpicID: s.EpicID}
}

// Epic aggregates subtasks. Status, StartTime, DurationMinutes and the end
// time are derived from the subtasks by Recompute and must not be set by callers.
type Epic struct {
	Task
	endTime  *time.Time
	subtasks []*Subtask
}

// NewEpic returns an unsaved epic with no subtasks.
func NewEpic(title, description string) *Epic {
	e := &Epic{Task: *NewTask(title, description)}
	e.Recompute()
	return e
}

// Kind reports KindEpic.
func (e *Epic) Kind() Kind { return KindEpic }

// EndTime is the latest end among the subtasks.
func (e *Epic) EndTime() *time.Time { return cloneTime(e.endTime) }

// Interval spans the earliest subtask start to the latest subtask end.
func (e *Epic) Interval() (time.Time, time.Time, bool) {
	if e.StartTime == nil || e.endTime == nil {
		return time.Time{}, time.Time{}, false
	}
	return *e.StartTime, *e.endTime, true
}

// Subtasks returns the owned subtasks in insertion order.
func (e *Epic) Subtasks() []*Subtask {
	out := make([]*Subtask, len(e.subtasks))
	copy(out, e.subtasks)
	return out
}

// AddSubtask appends s and recomputes the derived fields. Nil is ignored.
func (e *Epic) AddSubtask(s *Subtask) {
	if s == nil {
		return
	}
	e.subtasks = append(e.subtasks, s)
	e.Recompute()
}

// RemoveSubtask detaches the subtask with the given id, if owned.
func (e *Epic) RemoveSubtask(id int64) bool {
	for i, s := range e.subtasks {
		if s.ID == id {
			e.subtasks = append(e.subtasks[:i], e.subtasks[i+1:]...)
			e.Recompute()
			return true
		}
	}
	return false
}

// ClearSubtasks detaches every subtask.
func (e *Epic) ClearSubtasks() {
	e.subtasks = nil
	e.Recompute()
}

// Recompute derives status and dates from the current subtask list.
//
// Status: no subtasks or all NEW gives NEW, all DONE gives DONE, any mix gives
// IN_PROGRESS. Dates: duration is the sum of subtask durations, start the
// earliest defined subtask start, end the latest defined subtask end. With no
// subtasks all date fields are unset. The summed duration saturates at
// MaxDurationMinutes.
func (e *Epic) Recompute() {
	e.Status = aggregateStatus(e.subtasks)

	e.StartTime, e.endTime, e.DurationMinutes = nil, nil, 0
	if len(e.subtasks) == 0 {
		return
	}
	var duration int64
	var start, end *time.Time
	for _, s := range e.subtasks {
		if s.DurationMinutes > 0 && duration > MaxDurationMinutes-s.DurationMinutes {
			duration = MaxDurationMinutes
		} else {
			duration += s.DurationMinutes
		}
		st, en, ok := s.Interval()
		if !ok {
			continue
		}
		if start == nil || st.Before(*start) {
			start = &st
		}
		if end == nil || en.After(*end) {
			end = &en
		}
	}
	e.DurationMinutes = duration
	e.StartTime = start
	e.endTime = end
}

func aggregateStatus(subtasks []*Subtask) Status {
	if len(subtasks) == 0 {
		return StatusNew
	}
	first := subtasks[0].Status
	for _, s := range subtasks[1:] {
		if s.Status != first {
			return StatusInProgress
		}
	}
	return first
}

// Clone deep-copies the epic including its subtasks.
func (e *Epic) Clone() *Epic {
	c := &Epic{Task: *e.Task.Clone(), endTime: cloneTime(e.endTime)}
	if len(e.subtasks) > 0 {
		c.subtasks = make([]*Subtask, len(e.subtasks))
		for i, s := range e.subtasks {
			c.subtasks[i] = s.Clone()
		}
	}
	return c
}

// Equal reports identity equality: two items are equal iff their ids are,
// so two unsaved items (id 0) compare equal.
func Equal(a, b Item) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Base().ID == b.Base().ID
}

// Overlaps applies the half-open interval test: touching endpoints do not conflict.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return e1.After(s2) && s1.Before(e2)
}

// CloneItem copies any item variant.
func CloneItem(it Item) Item {
	switch v := it.(type) {
	case *Epic:
		return v.Clone()
	case *Subtask:
		return v.Clone()
	case *Task:
		return v.Clone()
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
