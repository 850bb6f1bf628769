// Package schedule keeps dated items ordered by start time and detects
// interval conflicts between tasks and subtasks.
package schedule

import (
	"errors"
	"sort"
	"time"

	"kanban/internal/models"
)

// ErrUnassignedID is returned when an item without an id is inserted.
var ErrUnassignedID = errors.New("item has no id")

type entry struct {
	start time.Time
	end   time.Time
	id    int64
	epic  bool
	item  models.Item
}

func (e entry) before(start time.Time, id int64) bool {
	if !e.start.Equal(start) {
		return e.start.Before(start)
	}
	return e.id < id
}

// View orders dated items by (start time, id). Undated items are not
// members. Epics are members for enumeration but never conflict.
//
// View is not safe for concurrent use.
type View struct {
	entries []entry
	starts  map[int64]time.Time
	// spans counts non-epic interval lengths so conflict scans can start at
	// candidateStart-maxSpan instead of the beginning of the set.
	spans   map[time.Duration]int
	maxSpan time.Duration
}

// New returns an empty view.
func New() *View {
	return &View{
		starts: make(map[int64]time.Time),
		spans:  make(map[time.Duration]int),
	}
}

// Insert adds item at its current start time, replacing any earlier entry
// with the same id. An undated item is only removed.
func (v *View) Insert(item models.Item) error {
	id := item.Base().ID
	if id == 0 {
		return ErrUnassignedID
	}
	v.Remove(id)

	start, end, ok := item.Interval()
	if !ok {
		return nil
	}
	e := entry{start: start, end: end, id: id, epic: item.Kind() == models.KindEpic, item: item}
	i := v.search(start, id)
	v.entries = append(v.entries, entry{})
	copy(v.entries[i+1:], v.entries[i:])
	v.entries[i] = e
	v.starts[id] = start
	if !e.epic {
		v.addSpan(end.Sub(start))
	}
	return nil
}

// Remove drops the entry with the given id. Unknown ids are ignored.
func (v *View) Remove(id int64) {
	start, ok := v.starts[id]
	if !ok {
		return
	}
	delete(v.starts, id)
	i := v.search(start, id)
	if i >= len(v.entries) || v.entries[i].id != id {
		return
	}
	e := v.entries[i]
	v.entries = append(v.entries[:i], v.entries[i+1:]...)
	if !e.epic {
		v.dropSpan(e.end.Sub(e.start))
	}
}

// CheckConflict returns the earliest non-epic item, other than candidate
// itself, whose interval overlaps candidate's. Undated candidates and epics
// never conflict.
func (v *View) CheckConflict(candidate models.Item) (models.Item, bool) {
	if candidate.Kind() == models.KindEpic {
		return nil, false
	}
	start, end, ok := candidate.Interval()
	if !ok {
		return nil, false
	}
	id := candidate.Base().ID

	lo := start.Add(-v.maxSpan)
	i := sort.Search(len(v.entries), func(i int) bool {
		return !v.entries[i].start.Before(lo)
	})
	for ; i < len(v.entries) && v.entries[i].start.Before(end); i++ {
		e := v.entries[i]
		if e.epic || (id != 0 && e.id == id) {
			continue
		}
		if models.Overlaps(e.start, e.end, start, end) {
			return e.item, true
		}
	}
	return nil, false
}

// All returns the members in time order.
func (v *View) All() []models.Item {
	out := make([]models.Item, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.item
	}
	return out
}

func (v *View) search(start time.Time, id int64) int {
	return sort.Search(len(v.entries), func(i int) bool {
		return !v.entries[i].before(start, id)
	})
}

func (v *View) addSpan(d time.Duration) {
	v.spans[d]++
	if d > v.maxSpan {
		v.maxSpan = d
	}
}

func (v *View) dropSpan(d time.Duration) {
	v.spans[d]--
	if v.spans[d] > 0 {
		return
	}
	delete(v.spans, d)
	if d < v.maxSpan {
		return
	}
	v.maxSpan = 0
	for span := range v.spans {
		if span > v.maxSpan {
			v.maxSpan = span
		}
	}
}
