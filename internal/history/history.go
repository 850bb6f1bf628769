// Package history tracks the order in which items were viewed.
//
// The tracker is a doubly linked list stored in an arena of nodes addressed
// by integer handles, plus an id to handle index, so recording a repeat view
// relocates the existing entry in constant time. History is unbounded.
package history

const nilHandle = -1

type node struct {
	id         int64
	prev, next int
}

// Tracker is not safe for concurrent use; its owner serializes access.
type Tracker struct {
	nodes []node
	free  []int
	index map[int64]int
	head  int
	tail  int
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		index: make(map[int64]int),
		head:  nilHandle,
		tail:  nilHandle,
	}
}

// Record moves id to the most recent end, adding it if absent.
func (t *Tracker) Record(id int64) {
	t.Forget(id)

	h := t.alloc(node{id: id, prev: t.tail, next: nilHandle})
	if t.tail == nilHandle {
		t.head = h
	} else {
		t.nodes[t.tail].next = h
	}
	t.tail = h
	t.index[id] = h
}

// Forget drops id from the history. Unknown ids are ignored.
func (t *Tracker) Forget(id int64) {
	h, ok := t.index[id]
	if !ok {
		return
	}
	delete(t.index, id)

	n := t.nodes[h]
	if n.prev == nilHandle {
		t.head = n.next
	} else {
		t.nodes[n.prev].next = n.next
	}
	if n.next == nilHandle {
		t.tail = n.prev
	} else {
		t.nodes[n.next].prev = n.prev
	}
	t.nodes[h] = node{prev: nilHandle, next: nilHandle}
	t.free = append(t.free, h)
}

// Snapshot returns the ids oldest first.
func (t *Tracker) Snapshot() []int64 {
	out := make([]int64, 0, len(t.index))
	for h := t.head; h != nilHandle; h = t.nodes[h].next {
		out = append(out, t.nodes[h].id)
	}
	return out
}

func (t *Tracker) alloc(n node) int {
	if k := len(t.free); k > 0 {
		h := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[h] = n
		return h
	}
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}
