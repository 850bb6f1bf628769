package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRecordKeepsAccessOrder(t *testing.T) {
	tr := New()
	for _, id := range []int64{3, 1, 2} {
		tr.Record(id)
	}
	if diff := cmp.Diff([]int64{3, 1, 2}, tr.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	tr.Record(1)
	if diff := cmp.Diff([]int64{3, 2, 1}, tr.Snapshot()); diff != "" {
		t.Fatalf("snapshot after repeat mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, tr.index, 3)
}

func TestRecordRepeatOfHeadAndTail(t *testing.T) {
	tr := New()
	tr.Record(1)
	tr.Record(1)
	assert.Equal(t, []int64{1}, tr.Snapshot())

	tr.Record(2)
	tr.Record(3)
	tr.Record(1)
	assert.Equal(t, []int64{2, 3, 1}, tr.Snapshot())
	tr.Record(1)
	assert.Equal(t, []int64{2, 3, 1}, tr.Snapshot())
}

func TestForget(t *testing.T) {
	tr := New()
	for _, id := range []int64{1, 2, 3, 4} {
		tr.Record(id)
	}

	tr.Forget(1)
	tr.Forget(3)
	tr.Forget(4)
	tr.Forget(42)
	assert.Equal(t, []int64{2}, tr.Snapshot())
	assert.NotContains(t, tr.index, int64(1))
	assert.Contains(t, tr.index, int64(2))

	tr.Forget(2)
	assert.Empty(t, tr.Snapshot())
	assert.Empty(t, tr.index)

	tr.Record(5)
	assert.Equal(t, []int64{5}, tr.Snapshot())
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	tr := New()
	tr.Record(1)
	tr.Record(2)

	first := tr.Snapshot()
	first[0] = 99
	assert.Equal(t, []int64{1, 2}, tr.Snapshot())
	assert.Equal(t, []int64{1, 2}, tr.Snapshot())
}

func TestHandlesAreReused(t *testing.T) {
	tr := New()
	for i := 0; i < 100; i++ {
		tr.Record(int64(i % 4))
	}
	assert.LessOrEqual(t, len(tr.nodes), 5)
	assert.Equal(t, []int64{0, 1, 2, 3}, tr.Snapshot())

	for i := int64(0); i < 4; i++ {
		tr.Forget(i)
	}
	assert.Len(t, tr.free, len(tr.nodes))
	tr.Record(7)
	assert.Equal(t, []int64{7}, tr.Snapshot())
	assert.LessOrEqual(t, len(tr.nodes), 5)
}
