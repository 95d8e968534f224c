package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(name string) *Item {
	return &Item{UID: NewUID(), Name: name}
}

func namesOf(items []*Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestQueueAddPositions(t *testing.T) {
	q := New()
	a, b, c := newItem("a"), newItem("b"), newItem("c")

	_, err := q.Add(a, AtBack())
	require.NoError(t, err)
	_, err = q.Add(b, AtBack())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, namesOf(q.Items()))

	_, err = q.Add(c, AtFront())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, namesOf(q.Items()))
}

func TestQueueAddBeforeAfterUID(t *testing.T) {
	q := New()
	a, b := newItem("a"), newItem("b")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())

	mid := newItem("mid")
	_, err := q.Add(mid, BeforeUIDPos(b.UID))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "mid", "b"}, namesOf(q.Items()))

	tail := newItem("tail")
	_, err = q.Add(tail, AfterUIDPos(b.UID))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "mid", "b", "tail"}, namesOf(q.Items()))
}

func TestQueueAddUnknownUIDFails(t *testing.T) {
	q := New()
	_, _ = q.Add(newItem("a"), AtBack())

	_, err := q.Add(newItem("x"), BeforeUIDPos("does-not-exist"))
	assert.ErrorIs(t, err, ErrUnknownUID)
	assert.Equal(t, 1, q.Len())
}

func TestQueueAddIndexClamps(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  []string
	}{
		{"far past back clamps to back", 100, []string{"a", "b", "new"}},
		{"far before front clamps to front", -100, []string{"new", "a", "b"}},
		{"exact back index", 2, []string{"a", "b", "new"}},
		{"middle index", 1, []string{"a", "new", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			_, _ = q.Add(newItem("a"), AtBack())
			_, _ = q.Add(newItem("b"), AtBack())

			_, err := q.Add(&Item{UID: NewUID(), Name: "new"}, AtIndex(tt.index))
			require.NoError(t, err)
			assert.Equal(t, tt.want, namesOf(q.Items()))
		})
	}
}

func TestQueueRemoveByUID(t *testing.T) {
	q := New()
	a, b, c := newItem("a"), newItem("b"), newItem("c")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())
	_, _ = q.Add(c, AtBack())

	removed, err := q.Remove(RefUID(b.UID))
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Name)
	assert.Equal(t, []string{"a", "c"}, namesOf(q.Items()))
}

func TestQueueRemoveUnknownUIDFails(t *testing.T) {
	q := New()
	_, _ = q.Add(newItem("a"), AtBack())

	_, err := q.Remove(RefUID("nope"))
	assert.ErrorIs(t, err, ErrUnknownUID)
	assert.Equal(t, 1, q.Len())
}

func TestQueueRemoveOutOfRangeDoesNotClamp(t *testing.T) {
	q := New()
	_, _ = q.Add(newItem("a"), AtBack())
	_, _ = q.Add(newItem("b"), AtBack())

	_, err := q.Remove(RefIndex(-100))
	assert.ErrorIs(t, err, ErrDestOutOfRange)
	assert.Equal(t, 2, q.Len(), "rejected remove must leave the queue unchanged")

	_, err = q.Remove(RefIndex(100))
	assert.ErrorIs(t, err, ErrDestOutOfRange)
	assert.Equal(t, 2, q.Len())
}

func TestQueueRemoveDefaultIsBack(t *testing.T) {
	q := New()
	_, _ = q.Add(newItem("a"), AtBack())
	_, _ = q.Add(newItem("b"), AtBack())

	removed, err := q.Remove(Ref{})
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Name)
}

func TestQueueRemoveEmptyFails(t *testing.T) {
	q := New()
	_, err := q.Remove(Ref{})
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

// TestInsertRemoveRoundTrip checks the round-trip invariant from spec.md
// §8: inserting an item then removing it by UID restores the prior order.
func TestInsertRemoveRoundTrip(t *testing.T) {
	q := New()
	a, b := newItem("a"), newItem("b")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())
	before := namesOf(q.Items())

	mid := newItem("mid")
	_, err := q.Add(mid, BeforeUIDPos(b.UID))
	require.NoError(t, err)

	_, err = q.Remove(RefUID(mid.UID))
	require.NoError(t, err)

	assert.Equal(t, before, namesOf(q.Items()))
}

func TestQueueMoveByIndex(t *testing.T) {
	q := New()
	a, b, c := newItem("a"), newItem("b"), newItem("c")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())
	_, _ = q.Add(c, AtBack())

	err := q.Move(RefUID(a.UID), MoveDest{Index: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, namesOf(q.Items()))
}

func TestQueueMoveByUID(t *testing.T) {
	q := New()
	a, b, c := newItem("a"), newItem("b"), newItem("c")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())
	_, _ = q.Add(c, AtBack())

	err := q.Move(RefUID(c.UID), MoveDest{UID: a.UID, Before: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, namesOf(q.Items()))
}

// TestMoveRoundTrip checks the round-trip invariant from spec.md §8:
// moving an item and moving it back restores the prior order.
func TestMoveRoundTrip(t *testing.T) {
	q := New()
	a, b, c := newItem("a"), newItem("b"), newItem("c")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())
	_, _ = q.Add(c, AtBack())
	before := namesOf(q.Items())

	require.NoError(t, q.Move(RefUID(a.UID), MoveDest{UID: c.UID, Before: false}))
	require.NoError(t, q.Move(RefUID(a.UID), MoveDest{Index: intPtr(0)}))

	assert.Equal(t, before, namesOf(q.Items()))
}

func TestQueueMoveDestOutOfRangeFails(t *testing.T) {
	q := New()
	a, b := newItem("a"), newItem("b")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())

	err := q.Move(RefUID(a.UID), MoveDest{Index: intPtr(50)})
	assert.ErrorIs(t, err, ErrDestOutOfRange)
	assert.Equal(t, []string{"a", "b"}, namesOf(q.Items()), "rejected move must leave the queue unchanged")
}

func TestQueueClear(t *testing.T) {
	q := New()
	_, _ = q.Add(newItem("a"), AtBack())
	_, _ = q.Add(newItem("b"), AtBack())

	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueuePushPopFront(t *testing.T) {
	q := New()
	a, b := newItem("a"), newItem("b")
	_, _ = q.Add(a, AtBack())
	_, _ = q.Add(b, AtBack())

	front, ok := q.PopFront()
	require.True(t, ok)
	assert.Equal(t, "a", front.Name)

	q.PushFront(front)
	assert.Equal(t, []string{"a", "b"}, namesOf(q.Items()))
}

func TestHistoryAppendAndClear(t *testing.T) {
	h := NewHistory()
	h.Append(&HistoryEntry{Item: *newItem("a"), Status: StatusCompleted})
	h.Append(&HistoryEntry{Item: *newItem("b"), Status: StatusFailed})

	assert.Equal(t, 2, h.Len())
	entries := h.Entries()
	assert.Equal(t, StatusCompleted, entries[0].Status)
	assert.Equal(t, StatusFailed, entries[1].Status)

	h.Clear()
	assert.Equal(t, 0, h.Len())
}

func TestValidationErrorUnwraps(t *testing.T) {
	q := New()
	_, err := q.Remove(RefUID("missing"))
	require.Error(t, err)

	verr := NewValidationError("queue_plan_remove", err)
	assert.True(t, errors.Is(verr, ErrUnknownUID))
	assert.Contains(t, verr.Error(), "queue_plan_remove")
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusRunning, false},
		{StatusPaused, false},
		{StatusCompleted, true},
		{StatusStopped, true},
		{StatusAborted, true},
		{StatusHalted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.IsTerminal(), "status %s", tt.status)
	}
}

func intPtr(i int) *int { return &i }
