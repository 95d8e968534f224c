package queue

import (
	"errors"
	"fmt"
)

// ErrUnknownUID is returned when a position, removal, or move refers to a
// UID that is not currently in the queue.
var ErrUnknownUID = errors.New("queue: unknown plan uid")

// ErrEmptyQueue is returned by operations that require at least one item.
var ErrEmptyQueue = errors.New("queue: empty")

// ErrDestOutOfRange is returned when an index does not name an existing
// item: by Move for an invalid destination, and by Get, Remove and Move's
// source lookup for an out-of-range index (these, unlike inserts, do not
// clamp).
var ErrDestOutOfRange = errors.New("queue: destination position out of range")

// Position describes where queue_item_add should place a new item. Exactly
// one of the fields should be set; the zero value means "back" (spec.md
// §4.2's documented default for queue_item_get/queue_plan_remove, reused
// here as the default for adds with no explicit position too).
type Position struct {
	Front     bool
	Back      bool
	Index     *int
	BeforeUID string
	AfterUID  string
}

// AtIndex builds a Position for an absolute (possibly negative) index.
func AtIndex(i int) Position { return Position{Index: &i} }

// AtFront builds the symbolic "front" position.
func AtFront() Position { return Position{Front: true} }

// AtBack builds the symbolic "back" position.
func AtBack() Position { return Position{Back: true} }

// BeforeUIDPos builds a Position that inserts immediately before the given UID.
func BeforeUIDPos(uid string) Position { return Position{BeforeUID: uid} }

// AfterUIDPos builds a Position that inserts immediately after the given UID.
func AfterUIDPos(uid string) Position { return Position{AfterUID: uid} }

// Ref identifies an existing queue item for get/remove/move-source: either
// by UID or by position. The zero value resolves to "back", matching
// spec.md §4.2's default for queue_item_get and queue_plan_remove.
type Ref struct {
	UID   string
	Index *int
}

// RefUID builds a Ref that looks an item up by UID.
func RefUID(uid string) Ref { return Ref{UID: uid} }

// RefIndex builds a Ref that looks an item up by position.
func RefIndex(i int) Ref { return Ref{Index: &i} }

// Queue is an ordered, UID-addressable sequence of plan items. It is not
// safe for concurrent use — the manager serializes all access under its
// own mutex.
type Queue struct {
	items []*Item
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int { return len(q.items) }

// Items returns a snapshot slice of the queue in order. The slice is a
// copy of the backing array; items themselves are shared and must be
// treated as read-only by callers.
func (q *Queue) Items() []*Item {
	out := make([]*Item, len(q.items))
	copy(out, q.items)
	return out
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.items = nil
}

// indexOfUID returns the slice index of the item with the given UID, or -1.
func (q *Queue) indexOfUID(uid string) int {
	for i, it := range q.items {
		if it.UID == uid {
			return i
		}
	}
	return -1
}

// resolveInsertIndex turns a Position into a concrete slice index,
// following spec.md §3's clamping rules: positions beyond the back clamp
// to the back; positions before the front clamp to the front (for
// position-based inserts only — UID-based inserts with an unknown UID
// always fail, never clamp).
func (q *Queue) resolveInsertIndex(pos Position) (int, error) {
	n := len(q.items)

	switch {
	case pos.Front:
		return 0, nil
	case pos.Back:
		return n, nil
	case pos.BeforeUID != "":
		idx := q.indexOfUID(pos.BeforeUID)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrUnknownUID, pos.BeforeUID)
		}
		return idx, nil
	case pos.AfterUID != "":
		idx := q.indexOfUID(pos.AfterUID)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrUnknownUID, pos.AfterUID)
		}
		return idx + 1, nil
	case pos.Index != nil:
		i := *pos.Index
		if i < 0 {
			i = n + i
			if i < 0 {
				i = 0 // clamp very negative positions to front on insert
			}
			return i, nil
		}
		if i > n {
			i = n // clamp positions past the back to the back
		}
		return i, nil
	default:
		// zero value: back
		return n, nil
	}
}

// Add inserts item (which must already carry its assigned UID) at pos and
// returns it.
func (q *Queue) Add(item *Item, pos Position) (*Item, error) {
	idx, err := q.resolveInsertIndex(pos)
	if err != nil {
		return nil, err
	}

	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
	return item, nil
}

// resolveRef resolves a Ref to a concrete slice index. Unlike inserts,
// lookups do not clamp: a position outside [-len, len) or an unknown UID
// is an error (spec.md §3's documented asymmetry, §9's "position-clamping
// vs. position-error" open question — this implementation keeps it rather
// than unifying the two).
func (q *Queue) resolveRef(ref Ref) (int, error) {
	n := len(q.items)

	if ref.UID != "" {
		idx := q.indexOfUID(ref.UID)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrUnknownUID, ref.UID)
		}
		return idx, nil
	}

	if ref.Index == nil {
		// zero value: back
		if n == 0 {
			return 0, ErrEmptyQueue
		}
		return n - 1, nil
	}

	i := *ref.Index
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: index %d (len=%d)", ErrDestOutOfRange, *ref.Index, n)
	}
	return i, nil
}

// Get returns the item referred to by ref without removing it.
func (q *Queue) Get(ref Ref) (*Item, error) {
	idx, err := q.resolveRef(ref)
	if err != nil {
		return nil, err
	}
	return q.items[idx], nil
}

// Remove removes and returns the item referred to by ref.
func (q *Queue) Remove(ref Ref) (*Item, error) {
	idx, err := q.resolveRef(ref)
	if err != nil {
		return nil, err
	}
	item := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return item, nil
}

// PopFront removes and returns the front item, or ok=false if empty.
func (q *Queue) PopFront() (*Item, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// PushFront re-queues an item at the very front — used when an
// environment is destroyed mid-plan (spec.md §4.3).
func (q *Queue) PushFront(item *Item) {
	q.items = append([]*Item{item}, q.items...)
}

// MoveDest identifies where Move should place the source item: an absolute
// index, or relative to a UID with a before/after modifier.
type MoveDest struct {
	Index  *int
	UID    string
	Before bool
}

// Move relocates the item identified by src to dst. It fails (queue
// unchanged) if src or dst cannot be resolved, or dst's absolute index is
// out of range — moves do not clamp, per spec.md §4.2's "Fails if dst
// index out of range."
func (q *Queue) Move(src Ref, dst MoveDest) error {
	srcIdx, err := q.resolveRef(src)
	if err != nil {
		return err
	}

	item := q.items[srcIdx]
	withoutSrc := append(append([]*Item{}, q.items[:srcIdx]...), q.items[srcIdx+1:]...)

	var dstIdx int
	switch {
	case dst.UID != "":
		idx := -1
		for i, it := range withoutSrc {
			if it.UID == dst.UID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownUID, dst.UID)
		}
		if dst.Before {
			dstIdx = idx
		} else {
			dstIdx = idx + 1
		}
	case dst.Index != nil:
		i := *dst.Index
		if i < 0 {
			i = len(withoutSrc) + 1 + i
		}
		if i < 0 || i > len(withoutSrc) {
			return fmt.Errorf("%w: index %d (len=%d)", ErrDestOutOfRange, *dst.Index, len(withoutSrc)+1)
		}
		dstIdx = i
	default:
		dstIdx = len(withoutSrc)
	}

	out := make([]*Item, 0, len(withoutSrc)+1)
	out = append(out, withoutSrc[:dstIdx]...)
	out = append(out, item)
	out = append(out, withoutSrc[dstIdx:]...)
	q.items = out
	return nil
}
