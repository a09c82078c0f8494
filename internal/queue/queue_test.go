package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/consent/models"
	dErrors "pulse/pkg/domain-errors"
)

func newTestQueue(t *testing.T, capacity int, opts ...Option) *Queue {
	t.Helper()
	q, err := New(capacity, opts...)
	require.NoError(t, err)
	return q
}

func enqueueNamed(q *Queue, name string) uuid.UUID {
	return q.Enqueue(TypeTrack, []any{name}, models.CategoryAnalytics, nil)
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Args[0].(string)
	}
	return names
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := New(capacity)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
	}
}

func TestEnqueueAssignsDistinctIDsAndTimestamps(t *testing.T) {
	fixed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	q := newTestQueue(t, 10, WithClock(func() time.Time { return fixed }))

	id1 := enqueueNamed(q, "a")
	id2 := enqueueNamed(q, "b")

	assert.NotEqual(t, uuid.Nil, id1)
	assert.NotEqual(t, id1, id2)

	events := q.Events()
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Zero(t, events[0].Retries)
}

func TestOverflowEvictsOldestWithSingleCallback(t *testing.T) {
	var callbacks [][]Event
	q := newTestQueue(t, 3, WithOverflowFunc(func(dropped []Event) {
		callbacks = append(callbacks, dropped)
	}))

	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		enqueueNamed(q, name)
	}

	assert.Equal(t, []string{"e2", "e3", "e4"}, eventNames(q.Events()))
	require.Len(t, callbacks, 1, "one callback per evicting enqueue, not per event")
	assert.Equal(t, []string{"e1"}, eventNames(callbacks[0]))
}

func TestCapacityBoundHoldsUnderLongSequences(t *testing.T) {
	const capacity = 5
	q := newTestQueue(t, capacity)

	for i := 0; i < 50; i++ {
		enqueueNamed(q, fmt.Sprintf("e%02d", i))
	}

	assert.Equal(t, capacity, q.Size())
	// Retained events are exactly the last N admitted, in order
	assert.Equal(t, []string{"e45", "e46", "e47", "e48", "e49"}, eventNames(q.Events()))
}

func TestFlushReturnsFIFOAndEmpties(t *testing.T) {
	q := newTestQueue(t, 10)
	enqueueNamed(q, "a")
	enqueueNamed(q, "b")
	enqueueNamed(q, "c")

	flushed := q.Flush()
	assert.Equal(t, []string{"a", "b", "c"}, eventNames(flushed))
	assert.True(t, q.IsEmpty())

	// Idempotent on empty queue
	again := q.Flush()
	assert.NotNil(t, again)
	assert.Empty(t, again)
}

func TestDeepSnapshotIsolation(t *testing.T) {
	q := newTestQueue(t, 10)

	props := map[string]any{
		"plan":  "free",
		"tags":  []any{"a", "b"},
		"flags": map[string]any{"beta": true},
	}
	pageCtx := map[string]any{"path": "/pricing"}
	q.Enqueue(TypeTrack, []any{"signup", props}, models.CategoryAnalytics, pageCtx)

	// Mutations after enqueue must be invisible
	props["plan"] = "enterprise"
	props["tags"].([]any)[0] = "mutated"
	props["flags"].(map[string]any)["beta"] = false
	pageCtx["path"] = "/mutated"

	events := q.Events()
	require.Len(t, events, 1)
	snapshot := events[0].Args[1].(map[string]any)
	assert.Equal(t, "free", snapshot["plan"])
	assert.Equal(t, "a", snapshot["tags"].([]any)[0])
	assert.Equal(t, true, snapshot["flags"].(map[string]any)["beta"])
	assert.Equal(t, "/pricing", events[0].PageContext.(map[string]any)["path"])
}

func TestRemovePredicate(t *testing.T) {
	q := newTestQueue(t, 10)
	q.Enqueue(TypeTrack, []any{"a"}, models.CategoryAnalytics, nil)
	q.Enqueue(TypeTrack, []any{"b"}, models.CategoryMarketing, nil)
	q.Enqueue(TypeTrack, []any{"c"}, models.CategoryAnalytics, nil)
	q.Enqueue(TypeTrack, []any{"d"}, models.CategoryMarketing, nil)

	removed := q.Remove(func(ev Event) bool { return ev.Category == models.CategoryMarketing })

	assert.Equal(t, []string{"b", "d"}, eventNames(removed))
	assert.Equal(t, []string{"a", "c"}, eventNames(q.Events()), "survivors keep their relative order")

	// No match removes nothing
	removed = q.Remove(func(Event) bool { return false })
	assert.Empty(t, removed)
	assert.Equal(t, 2, q.Size())
}

func TestPausedEnqueueDropsSilently(t *testing.T) {
	overflowCalls := 0
	q := newTestQueue(t, 10, WithOverflowFunc(func([]Event) { overflowCalls++ }))

	enqueueNamed(q, "before")
	q.Pause()

	id := enqueueNamed(q, "while-paused")
	assert.Equal(t, uuid.Nil, id, "paused admission returns the zero id")
	assert.Equal(t, 1, q.Size(), "paused drop must not mutate the queue")
	assert.Zero(t, overflowCalls, "paused drop is not an overflow")

	q.Resume()
	id = enqueueNamed(q, "after")
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, []string{"before", "after"}, eventNames(q.Events()))
}

func TestPauseDoesNotAffectQueuedEvents(t *testing.T) {
	q := newTestQueue(t, 10)
	enqueueNamed(q, "a")
	q.Pause()

	assert.Equal(t, 1, q.Size())
	flushed := q.Flush()
	assert.Len(t, flushed, 1, "pause gates admission, not drain")
}

func TestClearIsNotOverflow(t *testing.T) {
	overflowCalls := 0
	q := newTestQueue(t, 10, WithOverflowFunc(func([]Event) { overflowCalls++ }))

	enqueueNamed(q, "a")
	enqueueNamed(q, "b")
	q.Clear()

	assert.True(t, q.IsEmpty())
	assert.Zero(t, overflowCalls)
}

func TestEventsReturnsSnapshotCopy(t *testing.T) {
	q := newTestQueue(t, 10)
	enqueueNamed(q, "a")

	events := q.Events()
	events[0].Args = []any{"tampered"}

	assert.Equal(t, []string{"a"}, eventNames(q.Events()))
}

func TestStateReporting(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	current := base
	q := newTestQueue(t, 10, WithClock(func() time.Time { return current }))

	state := q.State()
	assert.Zero(t, state.Size)
	assert.False(t, state.Paused)
	assert.Nil(t, state.OldestEventAge, "age is nil on an empty queue")

	enqueueNamed(q, "a")
	current = base.Add(90 * time.Second)

	state = q.State()
	assert.Equal(t, 1, state.Size)
	require.NotNil(t, state.OldestEventAge)
	assert.Equal(t, 90*time.Second, *state.OldestEventAge)

	q.Pause()
	assert.True(t, q.State().Paused)
}

func TestMultiEventOverflowInOneEnqueue(t *testing.T) {
	// Capacity 1: every enqueue on a full queue evicts exactly the previous
	// event; order within the callback matches admission order.
	var dropped []string
	q := newTestQueue(t, 1, WithOverflowFunc(func(evicted []Event) {
		dropped = append(dropped, eventNames(evicted)...)
	}))

	enqueueNamed(q, "a")
	enqueueNamed(q, "b")
	enqueueNamed(q, "c")

	assert.Equal(t, []string{"a", "b"}, dropped)
	assert.Equal(t, []string{"c"}, eventNames(q.Events()))
}
