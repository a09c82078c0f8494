package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulse/internal/consent/models"
	"pulse/internal/queue/metrics"
	dErrors "pulse/pkg/domain-errors"
)

// EventType discriminates the two admission paths.
type EventType string

const (
	TypeTrack    EventType = "track"
	TypePageview EventType = "pageview"
)

// Event is a queued analytics event. Args and PageContext are snapshots
// taken at enqueue time: mutating the values the caller passed in afterwards
// is never observable through the queue.
//
// Events are immutable once queued except for Retries, which the dispatcher
// bumps between delivery attempts.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	Args        []any           `json:"args"`
	Category    models.Category `json:"category"`
	PageContext any             `json:"pageContext,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Retries     int             `json:"retries"`
}

// OverflowFunc receives the events evicted by a single enqueue, oldest
// first. It is called at most once per enqueue, never once per event.
type OverflowFunc func(dropped []Event)

// State is a point-in-time queue summary for diagnostics.
type State struct {
	Size           int
	Paused         bool
	OldestEventAge *time.Duration
}

type Option func(*Queue)

// Queue is a bounded FIFO buffer for events that cannot be transmitted yet.
// It never blocks the caller: over capacity it evicts from the front
// (oldest first), and while paused it silently drops new events.
type Queue struct {
	mu         sync.Mutex
	events     []Event
	capacity   int
	paused     bool
	onOverflow OverflowFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a queue with the given capacity. Capacity below one is a
// configuration error: a queue that cannot hold anything is a miswired
// pipeline, not a degradation to tolerate.
func New(capacity int, opts ...Option) (*Queue, error) {
	if capacity < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, fmt.Sprintf("queue capacity must be >= 1, got %d", capacity))
	}
	q := &Queue{
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// WithOverflowFunc sets the eviction callback.
func WithOverflowFunc(fn OverflowFunc) Option {
	return func(q *Queue) { q.onOverflow = fn }
}

// WithMetrics sets the metrics instance for the queue.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = mx }
}

// WithLogger sets the logger instance for the queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Enqueue admits an event and returns its id. While paused it returns
// uuid.Nil, performs no mutation, and fires no overflow callback: paused
// drops are an admission policy, not a capacity signal.
func (q *Queue) Enqueue(eventType EventType, args []any, category models.Category, pageContext any) uuid.UUID {
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		q.addDropped(metrics.DropReasonPaused, 1)
		return uuid.Nil
	}

	event := Event{
		ID:          uuid.New(),
		Type:        eventType,
		Args:        snapshotArgs(args),
		Category:    category,
		PageContext: snapshotValue(pageContext),
		Timestamp:   q.now(),
	}
	q.events = append(q.events, event)

	var dropped []Event
	if len(q.events) > q.capacity {
		overflow := len(q.events) - q.capacity
		dropped = make([]Event, overflow)
		copy(dropped, q.events[:overflow])
		q.events = append(q.events[:0], q.events[overflow:]...)
	}
	size := len(q.events)
	q.mu.Unlock()

	q.incrementEnqueued(eventType)
	q.setDepth(size)

	if len(dropped) > 0 {
		q.addDropped(metrics.DropReasonOverflow, len(dropped))
		q.logDrop(len(dropped), size)
		if q.onOverflow != nil {
			q.onOverflow(dropped)
		}
	}
	return event.ID
}

// Flush atomically removes and returns all queued events in FIFO order.
// Calling it on an empty queue returns an empty slice.
func (q *Queue) Flush() []Event {
	q.mu.Lock()
	flushed := q.events
	q.events = nil
	q.mu.Unlock()

	q.setDepth(0)
	q.addFlushed(len(flushed))
	if flushed == nil {
		return []Event{}
	}
	return flushed
}

// Remove deletes every event matching the predicate, preserving the
// relative order of the survivors, and returns the removed events in their
// original order.
func (q *Queue) Remove(predicate func(Event) bool) []Event {
	q.mu.Lock()
	var removed, kept []Event
	for _, event := range q.events {
		if predicate(event) {
			removed = append(removed, event)
		} else {
			kept = append(kept, event)
		}
	}
	q.events = kept
	size := len(q.events)
	q.mu.Unlock()

	q.setDepth(size)
	q.addDropped(metrics.DropReasonRemoved, len(removed))
	return removed
}

// Clear empties the queue without firing the overflow callback.
func (q *Queue) Clear() {
	q.mu.Lock()
	cleared := len(q.events)
	q.events = nil
	q.mu.Unlock()

	q.setDepth(0)
	q.addDropped(metrics.DropReasonCleared, cleared)
}

// Pause stops admission; subsequent Enqueue calls drop silently. Events
// already queued are unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restores normal admission.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
}

// Events returns a snapshot copy of the queued events in FIFO order.
func (q *Queue) Events() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}

// Size returns the current queue depth.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// IsEmpty reports whether the queue holds no events.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Capacity returns the configured bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// State returns a diagnostics summary. OldestEventAge is nil when empty.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	state := State{
		Size:   len(q.events),
		Paused: q.paused,
	}
	if len(q.events) > 0 {
		age := q.now().Sub(q.events[0].Timestamp)
		state.OldestEventAge = &age
	}
	return state
}

func (q *Queue) incrementEnqueued(eventType EventType) {
	if q.metrics != nil {
		q.metrics.IncrementEnqueued(string(eventType))
	}
}

func (q *Queue) addDropped(reason string, n int) {
	if q.metrics != nil && n > 0 {
		q.metrics.AddDropped(reason, n)
	}
}

func (q *Queue) addFlushed(n int) {
	if q.metrics != nil && n > 0 {
		q.metrics.AddFlushed(n)
	}
}

func (q *Queue) setDepth(n int) {
	if q.metrics != nil {
		q.metrics.SetDepth(n)
	}
}

func (q *Queue) logDrop(dropped, size int) {
	if q.logger == nil {
		return
	}
	q.logger.Warn("queue_overflow",
		"dropped", dropped,
		"size", size,
		"capacity", q.capacity,
	)
}
