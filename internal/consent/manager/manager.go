package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/consent/metrics"
	"pulse/internal/consent/models"
	"pulse/internal/consent/store"
	"pulse/internal/platform/errsink"
	dErrors "pulse/pkg/domain-errors"
)

// Listener receives the new consent record after every applied transition.
type Listener func(record models.Record)

// ChangeCallback is the single configured callback invoked before any
// subscribers, with both the new and the previous record.
type ChangeCallback func(newRecord, previous models.Record)

// RegionPolicy supplies a region-specific default record. Region detection
// itself lives with the caller; the manager only consults the policy when
// neither a persisted record nor an explicit default exists.
type RegionPolicy func() (models.Record, bool)

type Option func(*Manager)

// Manager is the single source of truth for whether tracking is currently
// permitted, and at what granularity. One instance is shared by every
// tracker on a page; construct it once and pass it by reference.
//
// All steady-state operations are non-throwing: store failures are reported
// to the error sink and the in-memory record stays authoritative.
type Manager struct {
	mu     sync.Mutex
	record models.Record

	store         store.Store
	logger        *slog.Logger
	metrics       *metrics.Metrics
	sink          errsink.Sink
	onChange      ChangeCallback
	regionPolicy  RegionPolicy
	defaultRecord *models.Record
	version       string
	now           func() time.Time

	subMu    sync.Mutex
	nextSub  int
	subOrder []int
	subs     map[int]Listener
}

// NewManager constructs a manager and resolves its initial record:
// persisted record (if valid) → configured default → regional default →
// conservative pending default.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: st,
		now:   time.Now,
		subs:  make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.record = m.loadInitial(context.Background())
	return m
}

// WithLogger sets the logger instance for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics instance for the manager.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithSink routes non-fatal component errors (persistence failures,
// listener panics) to the given sink.
func WithSink(sink errsink.Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithDefaultRecord sets the record used when the store has nothing valid.
func WithDefaultRecord(record models.Record) Option {
	return func(m *Manager) {
		copyRecord := record.Normalize()
		m.defaultRecord = &copyRecord
	}
}

// WithRegionPolicy installs a regional defaulting policy, consulted only
// when neither a persisted record nor an explicit default exists.
func WithRegionPolicy(policy RegionPolicy) Option {
	return func(m *Manager) { m.regionPolicy = policy }
}

// WithVersion stamps new consent decisions with a policy version string.
func WithVersion(version string) Option {
	return func(m *Manager) { m.version = version }
}

// WithChangeCallback sets the single callback invoked before subscribers on
// every transition.
func WithChangeCallback(cb ChangeCallback) Option {
	return func(m *Manager) { m.onChange = cb }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// State returns a defensive copy of the current record.
func (m *Manager) State() models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone()
}

// HasConsent reports whether the given category may be transmitted right now.
func (m *Manager) HasConsent(category models.Category) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Allows(category)
}

// CanTrack is the convenience combinator used by dispatchers; with no
// category it gates on analytics.
func (m *Manager) CanTrack(categories ...models.Category) bool {
	category := models.CategoryAnalytics
	if len(categories) > 0 {
		category = categories[0]
	}
	allowed := m.HasConsent(category)
	m.incrementTrackCheck(category, allowed)
	return allowed
}

// ProcessEvent applies a consent transition and returns the new record.
// It never returns an error: persistence failures are reported to the sink
// and listener failures are isolated.
func (m *Manager) ProcessEvent(ctx context.Context, event models.Event) models.Record {
	if !event.Kind.IsValid() {
		m.report(dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown consent event kind: %s", event.Kind)))
		return m.State()
	}

	m.mu.Lock()
	prev := m.record.Clone()
	next, persist := m.apply(ctx, prev, event)
	m.record = next
	m.mu.Unlock()

	if persist {
		if err := m.store.Set(ctx, next); err != nil {
			m.reportPersistence(err, "persist consent record")
		}
	}
	m.incrementTransition(event.Kind, next.Status)
	m.logTransition(ctx, event.Kind, prev.Status, next.Status)
	m.notify(next, prev)
	return next.Clone()
}

// Subscribe registers a listener for future transitions and returns its
// unsubscribe function. Unsubscribing is idempotent and safe to call from
// within a listener callback.
func (m *Manager) Subscribe(listener Listener) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = listener
	m.subOrder = append(m.subOrder, id)
	count := len(m.subs)
	m.subMu.Unlock()
	m.setSubscribers(count)

	return func() {
		m.subMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			for i, sid := range m.subOrder {
				if sid == id {
					m.subOrder = append(m.subOrder[:i], m.subOrder[i+1:]...)
					break
				}
			}
		}
		count := len(m.subs)
		m.subMu.Unlock()
		m.setSubscribers(count)
	}
}

// apply computes the successor record for an event. The second return value
// is false when the transition must not be persisted (RESET clears the
// store instead).
func (m *Manager) apply(ctx context.Context, prev models.Record, event models.Event) (models.Record, bool) {
	next := prev.Clone()
	now := m.now()

	switch event.Kind {
	case models.EventGrant:
		if len(event.Categories) == 0 {
			for _, cat := range models.NonNecessaryCategories {
				next.Categories[cat] = true
			}
		} else {
			for cat, on := range event.Categories {
				if on && cat.IsValid() {
					next.Categories[cat] = true
				}
			}
		}
		next.Status = models.DeriveStatus(next.Categories)
		next.Method = models.MethodExplicit
		next.LegalBasis = models.BasisConsent
		next.Version = m.version
		next.Timestamp = now

	case models.EventDeny:
		for _, cat := range models.NonNecessaryCategories {
			next.Categories[cat] = false
		}
		next.Status = models.StatusDenied
		next.Method = models.MethodExplicit
		next.Version = m.version
		next.Timestamp = now

	case models.EventWithdraw:
		// Same shape as deny, but the originally recorded policy version
		// stays: the user withdraws the decision they made under it.
		for _, cat := range models.NonNecessaryCategories {
			next.Categories[cat] = false
		}
		next.Status = models.StatusDenied
		next.Method = models.MethodExplicit
		next.Version = prev.Version
		next.Timestamp = now

	case models.EventUpdate:
		for cat, on := range event.Categories {
			if cat == models.CategoryNecessary || !cat.IsValid() {
				continue
			}
			next.Categories[cat] = on
		}
		next.Status = models.DeriveStatus(next.Categories)
		next.Method = models.MethodExplicit
		next.Timestamp = now

	case models.EventReset:
		if err := m.store.Remove(ctx); err != nil {
			m.reportPersistence(err, "clear consent store")
		}
		return m.fallbackDefault(), false

	default:
		// Unreachable: ProcessEvent validates the kind before applying.
		return prev, false
	}

	next.Categories[models.CategoryNecessary] = true
	return next, true
}

// loadInitial resolves the bootstrap record. Store failures are non-fatal:
// the chain simply continues to the next source.
func (m *Manager) loadInitial(ctx context.Context) models.Record {
	record, err := m.store.Get(ctx)
	switch {
	case err == nil && record != nil && record.Status.IsValid():
		return record.Normalize()
	case err != nil && !errors.Is(err, store.ErrNotFound):
		m.reportPersistence(err, "load consent record")
	}
	return m.fallbackDefault()
}

// fallbackDefault is the resolution chain below the persisted record:
// configured default → regional policy → conservative pending default.
func (m *Manager) fallbackDefault() models.Record {
	if m.defaultRecord != nil {
		return m.defaultRecord.Clone()
	}
	if m.regionPolicy != nil {
		if record, ok := m.regionPolicy(); ok {
			return record.Normalize()
		}
	}
	return models.DefaultRecord(m.now())
}

// notify invokes the configured change callback first, then subscribers in
// subscription order. Each invocation is isolated: a panicking listener is
// recovered, reported, and the remaining listeners still run.
func (m *Manager) notify(next, prev models.Record) {
	if m.onChange != nil {
		m.invoke(func() { m.onChange(next.Clone(), prev.Clone()) })
	}

	m.subMu.Lock()
	order := make([]int, len(m.subOrder))
	copy(order, m.subOrder)
	listeners := make(map[int]Listener, len(m.subs))
	for id, l := range m.subs {
		listeners[id] = l
	}
	m.subMu.Unlock()

	for _, id := range order {
		listener, ok := listeners[id]
		if !ok {
			continue
		}
		m.invoke(func() { listener(next.Clone()) })
	}
}

func (m *Manager) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.incrementListenerPanic()
			m.report(dErrors.New(dErrors.CodeInternal, fmt.Sprintf("consent listener panic: %v", r)))
		}
	}()
	fn()
}

func (m *Manager) reportPersistence(err error, msg string) {
	m.incrementPersistenceError()
	m.report(dErrors.Wrap(err, dErrors.CodeConsentPersistence, msg))
}

func (m *Manager) report(err error) {
	if m.sink != nil {
		m.sink.Report(err)
		return
	}
	if m.logger != nil {
		m.logger.Error("consent error", "error", err)
	}
}

func (m *Manager) logTransition(ctx context.Context, kind models.EventKind, from, to models.Status) {
	if m.logger == nil {
		return
	}
	m.logger.Log(ctx, slog.LevelInfo, "consent_transition",
		"kind", kind,
		"from", from,
		"to", to,
	)
}

func (m *Manager) incrementTransition(kind models.EventKind, status models.Status) {
	if m.metrics != nil {
		m.metrics.IncrementTransition(string(kind), string(status))
	}
}

func (m *Manager) incrementTrackCheck(category models.Category, allowed bool) {
	if m.metrics != nil {
		m.metrics.IncrementTrackCheck(string(category), allowed)
	}
}

func (m *Manager) incrementPersistenceError() {
	if m.metrics != nil {
		m.metrics.IncrementPersistenceError()
	}
}

func (m *Manager) incrementListenerPanic() {
	if m.metrics != nil {
		m.metrics.IncrementListenerPanic()
	}
}

func (m *Manager) setSubscribers(n int) {
	if m.metrics != nil {
		m.metrics.SetSubscribers(float64(n))
	}
}
