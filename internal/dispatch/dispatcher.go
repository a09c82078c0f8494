package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"pulse/internal/consent/manager"
	"pulse/internal/consent/models"
	"pulse/internal/platform/errsink"
	"pulse/internal/queue"
	"pulse/internal/transport"
	dErrors "pulse/pkg/domain-errors"
)

// Transport is the delivery boundary consumed by the dispatcher.
type Transport interface {
	Send(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// FailureFunc receives a batch whose retry budget is spent, together with
// the terminal error. The events are NOT requeued; this callback is the
// last place they exist.
type FailureFunc func(events []queue.Event, err error)

type Option func(*Dispatcher)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

// Dispatcher wires the admission pipeline together: it consults the consent
// manager before enqueueing, drains the queue into the transport once the
// backend is ready, and owns the retry policy the transport deliberately
// does not have. Flushes are coalesced: concurrent callers share one
// in-flight delivery.
type Dispatcher struct {
	manager   *manager.Manager
	queue     *queue.Queue
	transport Transport
	endpoint  string

	logger    *slog.Logger
	sink      errsink.Sink
	onFailure FailureFunc

	maxAttempts    int
	backoff        time.Duration
	maxBeaconBytes int
	cacheBust      bool
	compress       bool

	ready       atomic.Bool
	group       singleflight.Group
	unsubscribe func()
	sleep       func(ctx context.Context, d time.Duration) error
}

// New constructs a dispatcher. A missing endpoint is a fatal configuration
// error: nothing downstream can repair it at runtime.
func New(mgr *manager.Manager, q *queue.Queue, tr Transport, endpoint string, opts ...Option) (*Dispatcher, error) {
	if endpoint == "" {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "delivery endpoint URL required")
	}
	if mgr == nil || q == nil || tr == nil {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "manager, queue, and transport are all required")
	}
	d := &Dispatcher{
		manager:     mgr,
		queue:       q,
		transport:   tr,
		endpoint:    endpoint,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}

	// A consent transition that disallows a category must also purge what
	// is already buffered for it: admission decided in the past does not
	// outlive a withdrawal.
	d.unsubscribe = mgr.Subscribe(func(record models.Record) {
		removed := q.Remove(func(ev queue.Event) bool {
			return !record.Allows(ev.Category)
		})
		if len(removed) > 0 {
			d.logInfo("purged_disallowed_events", "count", len(removed), "status", string(record.Status))
		}
	})
	return d, nil
}

// WithLogger sets the logger instance for the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithSink routes terminal delivery failures to the given sink.
func WithSink(sink errsink.Sink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// WithFailureFunc sets the callback for batches whose retry budget is spent.
func WithFailureFunc(fn FailureFunc) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// WithRetryPolicy bounds delivery attempts per batch and sets the base for
// exponential backoff between them.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// WithMaxBeaconBytes forwards the beacon size guard to each batch request.
func WithMaxBeaconBytes(n int) Option {
	return func(d *Dispatcher) { d.maxBeaconBytes = n }
}

// WithCacheBust enables cache-busting on batch requests.
func WithCacheBust(enabled bool) Option {
	return func(d *Dispatcher) { d.cacheBust = enabled }
}

// WithCompression enables gzip encoding of batch requests.
func WithCompression(enabled bool) Option {
	return func(d *Dispatcher) { d.compress = enabled }
}

// withSleep overrides the backoff sleeper for tests.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// Track gates a custom event on the analytics category and enqueues it.
// The returned id is uuid.Nil when the event was not admitted (consent
// denied or queue paused).
func (d *Dispatcher) Track(name string, props map[string]any, pageContext any) uuid.UUID {
	return d.TrackAs(models.CategoryAnalytics, name, props, pageContext)
}

// TrackAs gates a custom event on an explicit category.
func (d *Dispatcher) TrackAs(category models.Category, name string, props map[string]any, pageContext any) uuid.UUID {
	if !d.manager.CanTrack(category) {
		return uuid.Nil
	}
	return d.queue.Enqueue(queue.TypeTrack, []any{name, props}, category, pageContext)
}

// Pageview gates a page-view event on the analytics category and enqueues it.
func (d *Dispatcher) Pageview(pageContext any) uuid.UUID {
	if !d.manager.CanTrack(models.CategoryAnalytics) {
		return uuid.Nil
	}
	return d.queue.Enqueue(queue.TypePageview, nil, models.CategoryAnalytics, pageContext)
}

// SetReady marks the analytics backend as initialized and flushes the
// buffered backlog.
func (d *Dispatcher) SetReady(ctx context.Context) error {
	d.ready.Store(true)
	return d.Flush(ctx)
}

// Ready reports whether the backend has been marked initialized.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Flush drains the queue and delivers the batch. Concurrent calls coalesce
// onto the single in-flight flush and share its result. A batch that
// exhausts its retry budget is reported through the failure callback and
// the sink, and is not requeued.
func (d *Dispatcher) Flush(ctx context.Context) error {
	_, err, _ := d.group.Do("flush", func() (any, error) {
		return nil, d.flushOnce(ctx)
	})
	return err
}

// Run flushes on the given interval until the context is cancelled, then
// performs one final flush so a shutdown does not strand the buffer.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = d.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			if d.ready.Load() && !d.queue.IsEmpty() {
				_ = d.Flush(ctx)
			}
		}
	}
}

// Close detaches the dispatcher from consent notifications.
func (d *Dispatcher) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

func (d *Dispatcher) flushOnce(ctx context.Context) error {
	events := d.queue.Flush()
	if len(events) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			for i := range events {
				events[i].Retries++
			}
			if err := d.sleep(ctx, d.backoffFor(attempt)); err != nil {
				lastErr = dErrors.Wrap(err, dErrors.CodeTransportFailure, "flush cancelled during backoff")
				break
			}
		}

		resp, err := d.transport.Send(ctx, &transport.Request{
			Method:         transport.MethodAuto,
			URL:            d.endpoint,
			Body:           batchPayload(events),
			MaxBeaconBytes: d.maxBeaconBytes,
			CacheBust:      d.cacheBust,
			Compress:       d.compress,
		})
		if err == nil && resp.OK {
			d.logInfo("batch_delivered",
				"events", len(events),
				"mechanism", resp.Mechanism,
				"attempt", attempt,
			)
			return nil
		}
		lastErr = err
	}

	terminal := dErrors.Wrap(lastErr, dErrors.CodeDeliveryExhausted,
		fmt.Sprintf("batch of %d events undeliverable after %d attempts", len(events), d.maxAttempts))
	if d.sink != nil {
		d.sink.Report(terminal)
	}
	if d.onFailure != nil {
		d.onFailure(events, terminal)
	}
	return terminal
}

// backoffFor doubles the base delay per completed attempt: base, 2*base,
// 4*base, ...
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	delay := d.backoff
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (d *Dispatcher) logInfo(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

// batchPayload is the vendor-neutral wire shape; per-vendor field mapping
// belongs to the provider integration above this library.
func batchPayload(events []queue.Event) map[string]any {
	return map[string]any{
		"events": events,
		"sentAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
