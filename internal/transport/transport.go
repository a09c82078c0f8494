package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pulse/internal/transport/metrics"
	dErrors "pulse/pkg/domain-errors"
)

const (
	defaultTimeout  = 10 * time.Second
	cacheBustParam  = "_cb"
	jsonContentType = "application/json"
)

type Option func(*Client)

// Client delivers a single logical payload per Send call using the most
// reliable available mechanism: a beacon-capable sender when the request
// allows it and the payload is small enough, a regular HTTP request
// otherwise. The client holds no per-request state and never retries;
// retry policy belongs to the dispatcher above it.
type Client struct {
	httpClient *http.Client
	beacon     BeaconSender
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// New constructs a transport client. By default it has an HTTP client with
// the standard timeout and no beacon sender (AUTO behaves like POST until
// one is installed).
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("pulse/transport")
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client. Passing nil removes
// the HTTP mechanism entirely; a request that cannot use the beacon then
// fails with transport_unavailable.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithBeacon installs a beacon-capable sender.
func WithBeacon(beacon BeaconSender) Option {
	return func(c *Client) { c.beacon = beacon }
}

// WithTimeout bounds each HTTP attempt. Beacon attempts are fire-and-forget
// and manage their own budget.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger instance for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the metrics instance for the client.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = mx }
}

// WithTracer allows injecting a pre-configured OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithClock overrides the time source used for cache-busting parameters.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Send delivers one payload. The returned response is uniform across
// mechanisms: a beacon handoff with no wire response is normalized to a
// synthetic 204. Any failure (mechanism unavailable, network error,
// non-2xx) comes back as a domain error; a non-2xx additionally carries the
// response so callers can inspect the status.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	method := req.Method
	if method == "" {
		method = MethodAuto
	}
	if req.URL == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request URL required")
	}

	payload, err := serializeBody(req.Body)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "transport.send", trace.WithAttributes(
		attribute.String("pulse.transport.method", string(method)),
		attribute.Int("pulse.transport.payload_bytes", len(payload)),
	))
	resp, err := c.deliver(ctx, req, method, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("pulse.transport.mechanism", resp.Mechanism),
			attribute.Int("pulse.transport.status_code", resp.StatusCode),
		)
	}
	span.End()

	c.observeLatency(time.Since(start).Seconds())
	return resp, err
}

// deliver runs the mechanism selection: beacon first when eligible, HTTP
// as the fallback and the general path.
func (c *Client) deliver(ctx context.Context, req *Request, method Method, payload []byte) (*Response, error) {
	beaconEligible := method == MethodBeacon || (method == MethodAuto && c.beacon != nil)
	if beaconEligible && c.beacon != nil {
		if req.MaxBeaconBytes > 0 && len(payload) > req.MaxBeaconBytes {
			// Strictly exceeds the limit: skip the attempt entirely
			c.incrementBeaconSkip()
			c.logBeaconSkip(ctx, len(payload), req.MaxBeaconBytes)
		} else {
			target := req.URL
			if req.CacheBust {
				target = c.cacheBustURL(target)
			}
			if c.beacon.Send(target, payload, jsonContentType) {
				c.recordSend(MechanismBeacon, true, len(payload))
				return &Response{
					OK:         true,
					StatusCode: http.StatusNoContent,
					Status:     "204 No Content",
					Mechanism:  MechanismBeacon,
				}, nil
			}
			// Immediate beacon failure degrades to a tracked HTTP request
		}
	}

	if c.httpClient == nil {
		c.recordSend(MechanismHTTP, false, 0)
		return nil, dErrors.New(dErrors.CodeTransportUnavailable, "no delivery mechanism available")
	}
	return c.sendHTTP(ctx, req, method, payload)
}

func (c *Client) sendHTTP(ctx context.Context, req *Request, method Method, payload []byte) (*Response, error) {
	httpMethod := http.MethodPost
	if method == MethodGet {
		httpMethod = http.MethodGet
	}

	target := req.URL
	if req.CacheBust && httpMethod == http.MethodGet {
		target = c.cacheBustURL(target)
	}

	var body io.Reader
	contentEncoding := ""
	if httpMethod == http.MethodPost && len(payload) > 0 {
		if req.Compress {
			compressed, err := gzipBytes(payload)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compress request body")
			}
			payload = compressed
			contentEncoding = "gzip"
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, httpMethod, target, body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("build request: %v", err))
	}

	// Transport defaults first, then caller headers on top
	if httpMethod == http.MethodPost && len(payload) > 0 {
		httpReq.Header.Set("Content-Type", jsonContentType)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if contentEncoding != "" {
		httpReq.Header.Set("Content-Encoding", contentEncoding)
	}
	// Cache-control headers win over caller headers when busting is on; the
	// GET path already busted via query parameter, never both.
	if req.CacheBust && httpMethod == http.MethodPost {
		httpReq.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		httpReq.Header.Set("Pragma", "no-cache")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordSend(MechanismHTTP, false, 0)
		return nil, dErrors.Wrap(err, dErrors.CodeTransportFailure, fmt.Sprintf("%s %s failed: %v", httpMethod, req.URL, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	resp := &Response{
		OK:         httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Mechanism:  MechanismHTTP,
	}
	c.recordSend(MechanismHTTP, resp.OK, len(payload))
	if !resp.OK {
		return resp, dErrors.New(dErrors.CodeTransportFailure, fmt.Sprintf("endpoint returned %s", httpResp.Status))
	}
	return resp, nil
}

// cacheBustURL appends a time-varying query parameter.
func (c *Client) cacheBustURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	query.Set(cacheBustParam, strconv.FormatInt(c.now().UnixNano(), 10))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) recordSend(mechanism string, ok bool, sentBytes int) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncrementSend(mechanism, ok)
	if ok && sentBytes > 0 {
		c.metrics.AddBytesSent(mechanism, sentBytes)
	}
}

func (c *Client) incrementBeaconSkip() {
	if c.metrics != nil {
		c.metrics.IncrementBeaconSkip()
	}
}

func (c *Client) observeLatency(seconds float64) {
	if c.metrics != nil {
		c.metrics.ObserveSendLatency(seconds)
	}
}

func (c *Client) logBeaconSkip(ctx context.Context, payloadBytes, limit int) {
	if c.logger == nil {
		return
	}
	c.logger.Log(ctx, slog.LevelDebug, "beacon_skipped",
		"payload_bytes", payloadBytes,
		"max_beacon_bytes", limit,
	)
}
