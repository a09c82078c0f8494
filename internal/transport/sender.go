package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// BeaconSender is the capability for small fire-and-forget deliveries that
// must not wait on a response (the page-unload path). Send returns false
// when the sender cannot accept the payload right now; the transport then
// degrades to a regular HTTP request.
type BeaconSender interface {
	Send(url string, body []byte, contentType string) bool
}

// HTTPBeacon is the default beacon implementation: it hands the payload to
// a background POST and reports acceptance immediately. A bounded in-flight
// budget mirrors the user agent's beacon quota; when the budget is spent,
// Send reports immediate failure instead of queueing unboundedly.
type HTTPBeacon struct {
	client   *http.Client
	inflight chan struct{}
}

const (
	defaultBeaconTimeout  = 5 * time.Second
	defaultBeaconInflight = 16
)

// NewHTTPBeacon constructs the default beacon sender.
func NewHTTPBeacon(client *http.Client) *HTTPBeacon {
	if client == nil {
		client = &http.Client{Timeout: defaultBeaconTimeout}
	}
	return &HTTPBeacon{
		client:   client,
		inflight: make(chan struct{}, defaultBeaconInflight),
	}
}

func (b *HTTPBeacon) Send(url string, body []byte, contentType string) bool {
	select {
	case b.inflight <- struct{}{}:
	default:
		// Budget spent: report immediate failure so the caller can fall
		// back to a tracked HTTP request.
		return false
	}

	go func() {
		defer func() { <-b.inflight }()
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return true
}
