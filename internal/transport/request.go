package transport

import (
	"encoding/json"
	"fmt"

	dErrors "pulse/pkg/domain-errors"
)

// Method selects the delivery mechanism for a single request.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodBeacon Method = "BEACON"
	MethodAuto   Method = "AUTO"
)

// Mechanism names the concrete path a payload actually took, for the
// response, logs, and metrics.
const (
	MechanismBeacon = "beacon"
	MechanismHTTP   = "http"
)

// Request describes one logical payload delivery. It is constructed and
// consumed per call, never persisted or reused.
type Request struct {
	Method  Method
	URL     string
	Headers map[string]string
	Body    any

	// MaxBeaconBytes skips the beacon attempt when the serialized payload
	// strictly exceeds it. Zero means no limit.
	MaxBeaconBytes int

	// CacheBust defeats intermediary caching: a time-varying query
	// parameter for GET/beacon deliveries, no-store headers for POST.
	CacheBust bool

	// Compress gzip-encodes POST bodies.
	Compress bool
}

// Response is the uniform result shape regardless of mechanism. A beacon
// delivery has no wire response; it is normalized to a synthetic 204.
type Response struct {
	OK         bool
	StatusCode int
	Status     string
	Mechanism  string
}

// serializeBody turns the request body into wire bytes: nil stays empty,
// strings and byte slices pass through, everything else is JSON-encoded.
func serializeBody(body any) ([]byte, error) {
	switch val := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("serialize request body: %v", err))
		}
		return data, nil
	}
}
