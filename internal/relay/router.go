package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "pulse/pkg/domain-errors"
)

// NewRouter wires all relay endpoints with middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Post("/v1/events", h.handleEvent)
	r.Post("/v1/consent", h.handleConsentEvent)
	r.Get("/v1/consent", h.handleConsentState)
	r.Post("/v1/flush", h.handleFlush)
	r.Get("/v1/queue", h.handleQueueState)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{"error": string(domainErr.Code)}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		writeJSON(w, statusFor(domainErr.Code), response)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidConfiguration:
		return http.StatusBadRequest
	case dErrors.CodeConsentDenied:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeTransportFailure, dErrors.CodeTransportUnavailable, dErrors.CodeDeliveryExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
