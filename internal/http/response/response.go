package response

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/haulstack/console-gateway/internal/upstream"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// UpstreamError translates the auth-service failure taxonomy into the local
// wire shape. Field errors ride along so forms can render them inline.
func UpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := upstream.IsValidation(err); ok {
		Error(w, r, v.Status, "VALIDATION_FAILED", v.Message, map[string]any{"fields": v.Fields})
		return
	}
	if msg, ok := upstream.IsAuthRejected(err); ok {
		Error(w, r, http.StatusUnauthorized, "AUTH_REJECTED", msg, nil)
		return
	}
	if upstream.IsTransport(err) {
		Error(w, r, http.StatusBadGateway, "AUTH_SERVICE_UNREACHABLE", "the sign-in service could not be reached", nil)
		return
	}
	Error(w, r, http.StatusBadGateway, "AUTH_SERVICE_ERROR", "the sign-in service failed", nil)
}

func write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
