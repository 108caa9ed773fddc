package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/goph-auth/internal/errs"
	"go.uber.org/zap"
)

// HTTPError is a failure surfaced to the client as a JSON error body.
type HTTPError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"error_description,omitempty"`
	// Challenge, when set, is sent as WWW-Authenticate.
	Challenge string `json:"-"`
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Error constructors used by the gateway itself.
func errMissingAuth() *HTTPError {
	return &HTTPError{Status: http.StatusUnauthorized, Code: "invalid_request", Message: "missing or malformed bearer token", Challenge: `Bearer`}
}

func errInvalidToken() *HTTPError {
	return &HTTPError{Status: http.StatusUnauthorized, Code: "invalid_token", Message: "the access token is unknown or expired", Challenge: `Bearer error="invalid_token"`}
}

// FromError maps domain sentinels to HTTP errors; unknown errors become 500.
func FromError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return &HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	case errors.Is(err, errs.ErrUnauthorized):
		return &HTTPError{Status: http.StatusUnauthorized, Code: "unauthorized", Challenge: `Bearer`}
	case errors.Is(err, errs.ErrForbidden):
		return &HTTPError{Status: http.StatusForbidden, Code: "forbidden"}
	case errors.Is(err, errs.ErrBadRequest):
		return &HTTPError{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	case errors.Is(err, errs.ErrAlreadyExists):
		return &HTTPError{Status: http.StatusConflict, Code: "already_exists"}
	case errors.Is(err, errs.ErrVersionConflict):
		return &HTTPError{Status: http.StatusConflict, Code: "conflict", Message: "resource is being modified"}
	case errors.Is(err, errs.ErrPreconditionRequired):
		return &HTTPError{Status: http.StatusPreconditionRequired, Code: "precondition_required", Message: "If-Match header is required"}
	case errors.Is(err, errs.ErrPreconditionFailed):
		return &HTTPError{Status: http.StatusPreconditionFailed, Code: "precondition_failed", Message: "resource has changed"}
	case errors.Is(err, errs.ErrRateLimited):
		return &HTTPError{Status: http.StatusTooManyRequests, Code: "rate_limited"}
	default:
		return &HTTPError{Status: http.StatusInternalServerError, Code: "server_error"}
	}
}

// WriteError serializes err; internal errors are logged and never exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error, log *zap.Logger) {
	he := FromError(err)
	if he.Status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	if he.Challenge != "" {
		w.Header().Set("WWW-Authenticate", he.Challenge)
	}
	WriteJSON(w, he.Status, he)
}

// WriteJSON writes v as the JSON response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
