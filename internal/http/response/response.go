package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/device-auth-service/internal/security"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    meta        `json:"meta"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// FromError writes the transport form of a service error. Anything that is
// not a known auth failure becomes a 500 without internal detail.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, security.ErrPasswordTooLong):
		Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "password too long", nil)
	case errors.Is(err, service.ErrConflict):
		Error(w, r, http.StatusConflict, "CONFLICT", "username or email already exists", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
	case errors.Is(err, service.ErrInvalidRefreshToken):
		Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token", nil)
	case errors.Is(err, service.ErrTokenExpired):
		Error(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired", nil)
	case errors.Is(err, service.ErrInvalidToken):
		Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
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
