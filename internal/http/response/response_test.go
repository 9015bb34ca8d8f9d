package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/device-auth-service/internal/security"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

func TestFromErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "conflict", err: service.ErrConflict, wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "credentials", err: service.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{name: "refresh", err: service.ErrInvalidRefreshToken, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_REFRESH_TOKEN"},
		{name: "expired", err: fmt.Errorf("wrap: %w", service.ErrTokenExpired), wantStatus: http.StatusUnauthorized, wantCode: "TOKEN_EXPIRED"},
		{name: "invalid token", err: service.ErrInvalidToken, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "password too long", err: fmt.Errorf("hash password: %w", security.ErrPasswordTooLong), wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "storage", err: fmt.Errorf("%w: create: %w", service.ErrStorage, errors.New("db down")), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set("X-Request-Id", "req-1")
			FromError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			var env envelope
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Success || env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("unexpected envelope: %+v", env)
			}
			if env.Meta.RequestID != "req-1" {
				t.Fatalf("request id not propagated: %q", env.Meta.RequestID)
			}
		})
	}
}
