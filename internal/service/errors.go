package service

import (
	"errors"
	"fmt"

	"github.com/sandeepkv93/device-auth-service/internal/security"
)

var (
	ErrConflict            = errors.New("username or email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrStorage             = errors.New("storage error")

	ErrInvalidToken = security.ErrInvalidToken
	ErrTokenExpired = security.ErrTokenExpired
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func metricStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidRefreshToken):
		return "invalid"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}
