package service

import (
	"context"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*TokenPair, error)
	Login(ctx context.Context, login, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
	LogoutAll(ctx context.Context, userID uint) (int64, error)
	Authenticate(ctx context.Context, accessToken string) (uint, error)
	CurrentUser(ctx context.Context, userID uint) (*domain.User, error)
}

type SessionServiceInterface interface {
	ListActive(ctx context.Context, userID uint) ([]SessionView, error)
	ListHistory(ctx context.Context, userID uint, page repository.PageRequest) (repository.PageResult[SessionView], error)
}

var (
	_ AuthServiceInterface    = (*AuthService)(nil)
	_ SessionServiceInterface = (*SessionService)(nil)
)
