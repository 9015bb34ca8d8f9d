package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/observability"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/security"
)

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber *string
}

// AuthService is the entry point used by the transport for every
// credential and session operation.
type AuthService struct {
	userRepo repository.UserRepository
	hasher   *security.PasswordHasher
	jwtMgr   *security.JWTManager
	tokens   *TokenService
	logger   *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(userRepo repository.UserRepository, hasher *security.PasswordHasher, jwtMgr *security.JWTManager, tokens *TokenService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		jwtMgr:   jwtMgr,
		tokens:   tokens,
		logger:   logger.With("component", "auth_service"),
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	ctx, span := observability.StartSpan(ctx, "auth.register")
	defer span.End()

	pair, userID, err := s.register(ctx, in)
	observability.RecordAuthRegister(ctx, metricStatus(err))
	if err != nil {
		return nil, err
	}
	observability.Audit(ctx, "register", "user_id", userID, "session_id", pair.SessionID)
	return pair, nil
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*TokenPair, uint, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	taken, err := s.userRepo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, 0, storageErr("check username", err)
	}
	if !taken {
		taken, err = s.userRepo.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return nil, 0, storageErr("check email", err)
		}
	}
	if taken {
		return nil, 0, ErrConflict
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, 0, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNumber:  in.PhoneNumber,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, 0, ErrConflict
		}
		return nil, 0, storageErr("create user", err)
	}
	pair, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, 0, err
	}
	return pair, user.ID, nil
}

// Login accepts a username or an email. Unknown identifiers and wrong
// passwords are indistinguishable to the caller, including in timing.
func (s *AuthService) Login(ctx context.Context, login, password string) (*TokenPair, error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	defer span.End()

	pair, err := s.login(ctx, strings.TrimSpace(login), password)
	observability.RecordAuthLogin(ctx, metricStatus(err))
	if err != nil {
		return nil, err
	}
	observability.Audit(ctx, "login", "user_id", pair.UserID, "session_id", pair.SessionID)
	return pair, nil
}

func (s *AuthService) login(ctx context.Context, login, password string) (*TokenPair, error) {
	user, err := s.userRepo.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Verify(password, s.timingHash())
			s.logger.InfoContext(ctx, "login rejected", "reason", "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, storageErr("find user", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.InfoContext(ctx, "login rejected", "reason", "bad_password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return s.tokens.Issue(ctx, user.ID)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := observability.StartSpan(ctx, "auth.refresh")
	defer span.End()

	pair, err := s.tokens.Redeem(ctx, refreshToken)
	observability.RecordAuthRefresh(ctx, metricStatus(err))
	if err != nil {
		return nil, err
	}
	observability.Audit(ctx, "refresh", "user_id", pair.UserID, "session_id", pair.SessionID)
	return pair, nil
}

// Logout never fails towards the caller. Storage errors are logged and
// counted.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	ctx, span := observability.StartSpan(ctx, "auth.logout")
	defer span.End()

	revoked, err := s.tokens.RevokeOne(ctx, refreshToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "logout revoke failed", "error", err)
		observability.RecordAuthLogout(ctx, "single", "error")
		return
	}
	observability.RecordAuthLogout(ctx, "single", "success")
	observability.Audit(ctx, "logout", "revoked", revoked)
}

func (s *AuthService) LogoutAll(ctx context.Context, userID uint) (int64, error) {
	ctx, span := observability.StartSpan(ctx, "auth.logout_all")
	defer span.End()

	n, err := s.tokens.RevokeAll(ctx, userID)
	observability.RecordAuthLogout(ctx, "all", metricStatus(err))
	if err != nil {
		return 0, err
	}
	observability.Audit(ctx, "logout_all", "user_id", userID, "revoked", n)
	return n, nil
}

// Authenticate verifies an access token without touching storage.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (uint, error) {
	userID, err := s.jwtMgr.VerifyAccessToken(accessToken)
	observability.RecordAccessTokenValidation(ctx, metricStatus(err), "bearer")
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// CurrentUser loads the profile for an authenticated caller. A token whose
// subject no longer exists is treated as invalid.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, storageErr("find user", err)
	}
	return user, nil
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equalizer-password")
		if err != nil {
			s.logger.Error("timing hash generation failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
