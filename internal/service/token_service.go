package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/observability"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/security"
)

// TokenPair is what register, login and refresh hand back to the caller. The
// refresh secret is only ever present here; the ledger keeps its hash.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	UserID       uint
	SessionID    uint
}

type TokenServiceConfig struct {
	Pepper           string
	RefreshTTL       time.Duration
	NegativeCacheTTL time.Duration
}

// TokenService runs the refresh-token rotation protocol against the session
// ledger.
type TokenService struct {
	jwtMgr      *security.JWTManager
	secrets     *security.RefreshTokenGenerator
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	reuse       ReuseHandler
	negCache    NegativeLookupCacheStore
	cfg         TokenServiceConfig
	now         func() time.Time
	logger      *slog.Logger
}

func NewTokenService(
	jwtMgr *security.JWTManager,
	secrets *security.RefreshTokenGenerator,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	reuse ReuseHandler,
	negCache NegativeLookupCacheStore,
	cfg TokenServiceConfig,
	now func() time.Time,
	logger *slog.Logger,
) *TokenService {
	if secrets == nil {
		secrets = security.NewRefreshTokenGenerator(nil, security.MinRefreshTokenBytes)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reuse == nil {
		reuse = NewLogReuseHandler(logger)
	}
	if negCache == nil {
		negCache = NewNoopNegativeLookupCacheStore()
	}
	return &TokenService{
		jwtMgr:      jwtMgr,
		secrets:     secrets,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		reuse:       reuse,
		negCache:    negCache,
		cfg:         cfg,
		now:         now,
		logger:      logger.With("component", "token_service"),
	}
}

// Issue opens a new rotation chain for userID.
func (s *TokenService) Issue(ctx context.Context, userID uint) (*TokenPair, error) {
	ctx, span := observability.StartSpan(ctx, "token.issue")
	defer span.End()

	pair, session, err := s.mint(userID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, storageErr("create session", err)
	}
	pair.SessionID = session.ID
	return pair, nil
}

// Redeem exchanges a refresh secret for a new pair. Every rejection returns
// ErrInvalidRefreshToken; the concrete reason only reaches the log.
func (s *TokenService) Redeem(ctx context.Context, presented string) (*TokenPair, error) {
	ctx, span := observability.StartSpan(ctx, "token.redeem")
	defer span.End()

	if presented == "" {
		return nil, s.reject(ctx, "empty", "")
	}
	hash := security.HashRefreshToken(presented, s.cfg.Pepper)
	if s.knownMissing(ctx, hash) {
		return nil, s.reject(ctx, "not_found", hash)
	}

	session, err := s.sessionRepo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.rememberMissing(ctx, hash)
			return nil, s.reject(ctx, "not_found", hash)
		}
		return nil, storageErr("find session", err)
	}

	now := s.now()
	switch state := session.State(now); state {
	case domain.SessionActive:
	case domain.SessionRotated:
		if err := s.reuse.OnReuse(ctx, session, now); err != nil {
			s.logger.ErrorContext(ctx, "reuse handler failed", "error", err, "session_id", session.ID)
		}
		return nil, s.reject(ctx, string(state), hash)
	default:
		return nil, s.reject(ctx, string(state), hash)
	}

	if s.userRepo != nil {
		if _, err := s.userRepo.FindByID(ctx, session.UserID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, s.reject(ctx, "unknown_user", hash)
			}
			return nil, storageErr("find user", err)
		}
	}

	pair, next, err := s.mint(session.UserID, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.RotateSession(ctx, session.ID, next, now); err != nil {
		if errors.Is(err, repository.ErrSessionNotActive) {
			return nil, s.reject(ctx, "lost_race", hash)
		}
		return nil, storageErr("rotate session", err)
	}
	pair.SessionID = next.ID
	s.logger.DebugContext(ctx, "refresh token rotated",
		"user_id", session.UserID,
		"previous_session_id", session.ID,
		"session_id", next.ID,
	)
	return pair, nil
}

// RevokeOne revokes the session behind presented if it is still active.
// Unknown, expired and already revoked secrets are a no-op.
func (s *TokenService) RevokeOne(ctx context.Context, presented string) (bool, error) {
	if presented == "" {
		return false, nil
	}
	hash := security.HashRefreshToken(presented, s.cfg.Pepper)
	session, err := s.sessionRepo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return false, nil
		}
		return false, storageErr("find session", err)
	}
	now := s.now()
	if !session.Usable(now) {
		return false, nil
	}
	changed, err := s.sessionRepo.Revoke(ctx, session.ID, now)
	if err != nil {
		return false, storageErr("revoke session", err)
	}
	return changed, nil
}

func (s *TokenService) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	n, err := s.sessionRepo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, storageErr("revoke all sessions", err)
	}
	return n, nil
}

// mint signs the access token and draws the next refresh secret before any
// ledger write, so a signing or entropy failure leaves the ledger untouched.
func (s *TokenService) mint(userID uint, now time.Time) (*TokenPair, *domain.RefreshSession, error) {
	access, err := s.jwtMgr.SignAccessToken(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("sign access token: %w", err)
	}
	secret, err := s.secrets.NewSecret()
	if err != nil {
		return nil, nil, err
	}
	session := &domain.RefreshSession{
		UserID:    userID,
		TokenHash: security.HashRefreshToken(secret, s.cfg.Pepper),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: secret,
		ExpiresIn:    s.jwtMgr.AccessTTL(),
		UserID:       userID,
	}
	return pair, session, nil
}

func (s *TokenService) reject(ctx context.Context, reason, hash string) error {
	s.logger.InfoContext(ctx, "refresh rejected", "reason", reason, "hash_prefix", security.HashPrefix(hash))
	return ErrInvalidRefreshToken
}

func (s *TokenService) knownMissing(ctx context.Context, hash string) bool {
	hit, err := s.negCache.Get(ctx, refreshNotFoundNamespace, hash)
	if err != nil {
		s.logger.WarnContext(ctx, "negative cache read failed", "error", err)
		return false
	}
	return hit
}

func (s *TokenService) rememberMissing(ctx context.Context, hash string) {
	if err := s.negCache.Set(ctx, refreshNotFoundNamespace, hash, s.cfg.NegativeCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "negative cache write failed", "error", err)
	}
}
