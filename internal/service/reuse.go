package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/config"
	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/observability"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/security"
)

// ReuseHandler is called when a refresh secret that was already rotated is
// presented again. The caller still gets ErrInvalidRefreshToken whatever the
// handler does.
type ReuseHandler interface {
	OnReuse(ctx context.Context, session *domain.RefreshSession, at time.Time) error
}

func NewReuseHandler(policy string, sessionRepo repository.SessionRepository, logger *slog.Logger) ReuseHandler {
	if policy == config.ReusePolicyRevokeChain {
		return NewChainRevoker(sessionRepo, logger)
	}
	return NewLogReuseHandler(logger)
}

// LogReuseHandler records the event and leaves the chain alone.
type LogReuseHandler struct {
	logger *slog.Logger
}

func NewLogReuseHandler(logger *slog.Logger) *LogReuseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReuseHandler{logger: logger}
}

func (h *LogReuseHandler) OnReuse(ctx context.Context, session *domain.RefreshSession, _ time.Time) error {
	h.logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", session.UserID,
		"session_id", session.ID,
		"hash_prefix", security.HashPrefix(session.TokenHash),
	)
	observability.RecordRefreshReuseDetected(ctx, config.ReusePolicyLog)
	observability.Audit(ctx, "reuse_detected", "user_id", session.UserID, "session_id", session.ID)
	return nil
}

// ChainRevoker revokes every session downstream of the reused one.
type ChainRevoker struct {
	sessionRepo repository.SessionRepository
	logger      *slog.Logger
}

func NewChainRevoker(sessionRepo repository.SessionRepository, logger *slog.Logger) *ChainRevoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainRevoker{sessionRepo: sessionRepo, logger: logger}
}

func (h *ChainRevoker) OnReuse(ctx context.Context, session *domain.RefreshSession, at time.Time) error {
	observability.RecordRefreshReuseDetected(ctx, config.ReusePolicyRevokeChain)
	n, err := h.sessionRepo.RevokeChain(ctx, session.TokenHash, at)
	if err != nil {
		return storageErr("revoke chain", err)
	}
	h.logger.WarnContext(ctx, "refresh token reuse detected, chain revoked",
		"user_id", session.UserID,
		"session_id", session.ID,
		"revoked", n,
	)
	observability.Audit(ctx, "chain_revoked", "user_id", session.UserID, "session_id", session.ID, "revoked", n)
	return nil
}
