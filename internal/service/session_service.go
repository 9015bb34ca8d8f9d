package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
)

type SessionView struct {
	ID        uint                `json:"id"`
	State     domain.SessionState `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
	RevokedAt *time.Time          `json:"revoked_at,omitempty"`
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{sessionRepo: sessionRepo, now: now}
}

func (s *SessionService) ListActive(ctx context.Context, userID uint) ([]SessionView, error) {
	now := s.now()
	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, userID, now)
	if err != nil {
		return nil, storageErr("list active sessions", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, toSessionView(&sessions[i], now))
	}
	return views, nil
}

// ListHistory pages through every session a user ever held, newest first.
func (s *SessionService) ListHistory(ctx context.Context, userID uint, page repository.PageRequest) (repository.PageResult[SessionView], error) {
	now := s.now()
	res, err := s.sessionRepo.ListByUserID(ctx, userID, page)
	if err != nil {
		return repository.PageResult[SessionView]{}, storageErr("list sessions", err)
	}
	return repository.MapPage(res, func(s *domain.RefreshSession) SessionView {
		return toSessionView(s, now)
	}), nil
}

func toSessionView(s *domain.RefreshSession, now time.Time) SessionView {
	return SessionView{
		ID:        s.ID,
		State:     s.State(now),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
	}
}
