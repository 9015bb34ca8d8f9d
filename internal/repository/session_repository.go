package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session not active")
	ErrDuplicate        = errors.New("duplicate key")
)

// maxChainWalk bounds RevokeChain so a corrupted replaced_by_hash cycle cannot
// loop forever.
const maxChainWalk = 10000

type SessionRepository interface {
	Create(ctx context.Context, s *domain.RefreshSession) error
	FindByHash(ctx context.Context, hash string) (*domain.RefreshSession, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.RefreshSession, error)
	ListByUserID(ctx context.Context, userID uint, page PageRequest) (PageResult[domain.RefreshSession], error)
	Revoke(ctx context.Context, sessionID uint, at time.Time) (bool, error)
	MarkReplaced(ctx context.Context, sessionID uint, newHash string, at time.Time) error
	RotateSession(ctx context.Context, oldSessionID uint, next *domain.RefreshSession, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error)
	RevokeChain(ctx context.Context, fromHash string, at time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.RefreshSession) error {
	if err := createSession(r.db.WithContext(ctx), s); err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", outcomeOf(err))
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByHash(ctx context.Context, hash string) (*domain.RefreshSession, error) {
	var s domain.RefreshSession
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.RefreshSession, error) {
	var sessions []domain.RefreshSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

func (r *GormSessionRepository) ListByUserID(ctx context.Context, userID uint, page PageRequest) (PageResult[domain.RefreshSession], error) {
	req := page.normalized()
	base := r.db.WithContext(ctx).Model(&domain.RefreshSession{}).Where("user_id = ?", userID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_user_id", "error")
		return PageResult[domain.RefreshSession]{}, err
	}
	var items []domain.RefreshSession
	if err := base.Order("created_at DESC").Order("id DESC").Offset(req.offset()).Limit(req.PageSize).Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_user_id", "error")
		return PageResult[domain.RefreshSession]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_by_user_id", "success")
	return newPageResult(req, items, total), nil
}

// Revoke sets revoked_at on a session that is still unrevoked. It reports
// whether a row changed.
func (r *GormSessionRepository) Revoke(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshSession{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", at.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) MarkReplaced(ctx context.Context, sessionID uint, newHash string, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return markReplaced(tx, sessionID, newHash, at)
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "mark_replaced", outcomeOf(err))
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "mark_replaced", "success")
	return nil
}

// RotateSession marks the old session replaced and inserts its successor in
// one transaction. Only one caller can win for a given old session: the
// conditional update affects zero rows for every later caller, which then
// gets ErrSessionNotActive and rolls back without inserting.
func (r *GormSessionRepository) RotateSession(ctx context.Context, oldSessionID uint, next *domain.RefreshSession, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := markReplaced(tx, oldSessionID, next.TokenHash, at); err != nil {
			return err
		}
		return createSession(tx, next)
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "rotate_session", outcomeOf(err))
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "rotate_session", "success")
	return nil
}

func (r *GormSessionRepository) RevokeAllForUser(ctx context.Context, userID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.RefreshSession{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Update("revoked_at", at.UTC())
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_all_for_user", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_all_for_user", "success")
	return affected, nil
}

// RevokeChain follows replaced_by_hash starting at fromHash and revokes every
// session on the way that is still unrevoked.
func (r *GormSessionRepository) RevokeChain(ctx context.Context, fromHash string, at time.Time) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hash := fromHash
		for i := 0; hash != "" && i < maxChainWalk; i++ {
			var s domain.RefreshSession
			if err := tx.Where("token_hash = ?", hash).First(&s).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			if s.RevokedAt == nil {
				res := tx.Model(&domain.RefreshSession{}).
					Where("id = ? AND revoked_at IS NULL", s.ID).
					Update("revoked_at", at.UTC())
				if res.Error != nil {
					return res.Error
				}
				revoked += res.RowsAffected
			}
			if s.ReplacedByHash == nil {
				return nil
			}
			hash = *s.ReplacedByHash
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_chain", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_chain", "success")
	return revoked, nil
}

func markReplaced(tx *gorm.DB, sessionID uint, newHash string, at time.Time) error {
	at = at.UTC()
	res := tx.Model(&domain.RefreshSession{}).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, at).
		Updates(map[string]any{"revoked_at": at, "replaced_by_hash": newHash})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotActive
	}
	return nil
}

func createSession(tx *gorm.DB, s *domain.RefreshSession) error {
	s.ExpiresAt = s.ExpiresAt.UTC()
	if !s.CreatedAt.IsZero() {
		s.CreatedAt = s.CreatedAt.UTC()
	}
	if err := tx.Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "conflict"
	default:
		return "error"
	}
}
