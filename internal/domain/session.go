package domain

import "time"

// RefreshSession is one row of the session ledger. Rows are never deleted by
// the service; rotation and revocation only set RevokedAt and ReplacedByHash.
type RefreshSession struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index:idx_refresh_sessions_user_revoked,priority:1" json:"user_id"`
	TokenHash      string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt      *time.Time `gorm:"index:idx_refresh_sessions_user_revoked,priority:2" json:"revoked_at,omitempty"`
	ReplacedByHash *string    `gorm:"size:128;index" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionRotated SessionState = "rotated"
	SessionRevoked SessionState = "revoked"
	SessionExpired SessionState = "expired"
)

// State derives the lifecycle state at now. Revocation wins over expiry so
// that a rotated session stays distinguishable after it would have expired.
func (s *RefreshSession) State(now time.Time) SessionState {
	switch {
	case s.RevokedAt != nil && s.ReplacedByHash != nil:
		return SessionRotated
	case s.RevokedAt != nil:
		return SessionRevoked
	case !s.ExpiresAt.After(now):
		return SessionExpired
	default:
		return SessionActive
	}
}

func (s *RefreshSession) Usable(now time.Time) bool {
	return s.State(now) == SessionActive
}
