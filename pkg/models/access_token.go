package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken is a bearer credential issued at sign-in. The raw token is shown
// once; only its bcrypt hash and a lookup prefix are stored.
type AccessToken struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	UserID      uuid.UUID  `db:"user_id"      json:"user_id"`
	Name        string     `db:"name"         json:"name"`
	TokenHash   string     `db:"token_hash"   json:"-"`
	TokenPrefix string     `db:"token_prefix" json:"token_prefix"`
	ExpiresAt   time.Time  `db:"expires_at"   json:"expires_at"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `db:"revoked_at"   json:"-"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}

// Usable reports whether the token can still authenticate at now.
func (t *AccessToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
