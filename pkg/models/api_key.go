package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates non-interactive callers. The raw key is shown once
// at creation; only the sha256 digest is stored. KeyPrefix is a truncated
// fragment for display and is never sufficient to authenticate.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	UserID     int64      `db:"user_id"      json:"user_id"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Name       *string    `db:"name"         json:"name,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	IsActive   bool       `db:"is_active"    json:"is_active"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
}
