package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversion is a history record of one HTML-to-PNG render. HTMLPreview is
// always plaintext and bounded; HTMLEncrypted carries the full body inside
// the encryption codec's envelope.
type Conversion struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	UserID        int64     `db:"user_id"        json:"user_id"`
	HTMLPreview   string    `db:"html_preview"   json:"html_preview"`
	HTMLEncrypted string    `db:"html_encrypted" json:"-"`
	Width         int       `db:"width"          json:"width"`
	Height        *int      `db:"height"         json:"height,omitempty"`
	DPR           int       `db:"dpr"            json:"dpr"`
	FullPage      bool      `db:"full_page"      json:"full_page"`
	ByteSize      int       `db:"byte_size"      json:"byte_size"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}

// Invitation gates registration when open sign-up is disabled. A code is
// single-use; UsedBy records who consumed it.
type Invitation struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Code      string     `db:"code"       json:"code"`
	CreatedBy int64      `db:"created_by" json:"created_by"`
	UsedBy    *int64     `db:"used_by"    json:"used_by,omitempty"`
	UsedAt    *time.Time `db:"used_at"    json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
