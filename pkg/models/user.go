package models

import (
	"time"
)

// User is an account row. PasswordHash is an argon2id encoded digest and
// never leaves the server.
type User struct {
	ID           int64     `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin"      json:"is_admin"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// Principal returns the request-scoped identity for this user.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}
}
