// Package models contains shared data models used across the htmlshot codebase.
package models

// Principal is the authenticated identity attached to a request after
// credential verification. It is reconstructed per request and never
// persisted as an object; the users table is the source of truth.
type Principal struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}
