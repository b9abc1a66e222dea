package models

import "time"

// RefreshToken is a server-side session. Only the SHA-256 of the token
// string is stored.
type RefreshToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}
