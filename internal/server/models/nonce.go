package models

import "time"

// UsedNonce is a consumed nonce kept until ExpiresAt.
type UsedNonce struct {
	Nonce     string
	OwnerID   string
	TxHash    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
