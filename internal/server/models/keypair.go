package models

import (
	"time"

	"github.com/dmitrijs2005/offpay/internal/cryptox"
)

// DefaultKeyValidity is the lifetime of a freshly issued or registered key.
const DefaultKeyValidity = 2 * 365 * 24 * time.Hour

// KeyPair is a registered signing key. Only the public half is persisted in
// production; SealedPrivateKey is set in demo mode only.
type KeyPair struct {
	ID               string
	OwnerID          string
	Algorithm        cryptox.Algorithm
	KeySize          int
	PublicKey        []byte
	SealedPrivateKey []byte
	Active           bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
}

// Usable reports whether the key may sign or verify at now.
func (k *KeyPair) Usable(now time.Time) bool {
	return k != nil && k.Active && now.Before(k.ExpiresAt)
}
