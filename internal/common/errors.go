// Package common defines shared constants and sentinel errors used across
// client and server layers of offpay. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Session errors.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrAccountExists       = errors.New("account already exists")

	// Key management errors.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrKeyNotFound          = errors.New("key not found")
	ErrNoKeyRegistered      = errors.New("no key registered")

	// Cryptographic provider or key/signature format failure.
	ErrCryptoFault = errors.New("crypto fault")

	// Payload / transaction errors.
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrNonceReused     = errors.New("nonce reused")

	// Conflict lifecycle errors.
	ErrConflictFinal     = errors.New("conflict already in final state")
	ErrInvalidResolution = errors.New("invalid resolution")
)
