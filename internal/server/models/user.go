// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a ledger account holder. PhoneNumber is the identifier carried in
// NFC payloads and QR requests; ID is the identifier hashed into transactions.
type User struct {
	ID          string
	PhoneNumber string
	DisplayName string
	Balance     decimal.Decimal
	CreatedAt   time.Time
}
