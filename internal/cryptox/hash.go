package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HashVersion identifies the canonical serialization below. Any change to
// field order or formatting must bump it.
const HashVersion = 1

// GenesisHash is the previous hash of a sender's first transaction.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AmountScale is the number of fractional digits in the canonical amount.
const AmountScale = 2

// TimestampLayout is the canonical timestamp pattern (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const fieldSeparator = "|"

// TxFields are the hashed fields of an offline transaction.
type TxFields struct {
	Sender       string
	Recipient    string
	Amount       decimal.Decimal
	Timestamp    time.Time
	Nonce        string
	PreviousHash string
}

// FormatAmount renders an amount with exactly AmountScale fractional digits.
// Callers must reject amounts with a finer scale first (see ValidAmountScale).
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// ValidAmountScale reports whether d is representable without rounding.
func ValidAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp truncates t to the precision that survives hashing.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// CanonicalPayload is the exact byte string that is hashed and signed:
// sender|recipient|amount|timestamp|nonce|previousHash.
// An empty previous hash is replaced by GenesisHash.
func CanonicalPayload(f TxFields) []byte {
	prev := f.PreviousHash
	if prev == "" {
		prev = GenesisHash
	}
	return []byte(strings.Join([]string{
		f.Sender,
		f.Recipient,
		FormatAmount(f.Amount),
		FormatTimestamp(f.Timestamp),
		f.Nonce,
		prev,
	}, fieldSeparator))
}

// HashTransaction returns the hex SHA-256 of the canonical payload.
func HashTransaction(f TxFields) string {
	sum := sha256.Sum256(CanonicalPayload(f))
	return hex.EncodeToString(sum[:])
}

// IsHash reports whether s looks like a 64-character lowercase hex digest.
func IsHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
