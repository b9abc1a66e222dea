// Package models defines the device-side records kept in the local wallet
// database.
package models

import (
	"time"

	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSynced   Status = "SYNCED"
	StatusConflict Status = "CONFLICT"
	StatusFailed   Status = "FAILED"
)

type Channel string

const (
	ChannelQR    Channel = "QR"
	ChannelNFC   Channel = "NFC"
	ChannelBatch Channel = "BATCH"
)

// Transaction is a payment signed on this device and queued for sync. Seq
// is the local chain order; a transaction's PreviousHash is the Hash of the
// one before it.
type Transaction struct {
	Seq          int64
	Hash         string
	PreviousHash string
	SenderID     string
	RecipientID  string
	Amount       decimal.Decimal
	Currency     string
	Nonce        string
	Algorithm    cryptox.Algorithm
	Signature    string
	Timestamp    time.Time
	Channel      Channel
	Status       Status
	SyncAttempts int
	LastError    string
	RawPayload   []byte
	CreatedAt    time.Time
	SyncedAt     *time.Time
}

// Fields returns the hashed subset of the transaction.
func (t *Transaction) Fields() cryptox.TxFields {
	return cryptox.TxFields{
		Sender:       t.SenderID,
		Recipient:    t.RecipientID,
		Amount:       t.Amount,
		Timestamp:    t.Timestamp,
		Nonce:        t.Nonce,
		PreviousHash: t.PreviousHash,
	}
}

// Open reports whether the transaction still counts against the offline
// spendable balance.
func (t *Transaction) Open() bool {
	return t.Status == StatusPending || t.Status == StatusConflict
}
