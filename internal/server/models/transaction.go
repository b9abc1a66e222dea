package models

import (
	"time"

	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/shopspring/decimal"
)

type SyncStatus string

const (
	StatusPending  SyncStatus = "PENDING"
	StatusSynced   SyncStatus = "SYNCED"
	StatusFailed   SyncStatus = "FAILED"
	StatusConflict SyncStatus = "CONFLICT"
)

// Channel records how a transaction reached the server.
type Channel string

const (
	ChannelQR    Channel = "QR"
	ChannelNFC   Channel = "NFC"
	ChannelBatch Channel = "BATCH"
)

// OfflineTransaction is an append-only ledger row. Only Status,
// SyncAttempts and SyncedAt change after insertion.
type OfflineTransaction struct {
	ID              string
	Hash            string
	PreviousHash    string
	SenderID        string
	RecipientID     string
	Amount          decimal.Decimal
	Currency        string
	Nonce           string
	Algorithm       cryptox.Algorithm
	Signature       string
	ClientTimestamp time.Time
	Channel         Channel
	Status          SyncStatus
	SyncAttempts    int
	RawPayload      []byte
	CreatedAt       time.Time
	SyncedAt        *time.Time
}

// Fields returns the hashed subset of the transaction.
func (t *OfflineTransaction) Fields() cryptox.TxFields {
	return cryptox.TxFields{
		Sender:       t.SenderID,
		Recipient:    t.RecipientID,
		Amount:       t.Amount,
		Timestamp:    t.ClientTimestamp,
		Nonce:        t.Nonce,
		PreviousHash: t.PreviousHash,
	}
}
