package models

import (
	"time"

	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/shopspring/decimal"
)

// PaymentRequest is a recipient-created QR request as held in the ephemeral
// store. It carries a snapshot of the recipient key taken at creation.
type PaymentRequest struct {
	ID                 string            `json:"paymentRequestId"`
	RecipientID        string            `json:"recipientId"`
	RecipientPhone     string            `json:"recipientPhoneNumber"`
	RecipientName      string            `json:"recipientName"`
	RecipientPublicKey string            `json:"recipientPublicKey"`
	RecipientAlgorithm cryptox.Algorithm `json:"recipientAlgorithm"`
	Amount             decimal.Decimal   `json:"amount"`
	Note               string            `json:"note,omitempty"`
	Nonce              string            `json:"nonce"`
	CreatedAt          time.Time         `json:"timestamp"`
	ExpiresAt          time.Time         `json:"expiresAt"`
}
