package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/offpay/internal/common"
)

// QRPayload is the payment request rendered into a QR code. Signature is
// common.UnsignedPlaceholder until the recipient device signs UnsignedBytes.
type QRPayload struct {
	RecipientID          string `json:"recipientId"`
	RecipientPhoneNumber string `json:"recipientPhoneNumber"`
	RecipientName        string `json:"recipientName"`
	Amount               string `json:"amount"`
	Note                 string `json:"note,omitempty"`
	Timestamp            string `json:"timestamp"`
	ExpiresAt            string `json:"expiresAt"`
	Nonce                string `json:"nonce"`
	PaymentRequestID     string `json:"paymentRequestId"`
	Signature            string `json:"signature"`
}

// UnsignedBytes is the canonical form covered by the request signature:
// every field except the signature, in a fixed order.
func (q *QRPayload) UnsignedBytes() []byte {
	return []byte(strings.Join([]string{
		q.PaymentRequestID,
		q.RecipientID,
		q.RecipientPhoneNumber,
		q.RecipientName,
		q.Amount,
		q.Note,
		q.Timestamp,
		q.ExpiresAt,
		q.Nonce,
	}, "|"))
}

func (q *QRPayload) Signed() bool {
	return q.Signature != "" && q.Signature != common.UnsignedPlaceholder
}

func (q *QRPayload) Marshal() ([]byte, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	return b, nil
}

func ParseQR(raw []byte) (*QRPayload, error) {
	q := &QRPayload{}
	if err := json.Unmarshal(raw, q); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if q.PaymentRequestID == "" || q.RecipientID == "" || q.ExpiresAt == "" || q.Nonce == "" {
		return nil, fmt.Errorf("%w: missing request fields", common.ErrInvalidPayload)
	}
	return q, nil
}
