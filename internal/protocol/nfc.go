// Package protocol defines the wire formats exchanged between devices: the
// QR payment request and the NFC offline payment payload. Server codecs and
// the device wallet share these types.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/common"
)

const (
	NFCVersion = "1.0"
	NFCType    = "OFFLINE_PAYMENT"

	// MaxNFCPayloadSize is the largest frame NFC transport carries reliably.
	MaxNFCPayloadSize = 4096
)

type NFCParty struct {
	PhoneNumber string `json:"phoneNumber"`
	PublicKey   string `json:"publicKey"`
	DeviceID    string `json:"deviceId,omitempty"`
}

type NFCTransaction struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Note      string `json:"note,omitempty"`
}

// NFCSecurity carries the chain link and signature. Algorithm tags both the
// sender key and the signature.
type NFCSecurity struct {
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
	Signature    string `json:"signature"`
	Algorithm    string `json:"algorithm"`
}

type NFCPayload struct {
	Version     string         `json:"version"`
	Type        string         `json:"type"`
	Sender      NFCParty       `json:"sender"`
	Recipient   NFCParty       `json:"recipient"`
	Transaction NFCTransaction `json:"transaction"`
	Security    NFCSecurity    `json:"security"`
}

// Marshal serializes p and enforces MaxNFCPayloadSize.
func (p *NFCPayload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if len(b) > MaxNFCPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", common.ErrPayloadTooLarge, len(b), MaxNFCPayloadSize)
	}
	return b, nil
}

// ParseNFC decodes raw without size or semantic checks.
func ParseNFC(raw []byte) (*NFCPayload, error) {
	p := &NFCPayload{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	return p, nil
}

// MissingFields lists required fields that are empty.
func (p *NFCPayload) MissingFields() []string {
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check("sender.phoneNumber", p.Sender.PhoneNumber)
	check("sender.publicKey", p.Sender.PublicKey)
	check("recipient.phoneNumber", p.Recipient.PhoneNumber)
	check("recipient.publicKey", p.Recipient.PublicKey)
	check("transaction.amount", p.Transaction.Amount)
	check("transaction.currency", p.Transaction.Currency)
	check("transaction.timestamp", p.Transaction.Timestamp)
	check("transaction.nonce", p.Transaction.Nonce)
	check("security.hash", p.Security.Hash)
	check("security.previousHash", p.Security.PreviousHash)
	check("security.signature", p.Security.Signature)
	check("security.algorithm", p.Security.Algorithm)
	return missing
}
