package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type OpenAccountRequest struct {
	PhoneNumber    string          `json:"phoneNumber"`
	DisplayName    string          `json:"displayName"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

type OpenAccountResponse struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type GetAccountRequest struct{}

// GetAccountResponse carries what a device needs to chain offline:
// the server balance and the hash of the last synced transaction.
type GetAccountResponse struct {
	UserID      string          `json:"userId"`
	PhoneNumber string          `json:"phoneNumber"`
	DisplayName string          `json:"displayName"`
	Balance     decimal.Decimal `json:"balance"`
	ChainHead   string          `json:"chainHead"`
}

type Key struct {
	ID          string    `json:"id"`
	Algorithm   string    `json:"algorithm"`
	KeySize     int       `json:"keySize"`
	PublicKey   []byte    `json:"publicKey"`
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RegisterKeyRequest registers a device-generated key. PublicKey is PKIX DER.
type RegisterKeyRequest struct {
	Algorithm string `json:"algorithm"`
	PublicKey []byte `json:"publicKey"`
}

type RegisterKeyResponse struct {
	Key Key `json:"key"`
}

type IssueKeyRequest struct {
	Algorithm string `json:"algorithm"`
}

// IssueKeyResponse returns the private half once, as PKCS#8 DER.
type IssueKeyResponse struct {
	Key        Key    `json:"key"`
	PrivateKey []byte `json:"privateKey"`
}

type CreatePaymentRequestRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
	SizeHint int             `json:"sizeHint,omitempty"`
}

// CreatePaymentRequestResponse holds the canonical QR bytes. Image is set
// only when the server has a renderer.
type CreatePaymentRequestResponse struct {
	RequestID string    `json:"requestId"`
	Payload   []byte    `json:"payload"`
	Image     []byte    `json:"image,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ValidatePaymentRequestRequest struct {
	Payload []byte `json:"payload"`
}

type ValidatePaymentRequestResponse struct {
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	RecipientID string          `json:"recipientId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Nonce       string          `json:"nonce,omitempty"`
}

type ConsumePaymentRequestRequest struct {
	RequestID string `json:"requestId"`
}

type ConsumePaymentRequestResponse struct{}

type ListPaymentRequestsRequest struct{}

type PaymentRequest struct {
	RequestID string          `json:"requestId"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

type ListPaymentRequestsResponse struct {
	Requests []PaymentRequest `json:"requests"`
}

type BuildOfflinePaymentRequest struct {
	RecipientID string          `json:"recipientId"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
}

type BuildOfflinePaymentResponse struct {
	Payload []byte `json:"payload"`
}

type SubmitOfflinePaymentRequest struct {
	Payload []byte `json:"payload"`
}

// PayloadChecks mirrors the per-check outcome of NFC validation.
type PayloadChecks struct {
	Size      bool `json:"size"`
	Structure bool `json:"structure"`
	Version   bool `json:"version"`
	Type      bool `json:"type"`
	Fields    bool `json:"fields"`
	Timestamp bool `json:"timestamp"`
	Nonce     bool `json:"nonce"`
	Hash      bool `json:"hash"`
	Signature bool `json:"signature"`
	Amount    bool `json:"amount"`
	Currency  bool `json:"currency"`
}

type SubmitOfflinePaymentResponse struct {
	Valid       bool          `json:"valid"`
	Checks      PayloadChecks `json:"checks"`
	Errors      []string      `json:"errors,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Transaction *Transaction  `json:"transaction,omitempty"`
}

// Transaction is an offline transaction as exchanged between device and
// server. Timestamp must survive the round trip at millisecond precision.
type Transaction struct {
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previousHash"`
	SenderID     string          `json:"senderId"`
	RecipientID  string          `json:"recipientId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Nonce        string          `json:"nonce"`
	Algorithm    string          `json:"algorithm"`
	Signature    string          `json:"signature"`
	Timestamp    time.Time       `json:"timestamp"`
	Channel      string          `json:"channel,omitempty"`
	Status       string          `json:"status,omitempty"`
	RawPayload   []byte          `json:"rawPayload,omitempty"`
}

type ReconcileBatchRequest struct {
	Transactions []Transaction `json:"transactions"`
}

type Verdict struct {
	Hash      string   `json:"hash"`
	Position  int      `json:"position"`
	Valid     bool     `json:"valid"`
	Safe      bool     `json:"safe"`
	Applied   bool     `json:"applied"`
	Status    string   `json:"status"`
	Conflicts []string `json:"conflicts,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

type Conflict struct {
	ID              string     `json:"id"`
	TransactionHash string     `json:"transactionHash"`
	Type            string     `json:"type"`
	ExpectedValue   string     `json:"expectedValue,omitempty"`
	ActualValue     string     `json:"actualValue,omitempty"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	DetectedAt      time.Time  `json:"detectedAt"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type ReconcileBatchResponse struct {
	BatchID          string          `json:"batchId"`
	Verdicts         []Verdict       `json:"verdicts"`
	ChainValid       bool            `json:"chainValid"`
	ChainErrors      int             `json:"chainErrors"`
	DoubleSpend      bool            `json:"doubleSpend"`
	FlaggedHashes    []string        `json:"flaggedHashes,omitempty"`
	LastKnownBalance decimal.Decimal `json:"lastKnownBalance"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`
	SafeToSync       bool            `json:"safeToSync"`
	Applied          int             `json:"applied"`
	Conflicts        []Conflict      `json:"conflicts,omitempty"`
}

type ListConflictsRequest struct{}

type ListConflictsResponse struct {
	Conflicts []Conflict `json:"conflicts"`
}

type ResolveConflictRequest struct {
	ConflictID string `json:"conflictId"`
	Outcome    string `json:"outcome"`
	Notes      string `json:"notes,omitempty"`
}

type ResolveConflictResponse struct {
	Conflict Conflict `json:"conflict"`
}
