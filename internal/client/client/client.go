package client

import (
	"context"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/shopspring/decimal"
)

// Client is what the wallet needs from the server. Every call except Ping
// and OpenAccount requires tokens set with SetTokens.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	SetTokens(access, refresh string)
	OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*api.OpenAccountResponse, error)
	GetAccount(ctx context.Context) (*api.GetAccountResponse, error)
	RegisterKey(ctx context.Context, algorithm string, publicKey []byte) (*api.Key, error)
	CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, note string) (*api.CreatePaymentRequestResponse, error)
	ValidatePaymentRequest(ctx context.Context, payload []byte) (*api.ValidatePaymentRequestResponse, error)
	ConsumePaymentRequest(ctx context.Context, requestID string) error
	SubmitOfflinePayment(ctx context.Context, payload []byte) (*api.SubmitOfflinePaymentResponse, error)
	ReconcileBatch(ctx context.Context, batch []models.Transaction) (*api.ReconcileBatchResponse, error)
	ListConflicts(ctx context.Context) ([]api.Conflict, error)
	ResolveConflict(ctx context.Context, id, outcome, notes string) (*api.Conflict, error)
}

// TransactionToAPI converts an outbox row to its wire form.
func TransactionToAPI(t models.Transaction) api.Transaction {
	return api.Transaction{
		Hash:         t.Hash,
		PreviousHash: t.PreviousHash,
		SenderID:     t.SenderID,
		RecipientID:  t.RecipientID,
		Amount:       t.Amount,
		Currency:     t.Currency,
		Nonce:        t.Nonce,
		Algorithm:    string(t.Algorithm),
		Signature:    t.Signature,
		Timestamp:    t.Timestamp,
		Channel:      string(t.Channel),
		RawPayload:   t.RawPayload,
	}
}
