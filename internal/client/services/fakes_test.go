package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/migrations"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const (
	alice = "7d1c2b9e-0a3f-4c55-9d4e-1f2a3b4c5d6e"
	bob   = "0b6f3c1a-8e2d-4a7b-b1c9-5e4d3c2b1a09"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

// fakeClient implements client.Client for service tests.
type fakeClient struct {
	mu sync.Mutex

	openResp    *api.OpenAccountResponse
	openErr     error
	account     *api.GetAccountResponse
	accountErr  error
	registerErr error
	batchFn     func([]models.Transaction) (*api.ReconcileBatchResponse, error)
	pingErr     error

	access, refresh string
	registered      []byte
	batches         [][]models.Transaction
	accountCalls    int
}

func (f *fakeClient) Close() error                   { return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeClient) SetTokens(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access, f.refresh = access, refresh
}

func (f *fakeClient) OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*api.OpenAccountResponse, error) {
	return f.openResp, f.openErr
}

func (f *fakeClient) GetAccount(ctx context.Context) (*api.GetAccountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	return f.account, f.accountErr
}

func (f *fakeClient) RegisterKey(ctx context.Context, algorithm string, publicKey []byte) (*api.Key, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = publicKey
	return &api.Key{ID: "key-1", Algorithm: algorithm, PublicKey: publicKey}, nil
}

func (f *fakeClient) CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, note string) (*api.CreatePaymentRequestResponse, error) {
	return nil, nil
}

func (f *fakeClient) ValidatePaymentRequest(ctx context.Context, payload []byte) (*api.ValidatePaymentRequestResponse, error) {
	return nil, nil
}

func (f *fakeClient) ConsumePaymentRequest(ctx context.Context, requestID string) error { return nil }

func (f *fakeClient) SubmitOfflinePayment(ctx context.Context, payload []byte) (*api.SubmitOfflinePaymentResponse, error) {
	return nil, nil
}

func (f *fakeClient) ReconcileBatch(ctx context.Context, batch []models.Transaction) (*api.ReconcileBatchResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	fn := f.batchFn
	f.mu.Unlock()
	return fn(batch)
}

func (f *fakeClient) ListConflicts(ctx context.Context) ([]api.Conflict, error) { return nil, nil }

func (f *fakeClient) ResolveConflict(ctx context.Context, id, outcome, notes string) (*api.Conflict, error) {
	return nil, nil
}
