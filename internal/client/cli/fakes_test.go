package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/shopspring/decimal"
)

const (
	alice = "7d1c2b9e-0a3f-4c55-9d4e-1f2a3b4c5d6e"
	bob   = "0b6f3c1a-8e2d-4a7b-b1c9-5e4d3c2b1a09"
)

// fakeServer implements client.Client. Methods a test does not set up
// panic through the embedded nil interface.
type fakeServer struct {
	client.Client

	balance   decimal.Decimal
	chainHead string

	qr          []byte
	validate    *api.ValidatePaymentRequestResponse
	validateErr error
	consumed    []string
	submit      *api.SubmitOfflinePaymentResponse
	batchFn     func([]models.Transaction) (*api.ReconcileBatchResponse, error)
	conflicts   []api.Conflict
	resolved    []string

	access, refresh string
	registeredKey   []byte
}

func (f *fakeServer) Close() error { return nil }

func (f *fakeServer) SetTokens(access, refresh string) { f.access, f.refresh = access, refresh }

func (f *fakeServer) OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*api.OpenAccountResponse, error) {
	f.balance = opening
	return &api.OpenAccountResponse{UserID: alice, AccessToken: "at", RefreshToken: "rt"}, nil
}

func (f *fakeServer) GetAccount(ctx context.Context) (*api.GetAccountResponse, error) {
	return &api.GetAccountResponse{
		UserID:      alice,
		PhoneNumber: "+2348000000001",
		DisplayName: "Alice",
		Balance:     f.balance,
		ChainHead:   f.chainHead,
	}, nil
}

func (f *fakeServer) RegisterKey(ctx context.Context, algorithm string, publicKey []byte) (*api.Key, error) {
	f.registeredKey = publicKey
	return &api.Key{ID: "key-1", Algorithm: algorithm, KeySize: 256, PublicKey: publicKey, Fingerprint: "fp"}, nil
}

func (f *fakeServer) CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, note string) (*api.CreatePaymentRequestResponse, error) {
	return &api.CreatePaymentRequestResponse{RequestID: "req-1", Payload: f.qr}, nil
}

func (f *fakeServer) ValidatePaymentRequest(ctx context.Context, payload []byte) (*api.ValidatePaymentRequestResponse, error) {
	return f.validate, f.validateErr
}

func (f *fakeServer) ConsumePaymentRequest(ctx context.Context, requestID string) error {
	f.consumed = append(f.consumed, requestID)
	return nil
}

func (f *fakeServer) SubmitOfflinePayment(ctx context.Context, payload []byte) (*api.SubmitOfflinePaymentResponse, error) {
	return f.submit, nil
}

func (f *fakeServer) ReconcileBatch(ctx context.Context, batch []models.Transaction) (*api.ReconcileBatchResponse, error) {
	return f.batchFn(batch)
}

func (f *fakeServer) ListConflicts(ctx context.Context) ([]api.Conflict, error) {
	return f.conflicts, nil
}

func (f *fakeServer) ResolveConflict(ctx context.Context, id, outcome, notes string) (*api.Conflict, error) {
	f.resolved = append(f.resolved, id+":"+outcome)
	return &api.Conflict{ID: id, Status: outcome}, nil
}

// harness runs commands against one wallet directory and one fake server.
type harness struct {
	t      *testing.T
	dir    string
	server *fakeServer
	dialed []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, dir: t.TempDir(), server: &fakeServer{}}

	old := dialServer
	t.Cleanup(func() { dialServer = old })
	dialServer = func(addr string, sink client.TokenSink) (client.Client, error) {
		h.dialed = append(h.dialed, addr)
		return h.server, nil
	}
	return h
}

func (h *harness) config() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = filepath.Join(h.dir, "wallet.db")
	cfg.KeyFile = filepath.Join(h.dir, "wallet.key")
	return cfg
}

// run executes one command line and returns stdout and stderr.
func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	root := newRootCmd(h.config())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}
