package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const callTimeout = 15 * time.Second

// TokenSink receives tokens obtained by a transparent refresh so that they
// survive the process.
type TokenSink func(access, refresh string)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.OfflinePayClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onRefresh    TokenSink
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

// accessTokenInterceptor attaches the access token and, when the server
// reports it expired, refreshes once and retries the call.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, refresh := s.tokens()
	if access != "" {
		ctx = withAccessToken(ctx, access)
	}

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if refresh == "" {
		return err
	}

	resp, rerr := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refresh})
	if rerr != nil {
		return rerr
	}

	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	sink := s.onRefresh
	s.mu.Unlock()
	if sink != nil {
		sink(resp.AccessToken, resp.RefreshToken)
	}

	ctx = withAccessToken(ctx, resp.AccessToken)
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewOfflinePayClient(endpointURL string, onRefresh TokenSink) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, onRefresh: onRefresh}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor))
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewOfflinePayClient(conn)
	return nil
}

func (s *GRPCClient) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*api.OpenAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.OpenAccount(ctx, &api.OpenAccountRequest{
		PhoneNumber:    phone,
		DisplayName:    displayName,
		OpeningBalance: opening,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.SetTokens(resp.AccessToken, resp.RefreshToken)
	return resp, nil
}

func (s *GRPCClient) GetAccount(ctx context.Context) (*api.GetAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.GetAccount(ctx, &api.GetAccountRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) RegisterKey(ctx context.Context, algorithm string, publicKey []byte) (*api.Key, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.RegisterKey(ctx, &api.RegisterKeyRequest{Algorithm: algorithm, PublicKey: publicKey})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Key, nil
}

func (s *GRPCClient) CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, note string) (*api.CreatePaymentRequestResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.CreatePaymentRequest(ctx, &api.CreatePaymentRequestRequest{Amount: amount, Note: note})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ValidatePaymentRequest(ctx context.Context, payload []byte) (*api.ValidatePaymentRequestResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.ValidatePaymentRequest(ctx, &api.ValidatePaymentRequestRequest{Payload: payload})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ConsumePaymentRequest(ctx context.Context, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := s.client.ConsumePaymentRequest(ctx, &api.ConsumePaymentRequestRequest{RequestID: requestID}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) SubmitOfflinePayment(ctx context.Context, payload []byte) (*api.SubmitOfflinePaymentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.SubmitOfflinePayment(ctx, &api.SubmitOfflinePaymentRequest{Payload: payload})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ReconcileBatch(ctx context.Context, batch []models.Transaction) (*api.ReconcileBatchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := &api.ReconcileBatchRequest{Transactions: make([]api.Transaction, 0, len(batch))}
	for _, t := range batch {
		req.Transactions = append(req.Transactions, TransactionToAPI(t))
	}

	resp, err := s.client.ReconcileBatch(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ListConflicts(ctx context.Context) ([]api.Conflict, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.ListConflicts(ctx, &api.ListConflictsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Conflicts, nil
}

func (s *GRPCClient) ResolveConflict(ctx context.Context, id, outcome, notes string) (*api.Conflict, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := s.client.ResolveConflict(ctx, &api.ResolveConflictRequest{ConflictID: id, Outcome: outcome, Notes: notes})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Conflict, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorNotFound)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
