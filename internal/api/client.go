package api

import (
	"context"

	"google.golang.org/grpc"
)

// OfflinePayClient is the client side of offpay.v1.OfflinePay. Every call
// is sent with the JSON content subtype.
type OfflinePayClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	OpenAccount(ctx context.Context, in *OpenAccountRequest, opts ...grpc.CallOption) (*OpenAccountResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error)
	GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error)
	RegisterKey(ctx context.Context, in *RegisterKeyRequest, opts ...grpc.CallOption) (*RegisterKeyResponse, error)
	IssueKey(ctx context.Context, in *IssueKeyRequest, opts ...grpc.CallOption) (*IssueKeyResponse, error)
	CreatePaymentRequest(ctx context.Context, in *CreatePaymentRequestRequest, opts ...grpc.CallOption) (*CreatePaymentRequestResponse, error)
	ValidatePaymentRequest(ctx context.Context, in *ValidatePaymentRequestRequest, opts ...grpc.CallOption) (*ValidatePaymentRequestResponse, error)
	ConsumePaymentRequest(ctx context.Context, in *ConsumePaymentRequestRequest, opts ...grpc.CallOption) (*ConsumePaymentRequestResponse, error)
	ListPaymentRequests(ctx context.Context, in *ListPaymentRequestsRequest, opts ...grpc.CallOption) (*ListPaymentRequestsResponse, error)
	BuildOfflinePayment(ctx context.Context, in *BuildOfflinePaymentRequest, opts ...grpc.CallOption) (*BuildOfflinePaymentResponse, error)
	SubmitOfflinePayment(ctx context.Context, in *SubmitOfflinePaymentRequest, opts ...grpc.CallOption) (*SubmitOfflinePaymentResponse, error)
	ReconcileBatch(ctx context.Context, in *ReconcileBatchRequest, opts ...grpc.CallOption) (*ReconcileBatchResponse, error)
	ListConflicts(ctx context.Context, in *ListConflictsRequest, opts ...grpc.CallOption) (*ListConflictsResponse, error)
	ResolveConflict(ctx context.Context, in *ResolveConflictRequest, opts ...grpc.CallOption) (*ResolveConflictResponse, error)
}

type offlinePayClient struct {
	cc grpc.ClientConnInterface
}

func NewOfflinePayClient(cc grpc.ClientConnInterface) OfflinePayClient {
	return &offlinePayClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *offlinePayClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, FullMethodPing, in, opts)
}

func (c *offlinePayClient) OpenAccount(ctx context.Context, in *OpenAccountRequest, opts ...grpc.CallOption) (*OpenAccountResponse, error) {
	return invoke[OpenAccountResponse](ctx, c.cc, FullMethodOpenAccount, in, opts)
}

func (c *offlinePayClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	return invoke[RefreshTokenResponse](ctx, c.cc, FullMethodRefreshToken, in, opts)
}

func (c *offlinePayClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error) {
	return invoke[GetAccountResponse](ctx, c.cc, FullMethodGetAccount, in, opts)
}

func (c *offlinePayClient) RegisterKey(ctx context.Context, in *RegisterKeyRequest, opts ...grpc.CallOption) (*RegisterKeyResponse, error) {
	return invoke[RegisterKeyResponse](ctx, c.cc, FullMethodRegisterKey, in, opts)
}

func (c *offlinePayClient) IssueKey(ctx context.Context, in *IssueKeyRequest, opts ...grpc.CallOption) (*IssueKeyResponse, error) {
	return invoke[IssueKeyResponse](ctx, c.cc, FullMethodIssueKey, in, opts)
}

func (c *offlinePayClient) CreatePaymentRequest(ctx context.Context, in *CreatePaymentRequestRequest, opts ...grpc.CallOption) (*CreatePaymentRequestResponse, error) {
	return invoke[CreatePaymentRequestResponse](ctx, c.cc, FullMethodCreatePaymentRequest, in, opts)
}

func (c *offlinePayClient) ValidatePaymentRequest(ctx context.Context, in *ValidatePaymentRequestRequest, opts ...grpc.CallOption) (*ValidatePaymentRequestResponse, error) {
	return invoke[ValidatePaymentRequestResponse](ctx, c.cc, FullMethodValidatePaymentRequest, in, opts)
}

func (c *offlinePayClient) ConsumePaymentRequest(ctx context.Context, in *ConsumePaymentRequestRequest, opts ...grpc.CallOption) (*ConsumePaymentRequestResponse, error) {
	return invoke[ConsumePaymentRequestResponse](ctx, c.cc, FullMethodConsumePaymentRequest, in, opts)
}

func (c *offlinePayClient) ListPaymentRequests(ctx context.Context, in *ListPaymentRequestsRequest, opts ...grpc.CallOption) (*ListPaymentRequestsResponse, error) {
	return invoke[ListPaymentRequestsResponse](ctx, c.cc, FullMethodListPaymentRequests, in, opts)
}

func (c *offlinePayClient) BuildOfflinePayment(ctx context.Context, in *BuildOfflinePaymentRequest, opts ...grpc.CallOption) (*BuildOfflinePaymentResponse, error) {
	return invoke[BuildOfflinePaymentResponse](ctx, c.cc, FullMethodBuildOfflinePayment, in, opts)
}

func (c *offlinePayClient) SubmitOfflinePayment(ctx context.Context, in *SubmitOfflinePaymentRequest, opts ...grpc.CallOption) (*SubmitOfflinePaymentResponse, error) {
	return invoke[SubmitOfflinePaymentResponse](ctx, c.cc, FullMethodSubmitOfflinePayment, in, opts)
}

func (c *offlinePayClient) ReconcileBatch(ctx context.Context, in *ReconcileBatchRequest, opts ...grpc.CallOption) (*ReconcileBatchResponse, error) {
	return invoke[ReconcileBatchResponse](ctx, c.cc, FullMethodReconcileBatch, in, opts)
}

func (c *offlinePayClient) ListConflicts(ctx context.Context, in *ListConflictsRequest, opts ...grpc.CallOption) (*ListConflictsResponse, error) {
	return invoke[ListConflictsResponse](ctx, c.cc, FullMethodListConflicts, in, opts)
}

func (c *offlinePayClient) ResolveConflict(ctx context.Context, in *ResolveConflictRequest, opts ...grpc.CallOption) (*ResolveConflictResponse, error) {
	return invoke[ResolveConflictResponse](ctx, c.cc, FullMethodResolveConflict, in, opts)
}
