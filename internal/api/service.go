package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "offpay.v1.OfflinePay"

const (
	FullMethodPing                   = "/" + ServiceName + "/Ping"
	FullMethodOpenAccount            = "/" + ServiceName + "/OpenAccount"
	FullMethodRefreshToken           = "/" + ServiceName + "/RefreshToken"
	FullMethodGetAccount             = "/" + ServiceName + "/GetAccount"
	FullMethodRegisterKey            = "/" + ServiceName + "/RegisterKey"
	FullMethodIssueKey               = "/" + ServiceName + "/IssueKey"
	FullMethodCreatePaymentRequest   = "/" + ServiceName + "/CreatePaymentRequest"
	FullMethodValidatePaymentRequest = "/" + ServiceName + "/ValidatePaymentRequest"
	FullMethodConsumePaymentRequest  = "/" + ServiceName + "/ConsumePaymentRequest"
	FullMethodListPaymentRequests    = "/" + ServiceName + "/ListPaymentRequests"
	FullMethodBuildOfflinePayment    = "/" + ServiceName + "/BuildOfflinePayment"
	FullMethodSubmitOfflinePayment   = "/" + ServiceName + "/SubmitOfflinePayment"
	FullMethodReconcileBatch         = "/" + ServiceName + "/ReconcileBatch"
	FullMethodListConflicts          = "/" + ServiceName + "/ListConflicts"
	FullMethodResolveConflict        = "/" + ServiceName + "/ResolveConflict"
)

// OfflinePayServer is implemented by the ledger server.
type OfflinePayServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	OpenAccount(context.Context, *OpenAccountRequest) (*OpenAccountResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*GetAccountResponse, error)
	RegisterKey(context.Context, *RegisterKeyRequest) (*RegisterKeyResponse, error)
	IssueKey(context.Context, *IssueKeyRequest) (*IssueKeyResponse, error)
	CreatePaymentRequest(context.Context, *CreatePaymentRequestRequest) (*CreatePaymentRequestResponse, error)
	ValidatePaymentRequest(context.Context, *ValidatePaymentRequestRequest) (*ValidatePaymentRequestResponse, error)
	ConsumePaymentRequest(context.Context, *ConsumePaymentRequestRequest) (*ConsumePaymentRequestResponse, error)
	ListPaymentRequests(context.Context, *ListPaymentRequestsRequest) (*ListPaymentRequestsResponse, error)
	BuildOfflinePayment(context.Context, *BuildOfflinePaymentRequest) (*BuildOfflinePaymentResponse, error)
	SubmitOfflinePayment(context.Context, *SubmitOfflinePaymentRequest) (*SubmitOfflinePaymentResponse, error)
	ReconcileBatch(context.Context, *ReconcileBatchRequest) (*ReconcileBatchResponse, error)
	ListConflicts(context.Context, *ListConflictsRequest) (*ListConflictsResponse, error)
	ResolveConflict(context.Context, *ResolveConflictRequest) (*ResolveConflictResponse, error)
}

// UnimplementedOfflinePayServer answers every method with codes.Unimplemented.
// Embed it to stay source compatible when methods are added.
type UnimplementedOfflinePayServer struct{}

func (UnimplementedOfflinePayServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented("Ping")
}
func (UnimplementedOfflinePayServer) OpenAccount(context.Context, *OpenAccountRequest) (*OpenAccountResponse, error) {
	return nil, unimplemented("OpenAccount")
}
func (UnimplementedOfflinePayServer) RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error) {
	return nil, unimplemented("RefreshToken")
}
func (UnimplementedOfflinePayServer) GetAccount(context.Context, *GetAccountRequest) (*GetAccountResponse, error) {
	return nil, unimplemented("GetAccount")
}
func (UnimplementedOfflinePayServer) RegisterKey(context.Context, *RegisterKeyRequest) (*RegisterKeyResponse, error) {
	return nil, unimplemented("RegisterKey")
}
func (UnimplementedOfflinePayServer) IssueKey(context.Context, *IssueKeyRequest) (*IssueKeyResponse, error) {
	return nil, unimplemented("IssueKey")
}
func (UnimplementedOfflinePayServer) CreatePaymentRequest(context.Context, *CreatePaymentRequestRequest) (*CreatePaymentRequestResponse, error) {
	return nil, unimplemented("CreatePaymentRequest")
}
func (UnimplementedOfflinePayServer) ValidatePaymentRequest(context.Context, *ValidatePaymentRequestRequest) (*ValidatePaymentRequestResponse, error) {
	return nil, unimplemented("ValidatePaymentRequest")
}
func (UnimplementedOfflinePayServer) ConsumePaymentRequest(context.Context, *ConsumePaymentRequestRequest) (*ConsumePaymentRequestResponse, error) {
	return nil, unimplemented("ConsumePaymentRequest")
}
func (UnimplementedOfflinePayServer) ListPaymentRequests(context.Context, *ListPaymentRequestsRequest) (*ListPaymentRequestsResponse, error) {
	return nil, unimplemented("ListPaymentRequests")
}
func (UnimplementedOfflinePayServer) BuildOfflinePayment(context.Context, *BuildOfflinePaymentRequest) (*BuildOfflinePaymentResponse, error) {
	return nil, unimplemented("BuildOfflinePayment")
}
func (UnimplementedOfflinePayServer) SubmitOfflinePayment(context.Context, *SubmitOfflinePaymentRequest) (*SubmitOfflinePaymentResponse, error) {
	return nil, unimplemented("SubmitOfflinePayment")
}
func (UnimplementedOfflinePayServer) ReconcileBatch(context.Context, *ReconcileBatchRequest) (*ReconcileBatchResponse, error) {
	return nil, unimplemented("ReconcileBatch")
}
func (UnimplementedOfflinePayServer) ListConflicts(context.Context, *ListConflictsRequest) (*ListConflictsResponse, error) {
	return nil, unimplemented("ListConflicts")
}
func (UnimplementedOfflinePayServer) ResolveConflict(context.Context, *ResolveConflictRequest) (*ResolveConflictResponse, error) {
	return nil, unimplemented("ResolveConflict")
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// ServiceDesc describes offpay.v1.OfflinePay for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OfflinePayServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Ping", OfflinePayServer.Ping),
		method("OpenAccount", OfflinePayServer.OpenAccount),
		method("RefreshToken", OfflinePayServer.RefreshToken),
		method("GetAccount", OfflinePayServer.GetAccount),
		method("RegisterKey", OfflinePayServer.RegisterKey),
		method("IssueKey", OfflinePayServer.IssueKey),
		method("CreatePaymentRequest", OfflinePayServer.CreatePaymentRequest),
		method("ValidatePaymentRequest", OfflinePayServer.ValidatePaymentRequest),
		method("ConsumePaymentRequest", OfflinePayServer.ConsumePaymentRequest),
		method("ListPaymentRequests", OfflinePayServer.ListPaymentRequests),
		method("BuildOfflinePayment", OfflinePayServer.BuildOfflinePayment),
		method("SubmitOfflinePayment", OfflinePayServer.SubmitOfflinePayment),
		method("ReconcileBatch", OfflinePayServer.ReconcileBatch),
		method("ListConflicts", OfflinePayServer.ListConflicts),
		method("ResolveConflict", OfflinePayServer.ResolveConflict),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "offpay/v1/offpay.json",
}

func RegisterOfflinePayServer(s grpc.ServiceRegistrar, srv OfflinePayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func method[Req, Resp any](name string, call func(OfflinePayServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OfflinePayServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}
