package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/protocol"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/services"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type AccountService interface {
	OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*models.User, *services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Account(ctx context.Context, userID string) (*models.User, error)
	ChainHead(ctx context.Context, userID string) (string, error)
}

type KeyService interface {
	Issue(ctx context.Context, ownerID string, alg cryptox.Algorithm) (*services.IssuedKey, error)
	Register(ctx context.Context, ownerID string, alg cryptox.Algorithm, publicKey []byte) (*models.KeyPair, error)
}

type PaymentRequestService interface {
	CreateRequest(ctx context.Context, recipientID string, amount decimal.Decimal, note string, sizeHint int) (*services.CreatedRequest, error)
	ValidateRequest(ctx context.Context, raw []byte) (*services.RequestValidation, error)
	Consume(ctx context.Context, requestID string) error
	ListActiveRequests(ctx context.Context, recipientID string) ([]*models.PaymentRequest, error)
}

type OfflinePaymentService interface {
	Build(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, note string) ([]byte, error)
	Submit(ctx context.Context, raw []byte) (*services.NFCValidation, *models.OfflineTransaction, error)
}

type ReconcileService interface {
	Reconcile(ctx context.Context, batch []*models.OfflineTransaction) (*services.ReconcileReport, error)
}

type ConflictService interface {
	Get(ctx context.Context, conflictID string) (*models.SyncConflict, error)
	ListOpen(ctx context.Context, senderID string) ([]*models.SyncConflict, error)
	Resolve(ctx context.Context, conflictID string, outcome models.ResolutionStatus, notes string) (*models.SyncConflict, error)
}

// caller returns the authenticated account; the interceptor guarantees it
// for every non-public method.
func caller(ctx context.Context) (string, error) {
	id, ok := userIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {

	return &api.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) OpenAccount(ctx context.Context, req *api.OpenAccountRequest) (*api.OpenAccountResponse, error) {

	s.logger.Info(ctx, "Open account request")

	user, tokens, err := s.svc.Accounts.OpenAccount(ctx, req.PhoneNumber, req.DisplayName, req.OpeningBalance)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Account opened", "user_id", user.ID)
	return &api.OpenAccountResponse{
		UserID:       user.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.RefreshTokenResponse, error) {

	tokens, err := s.svc.Accounts.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) GetAccount(ctx context.Context, req *api.GetAccountRequest) (*api.GetAccountResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.svc.Accounts.Account(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	head, err := s.svc.Accounts.ChainHead(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.GetAccountResponse{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		DisplayName: user.DisplayName,
		Balance:     user.Balance,
		ChainHead:   head,
	}, nil

}

func (s *GRPCServer) RegisterKey(ctx context.Context, req *api.RegisterKeyRequest) (*api.RegisterKeyResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	alg, err := cryptox.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	kp, err := s.svc.Keys.Register(ctx, userID, alg, req.PublicKey)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Key registered", "user_id", userID, "key_id", kp.ID, "algorithm", alg)
	return &api.RegisterKeyResponse{Key: keyToAPI(kp)}, nil

}

func (s *GRPCServer) IssueKey(ctx context.Context, req *api.IssueKeyRequest) (*api.IssueKeyResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	alg, err := cryptox.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	issued, err := s.svc.Keys.Issue(ctx, userID, alg)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	der, err := cryptox.MarshalPrivateKey(issued.PrivateKey)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Key issued", "user_id", userID, "key_id", issued.KeyPair.ID, "algorithm", alg)
	return &api.IssueKeyResponse{Key: keyToAPI(issued.KeyPair), PrivateKey: der}, nil

}

func (s *GRPCServer) CreatePaymentRequest(ctx context.Context, req *api.CreatePaymentRequestRequest) (*api.CreatePaymentRequestResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	created, err := s.svc.Requests.CreateRequest(ctx, userID, req.Amount, req.Note, req.SizeHint)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.CreatePaymentRequestResponse{
		RequestID: created.Request.ID,
		Payload:   created.Bytes,
		Image:     created.Image,
		ExpiresAt: created.Request.ExpiresAt,
	}, nil

}

func (s *GRPCServer) ValidatePaymentRequest(ctx context.Context, req *api.ValidatePaymentRequestRequest) (*api.ValidatePaymentRequestResponse, error) {

	if _, err := caller(ctx); err != nil {
		return nil, err
	}

	v, err := s.svc.Requests.ValidateRequest(ctx, req.Payload)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &api.ValidatePaymentRequestResponse{Valid: v.Valid, Reason: string(v.Reason)}
	if p := v.Payload; p != nil {
		resp.RequestID = p.PaymentRequestID
		resp.RecipientID = p.RecipientID
		resp.Nonce = p.Nonce
		if amount, err := decimal.NewFromString(p.Amount); err == nil {
			resp.Amount = amount
		}
	}
	return resp, nil

}

func (s *GRPCServer) ConsumePaymentRequest(ctx context.Context, req *api.ConsumePaymentRequestRequest) (*api.ConsumePaymentRequestResponse, error) {

	if _, err := caller(ctx); err != nil {
		return nil, err
	}

	if err := s.svc.Requests.Consume(ctx, req.RequestID); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.ConsumePaymentRequestResponse{}, nil

}

func (s *GRPCServer) ListPaymentRequests(ctx context.Context, req *api.ListPaymentRequestsRequest) (*api.ListPaymentRequestsResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	reqs, err := s.svc.Requests.ListActiveRequests(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &api.ListPaymentRequestsResponse{Requests: make([]api.PaymentRequest, 0, len(reqs))}
	for _, r := range reqs {
		resp.Requests = append(resp.Requests, paymentRequestToAPI(r))
	}
	return resp, nil

}

func (s *GRPCServer) BuildOfflinePayment(ctx context.Context, req *api.BuildOfflinePaymentRequest) (*api.BuildOfflinePaymentResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := s.svc.Payments.Build(ctx, userID, req.RecipientID, req.Amount, req.Note)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.BuildOfflinePaymentResponse{Payload: payload}, nil

}

// SubmitOfflinePayment is called by the recipient device. A payload that
// decodes must name the caller as recipient; anything else is handed to
// validation, which reports the structural failure.
func (s *GRPCServer) SubmitOfflinePayment(ctx context.Context, req *api.SubmitOfflinePaymentRequest) (*api.SubmitOfflinePaymentResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.Payload) <= protocol.MaxNFCPayloadSize {
		if p, err := protocol.ParseNFC(req.Payload); err == nil && p.Recipient.PhoneNumber != "" {
			account, err := s.svc.Accounts.Account(ctx, userID)
			if err != nil {
				return nil, s.toStatus(ctx, err)
			}
			if account.PhoneNumber != p.Recipient.PhoneNumber {
				return nil, status.Error(codes.PermissionDenied, "payload is addressed to another account")
			}
		}
	}

	v, tx, err := s.svc.Payments.Submit(ctx, req.Payload)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &api.SubmitOfflinePaymentResponse{
		Valid:    v.Valid,
		Checks:   checksToAPI(v),
		Errors:   v.Errors,
		Warnings: v.Warnings,
	}
	if tx != nil {
		resp.Transaction = transactionToAPI(tx)
	}
	return resp, nil

}

// ReconcileBatch accepts only the caller's own transactions.
func (s *GRPCServer) ReconcileBatch(ctx context.Context, req *api.ReconcileBatchRequest) (*api.ReconcileBatchResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.Transactions) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty batch")
	}

	batch := make([]*models.OfflineTransaction, 0, len(req.Transactions))
	for i := range req.Transactions {
		t := &req.Transactions[i]
		if t.SenderID != userID {
			return nil, status.Error(codes.PermissionDenied, "batch contains another account's transactions")
		}
		mt, err := transactionFromAPI(t)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		batch = append(batch, mt)
	}

	start := time.Now()
	report, err := s.svc.Reconciler.Reconcile(ctx, batch)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Batch reconciled",
		"user_id", userID,
		"batch_id", report.BatchID,
		"size", len(batch),
		"applied", report.Applied,
		"safe", report.SafeToSync,
		"took", time.Since(start))
	return reportToAPI(report), nil

}

func (s *GRPCServer) ListConflicts(ctx context.Context, req *api.ListConflictsRequest) (*api.ListConflictsResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	cs, err := s.svc.Conflicts.ListOpen(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &api.ListConflictsResponse{Conflicts: conflictsToAPI(cs)}, nil

}

func (s *GRPCServer) ResolveConflict(ctx context.Context, req *api.ResolveConflictRequest) (*api.ResolveConflictResponse, error) {

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.svc.Conflicts.Get(ctx, req.ConflictID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if c.SenderID != userID {
		return nil, status.Error(codes.PermissionDenied, "conflict belongs to another account")
	}

	resolved, err := s.svc.Conflicts.Resolve(ctx, req.ConflictID, models.ResolutionStatus(req.Outcome), req.Notes)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Conflict resolved", "conflict_id", resolved.ID, "status", resolved.Status)
	return &api.ResolveConflictResponse{Conflict: conflictToAPI(resolved)}, nil

}
