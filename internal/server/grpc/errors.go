package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/offpay/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC status codes. Internal failures
// are logged and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrUnsupportedAlgorithm),
		errors.Is(err, common.ErrInvalidPayload),
		errors.Is(err, common.ErrInvalidResolution),
		errors.Is(err, common.ErrPayloadTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrKeyNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrNoKeyRegistered),
		errors.Is(err, common.ErrConflictFinal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrAccountExists),
		errors.Is(err, common.ErrNonceReused):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
