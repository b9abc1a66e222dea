package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"google.golang.org/grpc"
)

// Services bundles the domain services behind the gRPC surface.
type Services struct {
	Accounts   AccountService
	Keys       KeyService
	Requests   PaymentRequestService
	Payments   OfflinePaymentService
	Reconciler ReconcileService
	Conflicts  ConflictService
}

type GRPCServer struct {
	api.UnimplementedOfflinePayServer
	address   string
	svc       Services
	logger    logging.Logger
	jwtSecret []byte
	limiter   *callerLimiter
}

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string, rps float64, burst int) *GRPCServer {
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		svc:       svc,
		jwtSecret: []byte(secretKey),
		limiter:   newCallerLimiter(rps, burst),
	}
}

// newServer builds the grpc.Server with the interceptor chain and the
// service registered.
func (s *GRPCServer) newServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.accessTokenInterceptor, s.rateLimitInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)
	api.RegisterOfflinePayServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
