package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// helper to build server
func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("", logging.Nop{}, Services{}, secret, 0, 0)
}

func incoming(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, token))
}

func TestInterceptor_PublicMethods_AllowWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	for _, m := range []string{api.FullMethodPing, api.FullMethodOpenAccount, api.FullMethodRefreshToken} {
		info := &grpc.UnaryServerInfo{FullMethod: m}
		handlerCalled := false

		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			handlerCalled = true
			return "ok", nil
		}

		resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if !handlerCalled {
			t.Fatalf("%s: handler was not called", m)
		}
		if resp != "ok" {
			t.Fatalf("%s: unexpected handler resp: %v", m, resp)
		}
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethodReconcileBatch}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if st, _ := status.FromError(err); st.Code() != codes.Unauthenticated || st.Message() != "missing token" {
		t.Fatalf("expected Unauthenticated missing token, got %v", err)
	}
}

func TestInterceptor_BadTokens(t *testing.T) {
	s := newTestServer("secret")

	expired, err := auth.GenerateToken(alice, []byte("secret"), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	foreign, err := auth.GenerateToken(alice, []byte("other"), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name  string
		token string
		msg   string
	}{
		{"garbage", "not-a-jwt", "invalid token"},
		{"wrong secret", foreign, "invalid token"},
		{"expired", expired, "token expired"},
	}

	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethodGetAccount}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.accessTokenInterceptor(incoming(tt.token), nil, info, h)
			st, _ := status.FromError(err)
			if st.Code() != codes.Unauthenticated || st.Message() != tt.msg {
				t.Fatalf("got %v, want Unauthenticated %q", err, tt.msg)
			}
		})
	}
}

func TestInterceptor_ValidToken_PutsUserInContext(t *testing.T) {
	s := newTestServer("secret")

	tok, err := auth.GenerateToken(alice, []byte("secret"), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethodGetAccount}
	var got string
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = userIDFromContext(ctx)
		return "ok", nil
	}

	if _, err := s.accessTokenInterceptor(incoming(tok), nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != alice {
		t.Fatalf("user in context = %q, want %q", got, alice)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	s := NewGRPCServer("", logging.Nop{}, Services{}, "secret", 1, 1)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.limiter.now = func() time.Time { return now }

	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethodPing}
	h := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	ctx := context.WithValue(context.Background(), userIDKey, alice)

	if _, err := s.rateLimitInterceptor(ctx, nil, info, h); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := s.rateLimitInterceptor(ctx, nil, info, h)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second call: want ResourceExhausted, got %v", err)
	}

	now = now.Add(time.Second)
	if _, err := s.rateLimitInterceptor(ctx, nil, info, h); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestCallerLimiter_DisabledAndSweep(t *testing.T) {
	if !newCallerLimiter(0, 0).allow("x") {
		t.Fatal("zero rate should disable limiting")
	}

	l := newCallerLimiter(1, 1)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.allow("stale")

	now = now.Add(limiterIdleTTL + time.Second)
	l.allow("fresh")
	l.sweep(now)

	if _, ok := l.visitors["stale"]; ok {
		t.Fatal("idle caller was not swept")
	}
	if _, ok := l.visitors["fresh"]; !ok {
		t.Fatal("active caller was swept")
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethodPing}
	h := func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") }

	_, err := s.recoveryInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Internal {
		t.Fatalf("want Internal, got %v", err)
	}
}

func TestCallerKey(t *testing.T) {
	if got := callerKey(context.WithValue(context.Background(), userIDKey, alice)); got != "user:"+alice {
		t.Fatalf("callerKey = %q", got)
	}
	if got := callerKey(context.Background()); got != "anonymous" {
		t.Fatalf("callerKey = %q", got)
	}
}
