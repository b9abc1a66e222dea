package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/protocol"
	"github.com/dmitrijs2005/offpay/internal/server/ephemeral"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	payload []byte
	size    int
	err     error
}

func (f *fakeRenderer) Render(payload []byte, size int) ([]byte, error) {
	f.payload = payload
	f.size = size
	return []byte("png"), f.err
}

func newBroker(e *testEnv) (*PaymentRequestBroker, *ephemeral.MemoryStore) {
	store := ephemeral.NewMemoryStoreWithClock(e.clock)
	b := NewPaymentRequestBroker(e.db, e.m, store, e.keys, e.nonces, e.cfg, nil, nil)
	b.now = e.clock
	return b, store
}

func TestPaymentRequestBroker_CreateRequest(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	r := &fakeRenderer{}
	b.WithRenderer(r)

	created, err := b.CreateRequest(context.Background(), bob, decimal.RequireFromString("1000"), "lunch", 0)
	require.NoError(t, err)

	p := created.Payload
	assert.Equal(t, bob, p.RecipientID)
	assert.Equal(t, "+2348000000002", p.RecipientPhoneNumber)
	assert.Equal(t, "Bob", p.RecipientName)
	assert.Equal(t, "1000.00", p.Amount)
	assert.Equal(t, common.UnsignedPlaceholder, p.Signature)
	assert.Equal(t, "2026-01-02T03:09:05.678Z", p.ExpiresAt)
	assert.NotEmpty(t, p.Nonce)
	assert.NotEqual(t, p.Nonce, p.PaymentRequestID)

	assert.Equal(t, created.Bytes, r.payload)
	assert.Equal(t, DefaultQRSize, r.size)
	assert.Equal(t, []byte("png"), created.Image)

	parsed, err := protocol.ParseQR(created.Bytes)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestPaymentRequestBroker_CreateRequest_Errors(t *testing.T) {
	e := newTestEnv(t)
	b, _ := newBroker(e)
	ctx := context.Background()

	_, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("10"), "", 0)
	assert.ErrorIs(t, err, common.ErrNoKeyRegistered)

	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	for _, a := range []string{"0", "-5", "1.001"} {
		_, err = b.CreateRequest(ctx, bob, decimal.RequireFromString(a), "", 0)
		assert.ErrorIs(t, err, common.ErrInvalidAmount, a)
	}

	b.WithRenderer(&fakeRenderer{err: errors.New("too dense")})
	_, err = b.CreateRequest(ctx, bob, decimal.RequireFromString("10"), "", 200)
	assert.ErrorContains(t, err, "too dense")
}

func TestPaymentRequestBroker_ExpiryWindow(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("1000"), "", 0)
	require.NoError(t, err)

	e.advance(4*time.Minute + 59*time.Second)
	v, err := b.ValidateRequest(ctx, created.Bytes)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Reason)

	e.advance(2 * time.Second)
	v, err = b.ValidateRequest(ctx, created.Bytes)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonExpired, v.Reason)
}

func TestPaymentRequestBroker_ConsumeTwiceIsNoop(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("1000"), "", 0)
	require.NoError(t, err)

	require.NoError(t, b.Consume(ctx, created.Request.ID))
	require.NoError(t, b.Consume(ctx, created.Request.ID))

	claim := e.ledger.nonce(created.Request.Nonce)
	require.NotNil(t, claim)
	assert.Equal(t, bob, claim.OwnerID)

	v, err := b.ValidateRequest(ctx, created.Bytes)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, v.Reason)
}

func TestPaymentRequestBroker_ConsumeFailureKeepsRequest(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, store := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("10"), "", 0)
	require.NoError(t, err)
	e.advance(time.Minute)

	e.ledger.fail["nonces.Claim"] = errors.New("connection reset")
	err = b.Consume(ctx, created.Request.ID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	_, err = store.Get(ctx, paymentRequestPrefix+created.Request.ID)
	require.NoError(t, err, "request is back in the store")
	v, err := b.ValidateRequest(ctx, created.Bytes)
	require.NoError(t, err)
	assert.NotEqual(t, ReasonNotFound, v.Reason)

	e.advance(4*time.Minute - time.Second)
	_, err = store.Get(ctx, paymentRequestPrefix+created.Request.ID)
	require.NoError(t, err)
	e.advance(time.Second)
	_, err = store.Get(ctx, paymentRequestPrefix+created.Request.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound, "restored entry keeps the original expiry")

	delete(e.ledger.fail, "nonces.Claim")
	require.NoError(t, b.Consume(ctx, created.Request.ID), "expired request is a no-op")
}

func TestPaymentRequestBroker_ConsumeWithReusedNonceIsFinal(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, store := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("10"), "", 0)
	require.NoError(t, err)
	require.NoError(t, e.nonces.Claim(ctx, bob, created.Request.Nonce, ""))

	err = b.Consume(ctx, created.Request.ID)
	assert.ErrorIs(t, err, common.ErrNonceReused)
	_, err = store.Get(ctx, paymentRequestPrefix+created.Request.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPaymentRequestBroker_ConcurrentConsume(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("5"), "", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Consume(ctx, created.Request.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "only one consumer reaches the nonce claim")
	}
}

func TestPaymentRequestBroker_ValidateRequest_Reasons(t *testing.T) {
	e := newTestEnv(t)
	bobKey := e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("1000"), "rent", 0)
	require.NoError(t, err)

	encode := func(p protocol.QRPayload) []byte {
		raw, err := p.Marshal()
		require.NoError(t, err)
		return raw
	}
	signed := func(p protocol.QRPayload) protocol.QRPayload {
		sig, err := cryptox.Sign(p.UnsignedBytes(), bobKey, cryptox.AlgorithmECDSA)
		require.NoError(t, err)
		p.Signature = cryptox.EncodeSignature(sig)
		return p
	}

	t.Run("parse error", func(t *testing.T) {
		v, err := b.ValidateRequest(ctx, []byte("{not json"))
		require.NoError(t, err)
		assert.Equal(t, ReasonParseError, v.Reason)
	})

	t.Run("tampered amount", func(t *testing.T) {
		p := *created.Payload
		p.Amount = "1.00"
		v, err := b.ValidateRequest(ctx, encode(p))
		require.NoError(t, err)
		assert.Equal(t, ReasonRequestMismatch, v.Reason)
	})

	t.Run("real signature verifies", func(t *testing.T) {
		v, err := b.ValidateRequest(ctx, encode(signed(*created.Payload)))
		require.NoError(t, err)
		assert.True(t, v.Valid)
	})

	t.Run("bad signature", func(t *testing.T) {
		p := signed(*created.Payload)
		p.Signature = cryptox.EncodeSignature([]byte("forged"))
		v, err := b.ValidateRequest(ctx, encode(p))
		require.NoError(t, err)
		assert.Equal(t, ReasonInvalidSignature, v.Reason)
	})

	t.Run("placeholder under strict policy", func(t *testing.T) {
		b.requireSignatures = true
		defer func() { b.requireSignatures = false }()

		v, err := b.ValidateRequest(ctx, created.Bytes)
		require.NoError(t, err)
		assert.Equal(t, ReasonSignatureRequired, v.Reason)

		v, err = b.ValidateRequest(ctx, encode(signed(*created.Payload)))
		require.NoError(t, err)
		assert.True(t, v.Valid)
	})

	t.Run("nonce already claimed", func(t *testing.T) {
		require.NoError(t, e.nonces.Claim(ctx, bob, created.Payload.Nonce, ""))
		v, err := b.ValidateRequest(ctx, created.Bytes)
		require.NoError(t, err)
		assert.Equal(t, ReasonNonceReused, v.Reason)
	})
}

func TestPaymentRequestBroker_ValidateRequest_InvalidAmount(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	b, store := newBroker(e)
	ctx := context.Background()

	created, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("3"), "", 0)
	require.NoError(t, err)

	// A stored request whose amount is not positive can only come from a
	// corrupted store entry; the last check still catches it.
	req := *created.Request
	req.Amount = decimal.Zero
	p := qrPayload(&req)
	p.Signature = common.UnsignedPlaceholder
	raw, err := p.Marshal()
	require.NoError(t, err)
	stored, err := json.Marshal(&req)
	require.NoError(t, err)
	require.NoError(t, store.SetWithTTL(ctx, paymentRequestPrefix+req.ID, stored, time.Minute))

	v, err := b.ValidateRequest(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidAmount, v.Reason)
}

func TestPaymentRequestBroker_ListActiveRequests(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	e.addKey(carol, cryptox.AlgorithmECDSA, false)
	b, _ := newBroker(e)
	ctx := context.Background()

	first, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("1"), "", 0)
	require.NoError(t, err)
	e.advance(time.Second)
	second, err := b.CreateRequest(ctx, bob, decimal.RequireFromString("2"), "", 0)
	require.NoError(t, err)
	_, err = b.CreateRequest(ctx, carol, decimal.RequireFromString("3"), "", 0)
	require.NoError(t, err)

	list, err := b.ListActiveRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Request.ID, list[0].ID)
	assert.Equal(t, second.Request.ID, list[1].ID)

	require.NoError(t, b.Consume(ctx, first.Request.ID))
	e.advance(5*time.Minute - time.Second)
	list, err = b.ListActiveRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.Request.ID, list[0].ID)

	e.advance(time.Second)
	list, err = b.ListActiveRequests(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list, "a request expires at exactly its ttl")
}
