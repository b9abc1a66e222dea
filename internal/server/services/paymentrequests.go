package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/protocol"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/ephemeral"
	"github.com/dmitrijs2005/offpay/internal/server/metrics"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const paymentRequestPrefix = "payreq:"

// DefaultQRSize is the rendered edge length used when no hint is given.
const DefaultQRSize = 300

// Renderer turns the canonical QR bytes into an image. Rasterization lives
// outside this package.
type Renderer interface {
	Render(payload []byte, size int) ([]byte, error)
}

// RequestReason is the first failed check reported by ValidateRequest.
type RequestReason string

const (
	ReasonParseError        RequestReason = "PARSE_ERROR"
	ReasonExpired           RequestReason = "EXPIRED"
	ReasonNotFound          RequestReason = "NOT_FOUND"
	ReasonRequestMismatch   RequestReason = "REQUEST_MISMATCH"
	ReasonSignatureRequired RequestReason = "SIGNATURE_REQUIRED"
	ReasonInvalidSignature  RequestReason = "INVALID_SIGNATURE"
	ReasonNonceReused       RequestReason = "NONCE_REUSED"
	ReasonInvalidAmount     RequestReason = "INVALID_AMOUNT"
)

// CreatedRequest is returned by CreateRequest. Image is nil when no
// renderer is configured.
type CreatedRequest struct {
	Request *models.PaymentRequest
	Payload *protocol.QRPayload
	Bytes   []byte
	Image   []byte
}

// RequestValidation is the outcome of ValidateRequest. Reason is empty
// when Valid is true.
type RequestValidation struct {
	Valid   bool
	Reason  RequestReason
	Payload *protocol.QRPayload
}

// PaymentRequestBroker manages recipient-created QR payment requests. A
// request lives in the ephemeral store until it is consumed or its TTL runs
// out.
type PaymentRequestBroker struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	store             ephemeral.Store
	keys              *KeyService
	nonces            *NonceGuard
	renderer          Renderer
	ttl               time.Duration
	requireSignatures bool
	now               clock
	newID             func() string
	logger            logging.Logger
	metrics           *metrics.Collectors
}

func NewPaymentRequestBroker(db *sql.DB, m repomanager.RepositoryManager, store ephemeral.Store, keys *KeyService,
	nonces *NonceGuard, cfg *config.Config, l logging.Logger, mc *metrics.Collectors) *PaymentRequestBroker {
	return &PaymentRequestBroker{
		db:                db,
		repomanager:       m,
		store:             store,
		keys:              keys,
		nonces:            nonces,
		ttl:               cfg.PaymentRequestTTL,
		requireSignatures: cfg.RequireSignatures,
		now:               systemClock,
		newID:             uuid.NewString,
		logger:            moduleLogger(l, "payment_requests"),
		metrics:           mc,
	}
}

// WithRenderer sets the image renderer used by CreateRequest.
func (b *PaymentRequestBroker) WithRenderer(r Renderer) *PaymentRequestBroker {
	b.renderer = r
	return b
}

// CreateRequest stores a new payment request for recipientID and returns
// its QR form. The recipient must hold an active key.
func (b *PaymentRequestBroker) CreateRequest(ctx context.Context, recipientID string, amount decimal.Decimal, note string, sizeHint int) (*CreatedRequest, error) {
	if !amount.IsPositive() || !cryptox.ValidAmountScale(amount) {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAmount, amount)
	}

	kp, err := b.keys.ActiveKey(ctx, recipientID)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: recipient %q", common.ErrNoKeyRegistered, recipientID)
		}
		return nil, err
	}

	user, err := b.repomanager.Users(b.db).GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown recipient %q", common.ErrValidation, recipientID)
		}
		return nil, err
	}

	now := cryptox.NormalizeTimestamp(b.now())
	req := &models.PaymentRequest{
		ID:                 b.newID(),
		RecipientID:        recipientID,
		RecipientPhone:     user.PhoneNumber,
		RecipientName:      user.DisplayName,
		RecipientPublicKey: cryptox.EncodeKey(kp.PublicKey),
		RecipientAlgorithm: kp.Algorithm,
		Amount:             amount,
		Note:               note,
		Nonce:              b.newID(),
		CreatedAt:          now,
		ExpiresAt:          now.Add(b.ttl),
	}

	stored, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding payment request: %w", err)
	}
	if err := b.store.SetWithTTL(ctx, paymentRequestPrefix+req.ID, stored, b.ttl); err != nil {
		return nil, fmt.Errorf("error storing payment request: %w", err)
	}

	payload := qrPayload(req)
	payload.Signature = common.UnsignedPlaceholder
	raw, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	out := &CreatedRequest{Request: req, Payload: payload, Bytes: raw}
	if b.renderer != nil {
		if sizeHint <= 0 {
			sizeHint = DefaultQRSize
		}
		out.Image, err = b.renderer.Render(raw, sizeHint)
		if err != nil {
			return nil, fmt.Errorf("error rendering payment request: %w", err)
		}
	}

	b.metrics.PaymentRequest("created")
	b.logger.Info(ctx, "payment request created", "request_id", req.ID, "recipient", recipientID, "amount", cryptox.FormatAmount(amount))
	return out, nil
}

// ValidateRequest runs the QR checks in order and stops at the first one
// that fails.
func (b *PaymentRequestBroker) ValidateRequest(ctx context.Context, raw []byte) (*RequestValidation, error) {
	payload, err := protocol.ParseQR(raw)
	if err != nil {
		return b.invalid(ctx, nil, ReasonParseError), nil
	}

	expiresAt, err := time.Parse(cryptox.TimestampLayout, payload.ExpiresAt)
	if err != nil {
		return b.invalid(ctx, payload, ReasonParseError), nil
	}
	if !b.now().Before(expiresAt) {
		return b.invalid(ctx, payload, ReasonExpired), nil
	}

	req, err := b.lookup(ctx, payload.PaymentRequestID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return b.invalid(ctx, payload, ReasonNotFound), nil
		}
		return nil, err
	}

	if string(qrPayload(req).UnsignedBytes()) != string(payload.UnsignedBytes()) {
		b.metrics.SecurityEvent("qr_tamper")
		b.logger.Security(ctx, "payment request does not match stored request", "request_id", req.ID)
		return b.invalid(ctx, payload, ReasonRequestMismatch), nil
	}

	if !payload.Signed() {
		if b.requireSignatures {
			return b.invalid(ctx, payload, ReasonSignatureRequired), nil
		}
		b.logger.Warn(ctx, "payment request carries placeholder signature", "request_id", req.ID)
	} else {
		ok, err := b.verify(payload, req)
		if err != nil {
			return nil, err
		}
		if !ok {
			b.metrics.SecurityEvent(string(models.ConflictInvalidSignature))
			b.logger.Security(ctx, "payment request signature rejected", "request_id", req.ID, "recipient", req.RecipientID)
			return b.invalid(ctx, payload, ReasonInvalidSignature), nil
		}
	}

	seen, err := b.nonces.Seen(ctx, payload.Nonce)
	if err != nil {
		return nil, err
	}
	if seen {
		b.nonces.ReportReplay(ctx, req.RecipientID, payload.Nonce, "")
		return b.invalid(ctx, payload, ReasonNonceReused), nil
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		return b.invalid(ctx, payload, ReasonInvalidAmount), nil
	}

	b.metrics.PaymentRequest("validated")
	return &RequestValidation{Valid: true, Payload: payload}, nil
}

func (b *PaymentRequestBroker) invalid(ctx context.Context, p *protocol.QRPayload, reason RequestReason) *RequestValidation {
	b.metrics.PaymentRequest("rejected")
	id := ""
	if p != nil {
		id = p.PaymentRequestID
	}
	b.logger.Info(ctx, "payment request rejected", "request_id", id, "reason", reason)
	return &RequestValidation{Reason: reason, Payload: p}
}

// verify checks the signature against the key snapshot taken at creation.
// A malformed signature counts as a failed verification.
func (b *PaymentRequestBroker) verify(p *protocol.QRPayload, req *models.PaymentRequest) (bool, error) {
	sig, err := cryptox.DecodeSignature(p.Signature)
	if err != nil {
		return false, nil
	}
	pub, err := cryptox.DecodeKey(req.RecipientPublicKey)
	if err != nil {
		return false, fmt.Errorf("%w: stored request key: %v", common.ErrCryptoFault, err)
	}
	return cryptox.VerifyDER(p.UnsignedBytes(), sig, pub, req.RecipientAlgorithm)
}

// Consume marks the request used: it removes the store entry and claims the
// nonce. Consuming an absent request is a no-op.
func (b *PaymentRequestBroker) Consume(ctx context.Context, requestID string) error {
	raw, err := b.store.Take(ctx, paymentRequestPrefix+requestID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			b.logger.Debug(ctx, "payment request already consumed or expired", "request_id", requestID)
			return nil
		}
		return fmt.Errorf("error consuming payment request: %w", err)
	}

	req := &models.PaymentRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return fmt.Errorf("error decoding payment request: %w", err)
	}
	if err := b.nonces.Claim(ctx, req.RecipientID, req.Nonce, ""); err != nil {
		// A reused nonce means the request is spent either way. Anything
		// else puts the request back for the rest of its lifetime.
		if !errors.Is(err, common.ErrNonceReused) {
			b.restore(ctx, requestID, raw, req.ExpiresAt)
		}
		return err
	}

	b.metrics.PaymentRequest("consumed")
	b.logger.Info(ctx, "payment request consumed", "request_id", requestID, "recipient", req.RecipientID)
	return nil
}

func (b *PaymentRequestBroker) restore(ctx context.Context, requestID string, raw []byte, expiresAt time.Time) {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return
	}
	if err := b.store.SetWithTTL(ctx, paymentRequestPrefix+requestID, raw, ttl); err != nil {
		b.logger.Error(ctx, "payment request lost after failed consume", "request_id", requestID, "error", err)
	}
}

// ListActiveRequests returns the recipient's outstanding requests, oldest
// first.
func (b *PaymentRequestBroker) ListActiveRequests(ctx context.Context, recipientID string) ([]*models.PaymentRequest, error) {
	entries, err := b.store.ScanPrefix(ctx, paymentRequestPrefix)
	if err != nil {
		return nil, fmt.Errorf("error listing payment requests: %w", err)
	}

	var out []*models.PaymentRequest
	for key, raw := range entries {
		req := &models.PaymentRequest{}
		if err := json.Unmarshal(raw, req); err != nil {
			b.logger.Warn(ctx, "skipping undecodable payment request", "key", key, "error", err)
			continue
		}
		if req.RecipientID == recipientID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (b *PaymentRequestBroker) lookup(ctx context.Context, id string) (*models.PaymentRequest, error) {
	raw, err := b.store.Get(ctx, paymentRequestPrefix+id)
	if err != nil {
		return nil, err
	}
	req := &models.PaymentRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("error decoding payment request: %w", err)
	}
	return req, nil
}

func qrPayload(req *models.PaymentRequest) *protocol.QRPayload {
	return &protocol.QRPayload{
		RecipientID:          req.RecipientID,
		RecipientPhoneNumber: req.RecipientPhone,
		RecipientName:        req.RecipientName,
		Amount:               cryptox.FormatAmount(req.Amount),
		Note:                 req.Note,
		Timestamp:            cryptox.FormatTimestamp(req.CreatedAt),
		ExpiresAt:            cryptox.FormatTimestamp(req.ExpiresAt),
		Nonce:                req.Nonce,
		PaymentRequestID:     req.ID,
	}
}
