package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/protocol"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/metrics"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NFCValidation aggregates every NFC check. Valid is true only when Errors
// is empty; warnings never invalidate a payload.
type NFCValidation struct {
	Valid          bool
	SizeValid      bool
	StructureValid bool
	VersionValid   bool
	TypeValid      bool
	FieldsValid    bool
	TimestampValid bool
	NonceValid     bool
	HashValid      bool
	SignatureValid bool
	AmountValid    bool
	CurrencyValid  bool

	Errors   []string
	Warnings []string

	Payload     *protocol.NFCPayload
	SenderID    string
	RecipientID string
	// Digest is the SHA-256 of the validated bytes. ExtractTransaction only
	// accepts the exact payload that was validated.
	Digest string
}

func (v *NFCValidation) fail(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *NFCValidation) warn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// OfflinePayloadCodec builds and checks NFC payment payloads.
type OfflinePayloadCodec struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	keys              *KeyService
	nonces            *NonceGuard
	currency          string
	skew              time.Duration
	requireSignatures bool
	now               clock
	newNonce          func() string
	logger            logging.Logger
	metrics           *metrics.Collectors
}

func NewOfflinePayloadCodec(db *sql.DB, m repomanager.RepositoryManager, keys *KeyService, nonces *NonceGuard,
	cfg *config.Config, l logging.Logger, mc *metrics.Collectors) *OfflinePayloadCodec {
	return &OfflinePayloadCodec{
		db:                db,
		repomanager:       m,
		keys:              keys,
		nonces:            nonces,
		currency:          cfg.Currency,
		skew:              cfg.TimestampSkew,
		requireSignatures: cfg.RequireSignatures,
		now:               systemClock,
		newNonce:          uuid.NewString,
		logger:            moduleLogger(l, "nfc"),
		metrics:           mc,
	}
}

// Build assembles a payload from senderID to recipientID chained onto the
// sender's last synced transaction. The payload is signed when the server
// holds the sender's private key and carries the placeholder otherwise.
func (c *OfflinePayloadCodec) Build(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, note string) ([]byte, error) {
	if !amount.IsPositive() || !cryptox.ValidAmountScale(amount) {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAmount, amount)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: sender and recipient are the same account", common.ErrValidation)
	}

	senderKey, err := c.registeredKey(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipientKey, err := c.registeredKey(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	users := c.repomanager.Users(c.db)
	sender, err := users.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("error reading sender: %w", err)
	}
	recipient, err := users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("error reading recipient: %w", err)
	}

	prev, err := NewLedger(c.db, c.repomanager).LastSyncedHash(ctx, senderID)
	if err != nil {
		return nil, err
	}

	fields := cryptox.TxFields{
		Sender:       senderID,
		Recipient:    recipientID,
		Amount:       amount,
		Timestamp:    cryptox.NormalizeTimestamp(c.now()),
		Nonce:        c.newNonce(),
		PreviousHash: prev,
	}

	signature, err := c.sign(ctx, senderID, fields)
	if err != nil {
		return nil, err
	}

	p := &protocol.NFCPayload{
		Version: protocol.NFCVersion,
		Type:    protocol.NFCType,
		Sender: protocol.NFCParty{
			PhoneNumber: sender.PhoneNumber,
			PublicKey:   cryptox.EncodeKey(senderKey.PublicKey),
			DeviceID:    cryptox.Fingerprint(senderKey.PublicKey),
		},
		Recipient: protocol.NFCParty{
			PhoneNumber: recipient.PhoneNumber,
			PublicKey:   cryptox.EncodeKey(recipientKey.PublicKey),
		},
		Transaction: protocol.NFCTransaction{
			Amount:    cryptox.FormatAmount(amount),
			Currency:  c.currency,
			Timestamp: cryptox.FormatTimestamp(fields.Timestamp),
			Nonce:     fields.Nonce,
			Note:      note,
		},
		Security: protocol.NFCSecurity{
			Hash:         cryptox.HashTransaction(fields),
			PreviousHash: prev,
			Signature:    signature,
			Algorithm:    string(senderKey.Algorithm),
		},
	}

	raw, err := p.Marshal()
	if err != nil {
		c.metrics.NFCPayload("too_large")
		return nil, err
	}

	c.metrics.NFCPayload("built")
	c.logger.Info(ctx, "nfc payload built", "sender", senderID, "recipient", recipientID, "hash", p.Security.Hash, "size", len(raw))
	return raw, nil
}

func (c *OfflinePayloadCodec) registeredKey(ctx context.Context, ownerID string) (*models.KeyPair, error) {
	kp, err := c.keys.ActiveKey(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", common.ErrNoKeyRegistered, ownerID)
		}
		return nil, err
	}
	return kp, nil
}

func (c *OfflinePayloadCodec) sign(ctx context.Context, senderID string, fields cryptox.TxFields) (string, error) {
	signer, alg, err := c.keys.SigningKey(ctx, senderID)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) && !c.requireSignatures {
			return common.UnsignedPlaceholder, nil
		}
		return "", err
	}
	sig, err := cryptox.Sign(cryptox.CanonicalPayload(fields), signer, alg)
	if err != nil {
		return "", err
	}
	return cryptox.EncodeSignature(sig), nil
}

// ParseAndValidate runs every check and reports all failures. A payload
// that passes has its nonce claimed, so a replay of the same bytes fails
// the nonce check.
func (c *OfflinePayloadCodec) ParseAndValidate(ctx context.Context, raw []byte) (*NFCValidation, error) {
	sum := sha256.Sum256(raw)
	v := &NFCValidation{Digest: hex.EncodeToString(sum[:])}

	v.SizeValid = len(raw) <= protocol.MaxNFCPayloadSize
	if !v.SizeValid {
		v.fail("payload is %d bytes, limit is %d", len(raw), protocol.MaxNFCPayloadSize)
	}

	p, err := protocol.ParseNFC(raw)
	if err != nil {
		v.fail("malformed payload: %v", err)
		c.metrics.NFCPayload("invalid")
		return v, nil
	}
	v.StructureValid = true
	v.Payload = p

	v.VersionValid = p.Version == protocol.NFCVersion
	if !v.VersionValid {
		v.fail("unsupported version %q", p.Version)
	}
	v.TypeValid = p.Type == protocol.NFCType
	if !v.TypeValid {
		v.fail("unexpected payload type %q", p.Type)
	}

	missing := p.MissingFields()
	v.FieldsValid = len(missing) == 0
	if !v.FieldsValid {
		v.fail("missing fields: %s", strings.Join(missing, ", "))
	}

	now := c.now()
	ts, tsErr := time.Parse(cryptox.TimestampLayout, p.Transaction.Timestamp)
	switch {
	case tsErr != nil:
		v.fail("malformed timestamp %q", p.Transaction.Timestamp)
	case ts.Sub(now) > c.skew || now.Sub(ts) > c.skew:
		v.fail("timestamp %s outside the accepted window", p.Transaction.Timestamp)
	default:
		v.TimestampValid = true
	}

	if err := c.checkNonce(ctx, v, p); err != nil {
		return nil, err
	}

	amount, amountErr := decimal.NewFromString(p.Transaction.Amount)
	v.AmountValid = amountErr == nil && amount.IsPositive() && cryptox.ValidAmountScale(amount)
	if !v.AmountValid {
		v.fail("invalid amount %q", p.Transaction.Amount)
	}

	v.CurrencyValid = p.Transaction.Currency == c.currency
	if !v.CurrencyValid {
		v.warn("currency %q differs from ledger currency %q", p.Transaction.Currency, c.currency)
	}

	if err := c.resolveParties(ctx, v, p); err != nil {
		return nil, err
	}
	if v.RecipientID != "" {
		if err := c.checkRecipientKey(ctx, v, p); err != nil {
			return nil, err
		}
	}

	if v.SenderID != "" && v.RecipientID != "" && tsErr == nil && amountErr == nil {
		fields := cryptox.TxFields{
			Sender:       v.SenderID,
			Recipient:    v.RecipientID,
			Amount:       amount,
			Timestamp:    ts,
			Nonce:        p.Transaction.Nonce,
			PreviousHash: p.Security.PreviousHash,
		}
		v.HashValid = cryptox.HashTransaction(fields) == p.Security.Hash
		if !v.HashValid {
			v.fail("hash does not match transaction fields")
			c.security(ctx, models.ConflictInvalidHash, "nfc payload hash mismatch", p)
		}
		if err := c.checkSignature(ctx, v, p, fields); err != nil {
			return nil, err
		}
	} else {
		v.fail("hash cannot be recomputed")
		v.fail("signature cannot be verified")
	}

	v.Valid = len(v.Errors) == 0
	if v.Valid {
		err := c.nonces.Claim(ctx, v.SenderID, p.Transaction.Nonce, p.Security.Hash)
		switch {
		case errors.Is(err, common.ErrNonceReused):
			v.NonceValid = false
			v.Valid = false
			v.fail("nonce %q already used", p.Transaction.Nonce)
		case err != nil:
			return nil, err
		}
	}

	if v.Valid {
		c.metrics.NFCPayload("valid")
	} else {
		c.metrics.NFCPayload("invalid")
		c.logger.Info(ctx, "nfc payload rejected", "errors", v.Errors)
	}
	return v, nil
}

func (c *OfflinePayloadCodec) checkNonce(ctx context.Context, v *NFCValidation, p *protocol.NFCPayload) error {
	if p.Transaction.Nonce == "" {
		v.fail("nonce is empty")
		return nil
	}
	seen, err := c.nonces.Seen(ctx, p.Transaction.Nonce)
	if err != nil {
		return err
	}
	v.NonceValid = !seen
	if seen {
		v.fail("nonce %q already used", p.Transaction.Nonce)
		c.nonces.ReportReplay(ctx, "", p.Transaction.Nonce, p.Security.Hash)
	}
	return nil
}

// resolveParties maps the phone numbers carried on the wire to account ids,
// which is what the hash covers.
func (c *OfflinePayloadCodec) resolveParties(ctx context.Context, v *NFCValidation, p *protocol.NFCPayload) error {
	users := c.repomanager.Users(c.db)
	resolve := func(role, phone string) (string, error) {
		if phone == "" {
			return "", nil
		}
		u, err := users.GetByPhone(ctx, phone)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				v.fail("unknown %s %q", role, phone)
				return "", nil
			}
			return "", fmt.Errorf("error resolving %s: %w", role, err)
		}
		return u.ID, nil
	}

	var err error
	if v.SenderID, err = resolve("sender", p.Sender.PhoneNumber); err != nil {
		return err
	}
	v.RecipientID, err = resolve("recipient", p.Recipient.PhoneNumber)
	return err
}

// checkRecipientKey compares the embedded recipient key with the one on
// record. A recipient without an active key can still be paid.
func (c *OfflinePayloadCodec) checkRecipientKey(ctx context.Context, v *NFCValidation, p *protocol.NFCPayload) error {
	kp, err := c.keys.ActiveKey(ctx, v.RecipientID)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			v.warn("recipient has no registered key")
			return nil
		}
		return err
	}
	embedded, err := cryptox.DecodeKey(p.Recipient.PublicKey)
	if err != nil || !bytes.Equal(embedded, kp.PublicKey) {
		v.fail("recipient public key does not match registered key")
		c.security(ctx, models.ConflictInvalidSignature, "nfc payload carries foreign recipient key", p)
	}
	return nil
}

func (c *OfflinePayloadCodec) checkSignature(ctx context.Context, v *NFCValidation, p *protocol.NFCPayload, fields cryptox.TxFields) error {
	alg, err := cryptox.ParseAlgorithm(p.Security.Algorithm)
	if err != nil {
		v.fail("unsupported signature algorithm %q", p.Security.Algorithm)
		return nil
	}

	kp, err := c.keys.ActiveKey(ctx, v.SenderID)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			v.fail("sender has no registered key")
			return nil
		}
		return err
	}

	embedded, err := cryptox.DecodeKey(p.Sender.PublicKey)
	if err != nil || !bytes.Equal(embedded, kp.PublicKey) || alg != kp.Algorithm {
		v.fail("sender public key does not match registered key")
		c.security(ctx, models.ConflictInvalidSignature, "nfc payload carries foreign sender key", p)
		return nil
	}

	if p.Security.Signature == common.UnsignedPlaceholder {
		if c.requireSignatures {
			v.fail("payload is not signed")
			return nil
		}
		v.SignatureValid = true
		v.warn("signature verification skipped: payload carries placeholder signature")
		return nil
	}

	sig, err := cryptox.DecodeSignature(p.Security.Signature)
	if err == nil {
		v.SignatureValid, err = cryptox.VerifyDER(cryptox.CanonicalPayload(fields), sig, kp.PublicKey, kp.Algorithm)
		if err != nil {
			return err
		}
	}
	if !v.SignatureValid {
		v.fail("signature verification failed")
		c.security(ctx, models.ConflictInvalidSignature, "nfc payload signature rejected", p)
	}
	return nil
}

func (c *OfflinePayloadCodec) security(ctx context.Context, kind models.ConflictType, msg string, p *protocol.NFCPayload) {
	c.metrics.SecurityEvent(string(kind))
	c.logger.Security(ctx, msg, "sender_phone", p.Sender.PhoneNumber, "hash", p.Security.Hash, "nonce", p.Transaction.Nonce)
}

// ExtractTransaction turns a validated payload into a PENDING transaction.
// v must be the result of ParseAndValidate on the same bytes.
func (c *OfflinePayloadCodec) ExtractTransaction(raw []byte, v *NFCValidation) (*models.OfflineTransaction, error) {
	if v == nil || !v.Valid || v.Payload == nil {
		return nil, fmt.Errorf("%w: payload did not pass validation", common.ErrInvalidPayload)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != v.Digest {
		return nil, fmt.Errorf("%w: payload differs from the validated one", common.ErrInvalidPayload)
	}

	p := v.Payload
	amount, err := decimal.NewFromString(p.Transaction.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	ts, err := time.Parse(cryptox.TimestampLayout, p.Transaction.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}

	return &models.OfflineTransaction{
		Hash:            p.Security.Hash,
		PreviousHash:    p.Security.PreviousHash,
		SenderID:        v.SenderID,
		RecipientID:     v.RecipientID,
		Amount:          amount,
		Currency:        p.Transaction.Currency,
		Nonce:           p.Transaction.Nonce,
		Algorithm:       cryptox.Algorithm(p.Security.Algorithm),
		Signature:       p.Security.Signature,
		ClientTimestamp: ts,
		Channel:         models.ChannelNFC,
		Status:          models.StatusPending,
		RawPayload:      raw,
	}, nil
}

// Submit validates raw, extracts the transaction and records it as PENDING
// in the ledger. The transaction is nil when validation failed.
func (c *OfflinePayloadCodec) Submit(ctx context.Context, raw []byte) (*NFCValidation, *models.OfflineTransaction, error) {
	v, err := c.ParseAndValidate(ctx, raw)
	if err != nil || !v.Valid {
		return v, nil, err
	}
	tx, err := c.ExtractTransaction(raw, v)
	if err != nil {
		return v, nil, err
	}
	if err := NewLedger(c.db, c.repomanager).SaveTransaction(ctx, tx); err != nil {
		return v, nil, err
	}
	c.logger.Info(ctx, "offline payment accepted", "hash", tx.Hash, "sender", tx.SenderID, "recipient", tx.RecipientID)
	return v, tx, nil
}
