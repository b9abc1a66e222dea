// Package wallet signs offline payments on the device and queues them in
// the local outbox.
//
// A payment chains onto the newest outbox row that has not FAILED, or onto
// the server chain head recorded at the last sync when the outbox is empty.
// The spendable balance is the last known server balance minus every
// payment still PENDING or in CONFLICT.
package wallet

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/protocol"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotRegistered     = errors.New("wallet is not registered")
	ErrInsufficientFunds = errors.New("insufficient offline balance")
	ErrRequestExpired    = errors.New("payment request expired")
	ErrForeignRequest    = errors.New("payment request belongs to another account")
)

// Identity is the account this device acts for.
type Identity struct {
	UserID      string
	PhoneNumber string
}

// Peer is what a payer needs to know about the recipient to build an NFC
// payload. Devices exchange it as a JSON card.
type Peer struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	PublicKey   string `json:"publicKey"`
	Algorithm   string `json:"algorithm"`
}

type Wallet struct {
	db       *sql.DB
	signer   crypto.Signer
	alg      cryptox.Algorithm
	currency string
	logger   logging.Logger

	now      func() time.Time
	newNonce func() string
}

// New returns a wallet over the device database. signer may be nil for
// read-only use; payments then fail.
func New(db *sql.DB, signer crypto.Signer, alg cryptox.Algorithm, currency string, logger logging.Logger) *Wallet {
	return &Wallet{
		db:       db,
		signer:   signer,
		alg:      alg,
		currency: currency,
		logger:   logger,
		now:      time.Now,
		newNonce: uuid.NewString,
	}
}

func (w *Wallet) Identity(ctx context.Context) (*Identity, error) {
	return identity(ctx, metadata.NewSQLiteRepository(w.db))
}

func identity(ctx context.Context, meta metadata.Repository) (*Identity, error) {
	id, err := metadata.GetString(ctx, meta, metadata.KeyUserID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotRegistered
	}
	phone, err := metadata.GetString(ctx, meta, metadata.KeyPhoneNumber)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: id, PhoneNumber: phone}, nil
}

// Card describes this device to a payer.
func (w *Wallet) Card(ctx context.Context) (*Peer, error) {
	me, err := w.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if w.signer == nil {
		return nil, fmt.Errorf("%w: no signing key loaded", common.ErrNoKeyRegistered)
	}
	pub, err := PublicKeyDER(w.signer)
	if err != nil {
		return nil, err
	}
	return &Peer{
		UserID:      me.UserID,
		PhoneNumber: me.PhoneNumber,
		PublicKey:   cryptox.EncodeKey(pub),
		Algorithm:   string(w.alg),
	}, nil
}

// Spendable is the amount the device may still commit offline.
func (w *Wallet) Spendable(ctx context.Context) (decimal.Decimal, error) {
	return spendable(ctx, metadata.NewSQLiteRepository(w.db), outbox.NewSQLiteRepository(w.db))
}

func spendable(ctx context.Context, meta metadata.Repository, out outbox.Repository) (decimal.Decimal, error) {
	raw, err := metadata.GetString(ctx, meta, metadata.KeyBalance)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	if raw != "" {
		if balance, err = decimal.NewFromString(raw); err != nil {
			return decimal.Zero, fmt.Errorf("corrupt stored balance %q: %w", raw, err)
		}
	}
	open, err := out.OpenTotal(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(open), nil
}

// Pay signs a transfer to recipientID and appends it to the outbox.
func (w *Wallet) Pay(ctx context.Context, recipientID string, amount decimal.Decimal, channel models.Channel) (*models.Transaction, error) {
	return w.pay(ctx, recipientID, amount, channel, nil)
}

// PayNFC signs a transfer to peer and returns the NFC payload that carries
// it. The payload is kept with the outbox row.
func (w *Wallet) PayNFC(ctx context.Context, peer Peer, amount decimal.Decimal, note string) ([]byte, *models.Transaction, error) {
	if peer.UserID == "" || peer.PhoneNumber == "" || peer.PublicKey == "" {
		return nil, nil, fmt.Errorf("%w: peer card is incomplete", common.ErrValidation)
	}
	if w.signer == nil {
		return nil, nil, fmt.Errorf("%w: no signing key loaded", common.ErrNoKeyRegistered)
	}
	pub, err := PublicKeyDER(w.signer)
	if err != nil {
		return nil, nil, err
	}

	var raw []byte
	tx, err := w.pay(ctx, peer.UserID, amount, models.ChannelNFC, func(me *Identity, t *models.Transaction) error {
		p := &protocol.NFCPayload{
			Version: protocol.NFCVersion,
			Type:    protocol.NFCType,
			Sender: protocol.NFCParty{
				PhoneNumber: me.PhoneNumber,
				PublicKey:   cryptox.EncodeKey(pub),
				DeviceID:    cryptox.Fingerprint(pub),
			},
			Recipient: protocol.NFCParty{
				PhoneNumber: peer.PhoneNumber,
				PublicKey:   peer.PublicKey,
			},
			Transaction: protocol.NFCTransaction{
				Amount:    cryptox.FormatAmount(t.Amount),
				Currency:  t.Currency,
				Timestamp: cryptox.FormatTimestamp(t.Timestamp),
				Nonce:     t.Nonce,
				Note:      note,
			},
			Security: protocol.NFCSecurity{
				Hash:         t.Hash,
				PreviousHash: t.PreviousHash,
				Signature:    t.Signature,
				Algorithm:    string(t.Algorithm),
			},
		}
		var err error
		raw, err = p.Marshal()
		t.RawPayload = raw
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return raw, tx, nil
}

// PayRequest pays a scanned QR payment request. Only expiry is checked
// here; the server validates the request itself when online.
func (w *Wallet) PayRequest(ctx context.Context, qr []byte) (*models.Transaction, *protocol.QRPayload, error) {
	req, err := protocol.ParseQR(qr)
	if err != nil {
		return nil, nil, err
	}
	expires, err := time.Parse(cryptox.TimestampLayout, req.ExpiresAt)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: malformed expiry %q", common.ErrInvalidPayload, req.ExpiresAt)
	}
	if !w.now().Before(expires) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRequestExpired, req.PaymentRequestID)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", common.ErrInvalidAmount, req.Amount)
	}

	tx, err := w.pay(ctx, req.RecipientID, amount, models.ChannelQR, func(_ *Identity, t *models.Transaction) error {
		t.RawPayload = qr
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tx, req, nil
}

// SignRequest signs a payment request issued to this account so payers can
// check it came from the recipient's device.
func (w *Wallet) SignRequest(ctx context.Context, qr []byte) ([]byte, error) {
	req, err := protocol.ParseQR(qr)
	if err != nil {
		return nil, err
	}
	me, err := w.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if req.RecipientID != me.UserID {
		return nil, ErrForeignRequest
	}
	sig, err := cryptox.Sign(req.UnsignedBytes(), w.signer, w.alg)
	if err != nil {
		return nil, err
	}
	req.Signature = cryptox.EncodeSignature(sig)
	return req.Marshal()
}

func (w *Wallet) pay(ctx context.Context, recipientID string, amount decimal.Decimal, channel models.Channel,
	decorate func(me *Identity, t *models.Transaction) error) (*models.Transaction, error) {
	if !amount.IsPositive() || !cryptox.ValidAmountScale(amount) {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAmount, amount)
	}
	if w.signer == nil {
		return nil, fmt.Errorf("%w: no signing key loaded", common.ErrNoKeyRegistered)
	}

	var t *models.Transaction
	err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := metadata.NewSQLiteRepository(tx)
		out := outbox.NewSQLiteRepository(tx)

		me, err := identity(ctx, meta)
		if err != nil {
			return err
		}
		if recipientID == me.UserID {
			return fmt.Errorf("%w: cannot pay yourself", common.ErrValidation)
		}

		available, err := spendable(ctx, meta, out)
		if err != nil {
			return err
		}
		if amount.GreaterThan(available) {
			return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientFunds,
				cryptox.FormatAmount(available), cryptox.FormatAmount(amount))
		}

		prev, err := chainHead(ctx, meta, out)
		if err != nil {
			return err
		}

		t = &models.Transaction{
			PreviousHash: prev,
			SenderID:     me.UserID,
			RecipientID:  recipientID,
			Amount:       amount,
			Currency:     w.currency,
			Nonce:        w.newNonce(),
			Algorithm:    w.alg,
			Timestamp:    cryptox.NormalizeTimestamp(w.now()),
			Channel:      channel,
			Status:       models.StatusPending,
		}
		t.Hash = cryptox.HashTransaction(t.Fields())

		sig, err := cryptox.Sign(cryptox.CanonicalPayload(t.Fields()), w.signer, w.alg)
		if err != nil {
			return err
		}
		t.Signature = cryptox.EncodeSignature(sig)

		if decorate != nil {
			if err := decorate(me, t); err != nil {
				return err
			}
		}
		return out.Append(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info(ctx, "offline payment signed", "hash", t.Hash, "recipient", recipientID,
		"amount", cryptox.FormatAmount(amount), "channel", channel)
	return t, nil
}

func chainHead(ctx context.Context, meta metadata.Repository, out outbox.Repository) (string, error) {
	head, ok, err := out.Head(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return head, nil
	}
	server, err := metadata.GetString(ctx, meta, metadata.KeyChainHead)
	if err != nil {
		return "", err
	}
	if server == "" {
		return cryptox.GenesisHash, nil
	}
	return server, nil
}
