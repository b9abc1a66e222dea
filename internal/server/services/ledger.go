package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// Ledger is the narrow persistence contract used by the payment channels
// and the reconciler. It is bound to one handle, usually a transaction.
type Ledger struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
}

func NewLedger(db dbx.DBTX, m repomanager.RepositoryManager) *Ledger {
	return &Ledger{db: db, repomanager: m}
}

// LastSyncedHash returns the hash of the sender's newest synced
// transaction, or cryptox.GenesisHash when there is none.
func (l *Ledger) LastSyncedHash(ctx context.Context, senderID string) (string, error) {
	tx, err := l.repomanager.Transactions(l.db).LastSynced(ctx, senderID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return cryptox.GenesisHash, nil
		}
		return "", fmt.Errorf("error reading chain head: %w", err)
	}
	return tx.Hash, nil
}

// LastKnownBalance returns the server-side balance of the account.
func (l *Ledger) LastKnownBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	b, err := l.repomanager.Users(l.db).GetBalance(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error reading balance: %w", err)
	}
	return b, nil
}

func (l *Ledger) SaveTransaction(ctx context.Context, tx *models.OfflineTransaction) error {
	if err := l.repomanager.Transactions(l.db).Save(ctx, tx); err != nil {
		return fmt.Errorf("error saving transaction: %w", err)
	}
	return nil
}

func (l *Ledger) SaveConflict(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	saved, err := l.repomanager.Conflicts(l.db).Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error saving conflict: %w", err)
	}
	return saved, nil
}

// Transaction returns the stored transaction or nil when the hash is unknown.
func (l *Ledger) Transaction(ctx context.Context, hash string) (*models.OfflineTransaction, error) {
	tx, err := l.repomanager.Transactions(l.db).GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading transaction: %w", err)
	}
	return tx, nil
}

func (l *Ledger) MarkSynced(ctx context.Context, tx *models.OfflineTransaction, at time.Time) error {
	tx.Status = models.StatusSynced
	tx.SyncedAt = &at
	return l.SaveTransaction(ctx, tx)
}

// Transfer debits the sender and credits the recipient. The balance check
// constraint rejects a debit that would go negative.
func (l *Ledger) Transfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal) error {
	users := l.repomanager.Users(l.db)
	if _, err := users.AdjustBalance(ctx, senderID, amount.Neg()); err != nil {
		return fmt.Errorf("error debiting sender: %w", err)
	}
	if _, err := users.AdjustBalance(ctx, recipientID, amount); err != nil {
		return fmt.Errorf("error crediting recipient: %w", err)
	}
	return nil
}

// ExistsNonce reports whether nonce is held by a live claim.
func (l *Ledger) ExistsNonce(ctx context.Context, nonce string, now time.Time) (bool, error) {
	ok, err := l.repomanager.Nonces(l.db).Exists(ctx, nonce, now)
	if err != nil {
		return false, fmt.Errorf("error checking nonce: %w", err)
	}
	return ok, nil
}
