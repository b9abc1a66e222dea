// Package transactions is the append-only ledger of offline transactions.
// Rows are never deleted; only status, attempt counter and sync time move.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, hash, previous_hash, sender_id, recipient_id, amount, currency, nonce,
		 algorithm, signature, client_timestamp, channel, status, sync_attempts, raw_payload, created_at, synced_at`

// Save inserts the transaction or, when the hash is already known, advances
// its status and bumps sync_attempts. SYNCED and FAILED rows are final.
func (r *PostgresRepository) Save(ctx context.Context, t *models.OfflineTransaction) error {
	query :=
		`INSERT INTO offline_transactions (hash, previous_hash, sender_id, recipient_id, amount, currency, nonce,
		     algorithm, signature, client_timestamp, channel, status, sync_attempts, raw_payload, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (hash)
		 DO UPDATE SET
		     status = EXCLUDED.status,
		     sync_attempts = offline_transactions.sync_attempts + 1,
		     synced_at = EXCLUDED.synced_at
		     WHERE offline_transactions.status NOT IN ('SYNCED', 'FAILED')
		 `

	_, err := r.db.ExecContext(ctx, query,
		t.Hash, t.PreviousHash, t.SenderID, t.RecipientID, t.Amount, t.Currency, t.Nonce,
		string(t.Algorithm), t.Signature, t.ClientTimestamp, string(t.Channel), string(t.Status),
		t.SyncAttempts, t.RawPayload, t.SyncedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*models.OfflineTransaction, error) {
	query := `SELECT ` + selectColumns + `
		 FROM offline_transactions
		 WHERE hash = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, hash))
}

// LastSynced returns the head of the sender's synced chain. Rows applied in
// the same batch share synced_at, so the chain order breaks the tie.
func (r *PostgresRepository) LastSynced(ctx context.Context, senderID string) (*models.OfflineTransaction, error) {
	query := `SELECT ` + selectColumns + `
		 FROM offline_transactions
		 WHERE sender_id = $1 AND status = 'SYNCED'
		 ORDER BY synced_at DESC, client_timestamp DESC, hash DESC
		 LIMIT 1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, senderID))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, hash string, status models.SyncStatus, syncedAt *time.Time) error {
	query :=
		`UPDATE offline_transactions SET status = $2, synced_at = $3
		 WHERE hash = $1
		 `

	res, err := r.db.ExecContext(ctx, query, hash, string(status), syncedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.OfflineTransaction, error) {
	var (
		t                    models.OfflineTransaction
		alg, channel, status string
		syncedAt             sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Hash, &t.PreviousHash, &t.SenderID, &t.RecipientID, &t.Amount, &t.Currency, &t.Nonce,
		&alg, &t.Signature, &t.ClientTimestamp, &channel, &status, &t.SyncAttempts, &t.RawPayload, &t.CreatedAt, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	t.Algorithm = cryptox.Algorithm(alg)
	t.Channel = models.Channel(channel)
	t.Status = models.SyncStatus(status)
	if syncedAt.Valid {
		ts := syncedAt.Time
		t.SyncedAt = &ts
	}
	return &t, nil
}
