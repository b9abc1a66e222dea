// Package nonces persists consumed nonces. Claim is a single statement so
// two concurrent claims of one value cannot both succeed.
package nonces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Claim records n and reports whether it was accepted. A row whose expiry
// has passed but which the sweeper has not removed yet may be reclaimed.
func (r *PostgresRepository) Claim(ctx context.Context, n *models.UsedNonce, now time.Time) (bool, error) {
	query :=
		`INSERT INTO used_nonces (nonce, owner_id, tx_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (nonce)
		 DO UPDATE SET
		     owner_id = EXCLUDED.owner_id,
		     tx_hash = EXCLUDED.tx_hash,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at
		     WHERE used_nonces.expires_at <= $4
		 `

	res, err := r.db.ExecContext(ctx, query, n.Nonce, n.OwnerID, n.TxHash, now, n.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}

	n.CreatedAt = now
	return affected == 1, nil
}

// Get returns the unexpired claim for nonce.
func (r *PostgresRepository) Get(ctx context.Context, nonce string, now time.Time) (*models.UsedNonce, error) {
	query :=
		`SELECT nonce, owner_id, tx_hash, created_at, expires_at FROM used_nonces
		 WHERE nonce = $1 AND expires_at > $2
		 `

	n := &models.UsedNonce{}
	err := r.db.QueryRowContext(ctx, query, nonce, now).
		Scan(&n.Nonce, &n.OwnerID, &n.TxHash, &n.CreatedAt, &n.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, nonce string, now time.Time) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM used_nonces WHERE nonce = $1 AND expires_at > $2)
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, nonce, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`DELETE FROM used_nonces
		 WHERE expires_at <= $1
		 `

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
