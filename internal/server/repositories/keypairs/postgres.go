// Package keypairs stores registered signing keys. At most one row per owner
// is active; the partial unique index key_pairs_one_active enforces it.
package keypairs

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

// Create inserts an active key. Callers revoke the previous active key in
// the same transaction first.
func (r *PostgresRepository) Create(ctx context.Context, key *models.KeyPair) (*models.KeyPair, error) {
	query :=
		`INSERT INTO key_pairs (owner_id, algorithm, key_size, public_key, sealed_private_key, active, expires_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		key.OwnerID, string(key.Algorithm), key.KeySize, key.PublicKey, key.SealedPrivateKey, key.ExpiresAt).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	key.Active = true
	return key, nil
}

// GetActive returns the owner's active key, expired or not. Expiry is
// checked by the caller with KeyPair.Usable.
func (r *PostgresRepository) GetActive(ctx context.Context, ownerID string) (*models.KeyPair, error) {
	query :=
		`SELECT id, owner_id, algorithm, key_size, public_key, sealed_private_key, active, created_at, expires_at, revoked_at
		 FROM key_pairs
		 WHERE owner_id = $1 AND active
		 `

	var (
		key       models.KeyPair
		alg       string
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&key.ID, &key.OwnerID, &alg, &key.KeySize, &key.PublicKey, &key.SealedPrivateKey,
		&key.Active, &key.CreatedAt, &key.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	key.Algorithm = cryptoAlgorithm(alg)
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	return &key, nil
}

// RevokeActive deactivates the owner's active key and reports how many rows
// changed (0 or 1).
func (r *PostgresRepository) RevokeActive(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query :=
		`UPDATE key_pairs SET active = FALSE, revoked_at = $2
		 WHERE owner_id = $1 AND active
		 `

	res, err := r.db.ExecContext(ctx, query, ownerID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// DeactivateExpired revokes every active key whose expiry has passed.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE key_pairs SET active = FALSE, revoked_at = $1
		 WHERE active AND expires_at <= $1
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
