// Package conflicts stores SyncConflict audit rows. Rows are kept after
// resolution.
package conflicts

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

const selectColumns = `id, transaction_hash, sender_id, conflict_type, expected_value, actual_value,
		 priority, status, detected_at, resolved_at, notes`

// Create records a detected conflict. While a conflict of the same type is
// still open for the transaction, that row is returned unchanged instead.
func (r *PostgresRepository) Create(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	query :=
		`INSERT INTO sync_conflicts (transaction_hash, sender_id, conflict_type, expected_value, actual_value,
		     priority, status, detected_at, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (transaction_hash, conflict_type) WHERE status IN ('UNRESOLVED', 'PENDING_USER') DO NOTHING
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		c.TransactionHash, c.SenderID, string(c.Type), c.ExpectedValue, c.ActualValue,
		string(c.Priority), string(c.Status), c.DetectedAt, c.Notes).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.getOpen(ctx, c.TransactionHash, c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) getOpen(ctx context.Context, hash string, typ models.ConflictType) (*models.SyncConflict, error) {
	query := `SELECT ` + selectColumns + `
		 FROM sync_conflicts
		 WHERE transaction_hash = $1 AND conflict_type = $2 AND status IN ('UNRESOLVED', 'PENDING_USER')
		 `

	c, err := scan(r.db.QueryRowContext(ctx, query, hash, string(typ)))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SyncConflict, error) {
	query := `SELECT ` + selectColumns + `
		 FROM sync_conflicts
		 WHERE id = $1
		 `

	c, err := scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// ListOpen returns unresolved and user-pending conflicts for a sender, oldest first.
func (r *PostgresRepository) ListOpen(ctx context.Context, senderID string) ([]*models.SyncConflict, error) {
	query := `SELECT ` + selectColumns + `
		 FROM sync_conflicts
		 WHERE sender_id = $1 AND status IN ('UNRESOLVED', 'PENDING_USER')
		 ORDER BY detected_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query, senderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncConflict
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.ResolutionStatus, resolvedAt *time.Time, notes string) error {
	query :=
		`UPDATE sync_conflicts SET status = $2, resolved_at = $3, notes = $4
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, string(status), resolvedAt, notes)
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

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.SyncConflict, error) {
	var (
		c                     models.SyncConflict
		typ, priority, status string
		resolvedAt            sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.TransactionHash, &c.SenderID, &typ, &c.ExpectedValue, &c.ActualValue,
		&priority, &status, &c.DetectedAt, &resolvedAt, &c.Notes); err != nil {
		return nil, err
	}
	c.Type = models.ConflictType(typ)
	c.Priority = models.ConflictPriority(priority)
	c.Status = models.ResolutionStatus(status)
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		c.ResolvedAt = &ts
	}
	return &c, nil
}
