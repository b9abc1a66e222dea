package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/shopspring/decimal"
)

const columns = `seq, hash, previous_hash, sender_id, recipient_id, amount, currency, nonce,
	algorithm, signature, client_ts, channel, status, sync_attempts, last_error, raw_payload,
	created_at, synced_at`

// SQLiteRepository implements Repository over either *sql.DB or *sql.Tx.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append stores tx as the newest row and sets tx.Seq.
func (r *SQLiteRepository) Append(ctx context.Context, tx *models.Transaction) error {
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (hash, previous_hash, sender_id, recipient_id, amount, currency, nonce,
			algorithm, signature, client_ts, channel, status, sync_attempts, last_error, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Hash, tx.PreviousHash, tx.SenderID, tx.RecipientID, cryptox.FormatAmount(tx.Amount),
		tx.Currency, tx.Nonce, string(tx.Algorithm), tx.Signature, cryptox.FormatTimestamp(tx.Timestamp),
		string(tx.Channel), string(tx.Status), tx.SyncAttempts, tx.LastError, tx.RawPayload,
		tx.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append outbox row: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outbox seq: %w", err)
	}
	tx.Seq = seq
	return nil
}

// Head returns the hash the next payment must chain onto. ok is false when
// the device has not signed anything that still counts.
func (r *SQLiteRepository) Head(ctx context.Context) (string, bool, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT hash FROM outbox WHERE status <> ? ORDER BY seq DESC LIMIT 1`,
		string(models.StatusFailed)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read outbox head: %w", err)
	}
	return hash, true, nil
}

func (r *SQLiteRepository) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE hash = ?`, hash)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outbox %s: %w", hash, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox row: %w", err)
	}
	return tx, nil
}

// Pending returns up to limit rows still waiting for a final verdict
// (PENDING or CONFLICT) in chain order. limit <= 0 means no limit.
func (r *SQLiteRepository) Pending(ctx context.Context, limit int) ([]models.Transaction, error) {
	query := `SELECT ` + columns + ` FROM outbox WHERE status IN (?, ?) ORDER BY seq`
	args := []any{string(models.StatusPending), string(models.StatusConflict)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// List returns rows in chain order, optionally filtered by status.
func (r *SQLiteRepository) List(ctx context.Context, statuses ...models.Status) ([]models.Transaction, error) {
	query := `SELECT ` + columns + ` FROM outbox`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY seq`
	return r.query(ctx, query, args...)
}

// UpdateStatus moves a row to status. reason replaces last_error; synced_at
// is stamped only for SYNCED.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, hash string, status models.Status, reason string, at time.Time) error {
	var syncedAt any
	if status == models.StatusSynced {
		syncedAt = at.UTC().Format(time.RFC3339Nano)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, last_error = ?, synced_at = COALESCE(?, synced_at)
		WHERE hash = ?`, string(status), reason, syncedAt, hash)
	if err != nil {
		return fmt.Errorf("failed to update outbox status: %w", err)
	}
	return expectOne(res, hash)
}

// RecordAttempt counts a sync attempt that left the row PENDING.
func (r *SQLiteRepository) RecordAttempt(ctx context.Context, hash string, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET sync_attempts = sync_attempts + 1, last_error = ? WHERE hash = ?`,
		lastError, hash)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}
	return expectOne(res, hash)
}

// OpenTotal sums the amounts of rows that still reduce the spendable
// balance.
func (r *SQLiteRepository) OpenTotal(ctx context.Context) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT amount FROM outbox WHERE status IN (?, ?)`,
		string(models.StatusPending), string(models.StatusConflict))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum outbox: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan outbox amount: %w", err)
		}
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt outbox amount %q: %w", s, err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return total, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox: %w", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var (
		tx                            models.Transaction
		amount, alg, ts, ch, st, made string
		synced                        sql.NullString
	)
	if err := s.Scan(&tx.Seq, &tx.Hash, &tx.PreviousHash, &tx.SenderID, &tx.RecipientID, &amount,
		&tx.Currency, &tx.Nonce, &alg, &tx.Signature, &ts, &ch, &st, &tx.SyncAttempts,
		&tx.LastError, &tx.RawPayload, &made, &synced); err != nil {
		return nil, err
	}

	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt outbox amount %q: %w", amount, err)
	}
	if tx.Timestamp, err = time.Parse(cryptox.TimestampLayout, ts); err != nil {
		return nil, fmt.Errorf("corrupt outbox timestamp %q: %w", ts, err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, made); err != nil {
		return nil, fmt.Errorf("corrupt outbox created_at %q: %w", made, err)
	}
	if synced.Valid {
		at, err := time.Parse(time.RFC3339Nano, synced.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt outbox synced_at %q: %w", synced.String, err)
		}
		tx.SyncedAt = &at
	}
	tx.Algorithm = cryptox.Algorithm(alg)
	tx.Channel = models.Channel(ch)
	tx.Status = models.Status(st)
	return &tx, nil
}

func expectOne(res sql.Result, hash string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox %s: %w", hash, common.ErrorNotFound)
	}
	return nil
}
