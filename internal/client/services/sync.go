package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
)

const DefaultBatchSize = 100

// SyncResult summarizes one push of the outbox.
type SyncResult struct {
	BatchID   string
	Submitted int
	Synced    int
	Conflicts int
	Failed    int
	Waiting   int
	Report    *api.ReconcileBatchResponse
}

// Syncer pushes open outbox rows to the reconciler and applies the verdicts.
type Syncer struct {
	client    client.Client
	db        *sql.DB
	accounts  AccountService
	batchSize int
	logger    logging.Logger
	now       func() time.Time
}

func NewSyncer(c client.Client, db *sql.DB, accounts AccountService, batchSize int, logger logging.Logger) *Syncer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Syncer{
		client:    c,
		db:        db,
		accounts:  accounts,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SyncOnce submits one batch in chain order. When the server cannot be
// reached every row keeps its status and gets an attempt recorded.
func (s *Syncer) SyncOnce(ctx context.Context) (*SyncResult, error) {
	batch, err := outbox.NewSQLiteRepository(s.db).Pending(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Submitted: len(batch)}
	if len(batch) == 0 {
		if _, err := s.accounts.Refresh(ctx); err != nil {
			return res, err
		}
		return res, nil
	}

	report, err := s.client.ReconcileBatch(ctx, batch)
	if err != nil {
		if rerr := s.recordAttempts(ctx, batch, err); rerr != nil {
			return res, errors.Join(err, rerr)
		}
		return res, fmt.Errorf("reconcile batch: %w", err)
	}
	res.BatchID = report.BatchID
	res.Report = report

	if err := s.apply(ctx, batch, report, res); err != nil {
		return res, err
	}

	s.logger.Info(ctx, "outbox synced", "batch_id", res.BatchID, "submitted", res.Submitted,
		"synced", res.Synced, "conflicts", res.Conflicts, "failed", res.Failed, "waiting", res.Waiting)

	if _, err := s.accounts.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Syncer) apply(ctx context.Context, batch []models.Transaction, report *api.ReconcileBatchResponse, res *SyncResult) error {
	verdicts := make(map[string]api.Verdict, len(report.Verdicts))
	for _, v := range report.Verdicts {
		verdicts[v.Hash] = v
	}
	at := s.now()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		out := outbox.NewSQLiteRepository(tx)
		for _, t := range batch {
			v, ok := verdicts[t.Hash]
			if !ok {
				res.Waiting++
				if err := out.RecordAttempt(ctx, t.Hash, "no verdict returned"); err != nil {
					return err
				}
				continue
			}

			var err error
			switch models.Status(v.Status) {
			case models.StatusSynced:
				res.Synced++
				err = out.UpdateStatus(ctx, t.Hash, models.StatusSynced, "", at)
			case models.StatusConflict:
				res.Conflicts++
				err = out.UpdateStatus(ctx, t.Hash, models.StatusConflict, verdictReason(v), at)
			case models.StatusFailed:
				res.Failed++
				err = out.UpdateStatus(ctx, t.Hash, models.StatusFailed, verdictReason(v), at)
			default:
				res.Waiting++
				err = out.RecordAttempt(ctx, t.Hash, verdictReason(v))
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func verdictReason(v api.Verdict) string {
	if len(v.Conflicts) > 0 {
		return strings.Join(v.Conflicts, ",")
	}
	return v.Reason
}

func (s *Syncer) recordAttempts(ctx context.Context, batch []models.Transaction, cause error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		out := outbox.NewSQLiteRepository(tx)
		for _, t := range batch {
			if err := out.RecordAttempt(ctx, t.Hash, cause.Error()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run syncs every interval until ctx is cancelled. An unreachable server is
// expected while offline and only logged.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sync loop started", "interval", interval)
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sync loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context) {
	_, err := s.SyncOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, client.ErrUnavailable), errors.Is(err, client.ErrRateLimited):
		s.logger.Warn(ctx, "server not reachable, will retry", "error", err)
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error(ctx, "sync failed", "error", err)
	}
}
