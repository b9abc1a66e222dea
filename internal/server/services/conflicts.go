package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
)

// ConflictResolver moves sync conflicts through their resolution states.
// AUTO_RESOLVED, MANUAL_RESOLVED and REJECTED are terminal.
type ConflictResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         clock
	logger      logging.Logger
}

func NewConflictResolver(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *ConflictResolver {
	return &ConflictResolver{
		db:          db,
		repomanager: m,
		now:         systemClock,
		logger:      moduleLogger(l, "conflicts"),
	}
}

// Resolve records outcome for the conflict. Rejecting a conflict marks its
// transaction FAILED, which keeps it out of every later batch.
func (r *ConflictResolver) Resolve(ctx context.Context, conflictID string, outcome models.ResolutionStatus, notes string) (*models.SyncConflict, error) {
	if outcome == models.ResolutionUnresolved {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResolution, outcome)
	}
	if _, ok := models.ParseResolutionStatus(string(outcome)); !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResolution, outcome)
	}
	if err := checkID("conflict", conflictID); err != nil {
		return nil, err
	}

	var resolved *models.SyncConflict
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Conflicts(tx)
		c, err := repo.Get(ctx, conflictID)
		if err != nil {
			return err
		}
		if c.Status.Final() {
			return fmt.Errorf("%w: %s is %s", common.ErrConflictFinal, c.ID, c.Status)
		}

		var resolvedAt *time.Time
		if outcome.Final() {
			now := r.now()
			resolvedAt = &now
		}
		if err := repo.UpdateStatus(ctx, c.ID, outcome, resolvedAt, notes); err != nil {
			return err
		}

		if outcome == models.ResolutionRejected {
			err := r.repomanager.Transactions(tx).UpdateStatus(ctx, c.TransactionHash, models.StatusFailed, nil)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
		}

		c.Status = outcome
		c.ResolvedAt = resolvedAt
		c.Notes = notes
		resolved = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "conflict resolved", "conflict_id", conflictID, "type", resolved.Type, "outcome", outcome)
	return resolved, nil
}

// ListOpen returns the sender's conflicts that still need a decision.
func (r *ConflictResolver) ListOpen(ctx context.Context, senderID string) ([]*models.SyncConflict, error) {
	if err := checkID("sender", senderID); err != nil {
		return nil, err
	}
	return r.repomanager.Conflicts(r.db).ListOpen(ctx, senderID)
}

// Get returns one conflict.
func (r *ConflictResolver) Get(ctx context.Context, conflictID string) (*models.SyncConflict, error) {
	if err := checkID("conflict", conflictID); err != nil {
		return nil, err
	}
	return r.repomanager.Conflicts(r.db).Get(ctx, conflictID)
}
