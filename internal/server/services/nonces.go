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
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/metrics"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
)

// NonceGuard is the replay defense. A nonce is accepted once per retention
// window; the claim itself is a single atomic statement in the store.
type NonceGuard struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	retention   time.Duration
	now         clock
	logger      logging.Logger
	metrics     *metrics.Collectors
}

func NewNonceGuard(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger, mc *metrics.Collectors) *NonceGuard {
	return &NonceGuard{
		db:          db,
		repomanager: m,
		retention:   cfg.NonceRetention,
		now:         systemClock,
		logger:      moduleLogger(l, "nonces"),
		metrics:     mc,
	}
}

// Claim consumes nonce for ownerID. It returns common.ErrNonceReused when
// the nonce is already held; that outcome is logged as a security event.
func (g *NonceGuard) Claim(ctx context.Context, ownerID, nonce, txHash string) error {
	return g.ClaimTx(ctx, g.db, ownerID, nonce, txHash)
}

// ClaimTx is Claim inside a caller-owned transaction.
func (g *NonceGuard) ClaimTx(ctx context.Context, tx dbx.DBTX, ownerID, nonce, txHash string) error {
	if nonce == "" {
		return fmt.Errorf("%w: empty nonce", common.ErrValidation)
	}
	now := g.now()
	ok, err := g.repomanager.Nonces(tx).Claim(ctx, &models.UsedNonce{
		Nonce:     nonce,
		OwnerID:   ownerID,
		TxHash:    txHash,
		ExpiresAt: now.Add(g.retention),
	}, now)
	if err != nil {
		return fmt.Errorf("error claiming nonce: %w", err)
	}

	g.metrics.NonceClaim(ok)
	if !ok {
		g.ReportReplay(ctx, ownerID, nonce, txHash)
		return common.ErrNonceReused
	}
	return nil
}

// ReportReplay records a replay attempt found outside Claim.
func (g *NonceGuard) ReportReplay(ctx context.Context, ownerID, nonce, txHash string) {
	g.metrics.SecurityEvent(string(models.ConflictNonceReused))
	g.logger.Security(ctx, "nonce replay rejected", "owner", ownerID, "nonce", nonce, "tx_hash", txHash)
}

// Seen reports whether nonce is currently held.
func (g *NonceGuard) Seen(ctx context.Context, nonce string) (bool, error) {
	return g.SeenTx(ctx, g.db, nonce)
}

func (g *NonceGuard) SeenTx(ctx context.Context, tx dbx.DBTX, nonce string) (bool, error) {
	seen, err := g.repomanager.Nonces(tx).Exists(ctx, nonce, g.now())
	if err != nil {
		return false, fmt.Errorf("error checking nonce: %w", err)
	}
	return seen, nil
}

// LookupTx returns the live claim for nonce, or nil when there is none.
func (g *NonceGuard) LookupTx(ctx context.Context, tx dbx.DBTX, nonce string) (*models.UsedNonce, error) {
	n, err := g.repomanager.Nonces(tx).Get(ctx, nonce, g.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading nonce: %w", err)
	}
	return n, nil
}

// Expire purges nonces whose retention ended before now.
func (g *NonceGuard) Expire(ctx context.Context, now time.Time) (int64, error) {
	n, err := g.repomanager.Nonces(g.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("error expiring nonces: %w", err)
	}
	g.metrics.NoncesExpired(n)
	return n, nil
}
