package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/metrics"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Verdict is the reconciler's decision for one transaction. Valid means the
// transaction itself has no conflict; Safe additionally requires every
// earlier transaction in the chain to be conflict-free.
type Verdict struct {
	Hash      string                `json:"hash"`
	Position  int                   `json:"position"`
	Valid     bool                  `json:"valid"`
	Safe      bool                  `json:"safe"`
	Applied   bool                  `json:"applied"`
	Status    models.SyncStatus     `json:"status"`
	Conflicts []models.ConflictType `json:"conflicts,omitempty"`
	Reason    string                `json:"reason,omitempty"`
}

type ChainSummary struct {
	Valid      bool `json:"valid"`
	ErrorCount int  `json:"errorCount"`
}

type DoubleSpendSummary struct {
	Detected         bool            `json:"detected"`
	FlaggedHashes    []string        `json:"flaggedHashes,omitempty"`
	LastKnownBalance decimal.Decimal `json:"lastKnownBalance"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`
}

// ReconcileReport is the outcome of one batch. Verdicts follow chain order.
type ReconcileReport struct {
	BatchID      string                 `json:"batchId"`
	SenderID     string                 `json:"senderId"`
	ReconciledAt time.Time              `json:"reconciledAt"`
	Verdicts     []*Verdict             `json:"verdicts"`
	Chain        ChainSummary           `json:"chain"`
	DoubleSpend  DoubleSpendSummary     `json:"doubleSpend"`
	SafeToSync   bool                   `json:"safeToSync"`
	Applied      int                    `json:"applied"`
	Conflicts    []*models.SyncConflict `json:"conflicts,omitempty"`
}

// Archiver keeps a copy of every report.
type Archiver interface {
	Archive(ctx context.Context, report *ReconcileReport) error
}

// ChainReconciler validates a sender's batch of offline transactions and
// applies the conflict-free prefix to the ledger. Batches of one sender are
// serialized with a transaction-scoped advisory lock.
type ChainReconciler struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	keys              *KeyService
	nonces            *NonceGuard
	archive           Archiver
	skew              time.Duration
	maxAge            time.Duration
	doubleSpendWindow time.Duration
	requireSignatures bool
	now               clock
	newID             func() string
	logger            logging.Logger
	metrics           *metrics.Collectors
}

func NewChainReconciler(db *sql.DB, m repomanager.RepositoryManager, keys *KeyService, nonces *NonceGuard,
	archive Archiver, cfg *config.Config, l logging.Logger, mc *metrics.Collectors) *ChainReconciler {
	return &ChainReconciler{
		db:                db,
		repomanager:       m,
		keys:              keys,
		nonces:            nonces,
		archive:           archive,
		skew:              cfg.TimestampSkew,
		maxAge:            cfg.MaxOfflineAge,
		doubleSpendWindow: cfg.DoubleSpendWindow,
		requireSignatures: cfg.RequireSignatures,
		now:               systemClock,
		newID:             uuid.NewString,
		logger:            moduleLogger(l, "reconciler"),
		metrics:           mc,
	}
}

// entry is the working state of one transaction during a run.
type entry struct {
	tx        *models.OfflineTransaction
	sigValid  bool
	conflicts []*models.SyncConflict
	verdict   *Verdict
	skipped   bool
}

func (e *entry) flag(t models.ConflictType, expected, actual string) {
	for _, c := range e.conflicts {
		if c.Type == t {
			return
		}
	}
	e.conflicts = append(e.conflicts, &models.SyncConflict{
		TransactionHash: e.tx.Hash,
		SenderID:        e.tx.SenderID,
		Type:            t,
		ExpectedValue:   expected,
		ActualValue:     actual,
		Priority:        t.Priority(),
		Status:          models.ResolutionUnresolved,
	})
}

func (e *entry) has(t models.ConflictType) bool {
	for _, c := range e.conflicts {
		if c.Type == t {
			return true
		}
	}
	return false
}

// Reconcile checks batch and applies every transaction that has no conflict
// and follows only conflict-free transactions. Invalid input is rejected
// with common.ErrValidation before anything is written; infrastructure
// failures roll the whole batch back.
func (r *ChainReconciler) Reconcile(ctx context.Context, batch []*models.OfflineTransaction) (*ReconcileReport, error) {
	started := time.Now()

	entries, senderID, err := r.precheck(ctx, batch)
	if err != nil {
		r.metrics.Batch("rejected", time.Since(started))
		return nil, err
	}

	kp, err := r.keys.ActiveKey(ctx, senderID)
	if err != nil {
		r.metrics.Batch("rejected", time.Since(started))
		if errors.Is(err, common.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: sender %q", common.ErrNoKeyRegistered, senderID)
		}
		return nil, err
	}
	if err := r.verifySignatures(ctx, entries, kp); err != nil {
		r.metrics.Batch("error", time.Since(started))
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].tx, entries[j].tx
		if a.ClientTimestamp.Equal(b.ClientTimestamp) {
			return a.Hash < b.Hash
		}
		return a.ClientTimestamp.Before(b.ClientTimestamp)
	})

	now := r.now()
	report := &ReconcileReport{
		BatchID:      r.newID(),
		SenderID:     senderID,
		ReconciledAt: now,
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.LockKey(ctx, tx, "reconcile:"+senderID); err != nil {
			return err
		}
		ledger := NewLedger(tx, r.repomanager)
		if err := r.detect(ctx, tx, ledger, senderID, entries, report, now); err != nil {
			return err
		}
		return r.apply(ctx, tx, ledger, entries, report, now)
	})
	if err != nil {
		r.metrics.Batch("error", time.Since(started))
		r.logger.Error(ctx, "reconciliation rolled back", "sender", senderID, "error", err)
		return nil, fmt.Errorf("error reconciling batch: %w", err)
	}

	r.summarize(entries, report)

	outcome := "clean"
	if !report.SafeToSync {
		outcome = "conflicts"
	}
	r.metrics.Batch(outcome, time.Since(started))
	for _, c := range report.Conflicts {
		r.metrics.Conflict(string(c.Type))
	}
	r.logger.Info(ctx, "batch reconciled", "batch_id", report.BatchID, "sender", senderID,
		"size", len(entries), "applied", report.Applied, "conflicts", len(report.Conflicts), "safe", report.SafeToSync)

	if r.archive != nil {
		if err := r.archive.Archive(ctx, report); err != nil {
			r.logger.Warn(ctx, "reconciliation report not archived", "batch_id", report.BatchID, "error", err)
		}
	}
	return report, nil
}

func (r *ChainReconciler) precheck(ctx context.Context, batch []*models.OfflineTransaction) ([]*entry, string, error) {
	if len(batch) == 0 || batch[0] == nil {
		return nil, "", fmt.Errorf("%w: empty batch", common.ErrValidation)
	}

	senderID := batch[0].SenderID
	if err := checkID("sender", senderID); err != nil {
		return nil, "", err
	}

	users := r.repomanager.Users(r.db)
	recipients := map[string]bool{}
	seen := map[string]bool{}
	var entries []*entry
	for i, t := range batch {
		if t == nil {
			return nil, "", fmt.Errorf("%w: transaction %d is empty", common.ErrValidation, i)
		}
		if t.SenderID != senderID {
			return nil, "", fmt.Errorf("%w: batch mixes senders %q and %q", common.ErrValidation, senderID, t.SenderID)
		}
		if !t.Amount.IsPositive() || !cryptox.ValidAmountScale(t.Amount) {
			return nil, "", fmt.Errorf("%w: transaction %d: %s", common.ErrInvalidAmount, i, t.Amount)
		}
		if err := checkID("recipient", t.RecipientID); err != nil {
			return nil, "", err
		}
		if t.RecipientID == senderID {
			return nil, "", fmt.Errorf("%w: transaction %d pays its sender", common.ErrValidation, i)
		}
		if t.Hash == "" {
			return nil, "", fmt.Errorf("%w: transaction %d has no hash", common.ErrValidation, i)
		}

		if !recipients[t.RecipientID] {
			if _, err := users.GetByID(ctx, t.RecipientID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return nil, "", fmt.Errorf("%w: unknown recipient %q", common.ErrValidation, t.RecipientID)
				}
				return nil, "", err
			}
			recipients[t.RecipientID] = true
		}

		if seen[t.Hash] {
			continue
		}
		seen[t.Hash] = true

		c := *t
		c.ClientTimestamp = cryptox.NormalizeTimestamp(c.ClientTimestamp)
		if c.PreviousHash == "" {
			c.PreviousHash = cryptox.GenesisHash
		}
		if c.Channel == "" {
			c.Channel = models.ChannelBatch
		}
		entries = append(entries, &entry{tx: &c})
	}
	return entries, senderID, nil
}

// verifySignatures checks every signature in parallel against the sender's
// registered key.
func (r *ChainReconciler) verifySignatures(ctx context.Context, entries []*entry, kp *models.KeyPair) error {
	g, _ := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			t := e.tx
			if t.Signature == common.UnsignedPlaceholder {
				e.sigValid = !r.requireSignatures
				return nil
			}
			if t.Algorithm != "" && t.Algorithm != kp.Algorithm {
				return nil
			}
			sig, err := cryptox.DecodeSignature(t.Signature)
			if err != nil {
				return nil
			}
			ok, err := cryptox.VerifyDER(cryptox.CanonicalPayload(t.Fields()), sig, kp.PublicKey, kp.Algorithm)
			if err != nil {
				return err
			}
			e.sigValid = ok
			return nil
		})
	}
	return g.Wait()
}

// detect walks the ordered batch and records every conflict.
func (r *ChainReconciler) detect(ctx context.Context, tx dbx.DBTX, ledger *Ledger, senderID string,
	entries []*entry, report *ReconcileReport, now time.Time) error {

	expected, err := ledger.LastSyncedHash(ctx, senderID)
	if err != nil {
		return err
	}
	balance, err := ledger.LastKnownBalance(ctx, senderID)
	if err != nil {
		return err
	}
	report.DoubleSpend.LastKnownBalance = balance
	projected := balance
	available := balance

	nonceOwners := map[string]string{}
	for i, e := range entries {
		t := e.tx
		e.verdict = &Verdict{Hash: t.Hash, Position: i}

		stored, err := ledger.Transaction(ctx, t.Hash)
		if err != nil {
			return err
		}
		if stored != nil && stored.SenderID == senderID {
			switch stored.Status {
			case models.StatusSynced:
				e.skipped = true
				e.verdict.Valid = true
				e.verdict.Safe = true
				e.verdict.Status = models.StatusSynced
				e.verdict.Reason = "already synced"
				continue
			case models.StatusFailed:
				e.skipped = true
				e.verdict.Status = models.StatusFailed
				e.verdict.Reason = "previously rejected"
				continue
			}
		}

		if t.PreviousHash != expected {
			e.flag(models.ConflictChainBroken, expected, t.PreviousHash)
		}
		expected = t.Hash

		if actual := cryptox.HashTransaction(t.Fields()); actual != t.Hash {
			e.flag(models.ConflictInvalidHash, actual, t.Hash)
		}

		if !e.sigValid {
			e.flag(models.ConflictInvalidSignature, string(t.Algorithm), t.Signature)
		}

		if err := r.checkNonce(ctx, tx, e, nonceOwners); err != nil {
			return err
		}

		if now.Sub(t.ClientTimestamp) > r.maxAge || t.ClientTimestamp.Sub(now) > r.skew {
			e.flag(models.ConflictTimestampInvalid, cryptox.FormatTimestamp(now), cryptox.FormatTimestamp(t.ClientTimestamp))
		}

		projected = projected.Sub(t.Amount)
		if next := available.Sub(t.Amount); next.IsNegative() {
			e.flag(models.ConflictInsufficientFunds, cryptox.FormatAmount(available), cryptox.FormatAmount(t.Amount))
		} else {
			available = next
		}

		for _, c := range e.conflicts {
			if c.Type.Security() {
				r.metrics.SecurityEvent(string(c.Type))
				r.logger.Security(ctx, "security conflict in batch", "type", c.Type, "sender", senderID,
					"hash", t.Hash, "expected", c.ExpectedValue, "actual", c.ActualValue)
			}
		}
	}
	report.DoubleSpend.ProjectedBalance = projected

	r.flagDoubleSpends(entries, report)
	return nil
}

func (r *ChainReconciler) checkNonce(ctx context.Context, tx dbx.DBTX, e *entry, owners map[string]string) error {
	t := e.tx
	if t.Nonce == "" {
		e.flag(models.ConflictNonceReused, "unique nonce", "")
		return nil
	}
	if other, ok := owners[t.Nonce]; ok {
		e.flag(models.ConflictNonceReused, other, t.Hash)
		return nil
	}
	owners[t.Nonce] = t.Hash

	claim, err := r.nonces.LookupTx(ctx, tx, t.Nonce)
	if err != nil {
		return err
	}
	if claim != nil && claim.TxHash != t.Hash {
		e.flag(models.ConflictNonceReused, claim.TxHash, t.Hash)
	}
	return nil
}

// flagDoubleSpends marks, for every overdrawing transaction, the batch
// members with the same amount and recipient inside the configured window.
func (r *ChainReconciler) flagDoubleSpends(entries []*entry, report *ReconcileReport) {
	flagged := map[string]bool{}
	for _, f := range entries {
		if f.skipped || !f.has(models.ConflictInsufficientFunds) {
			continue
		}
		for _, e := range entries {
			if e == f || e.skipped {
				continue
			}
			if !e.tx.Amount.Equal(f.tx.Amount) || e.tx.RecipientID != f.tx.RecipientID {
				continue
			}
			gap := e.tx.ClientTimestamp.Sub(f.tx.ClientTimestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap > r.doubleSpendWindow {
				continue
			}
			for _, d := range []*entry{f, e} {
				d.flag(models.ConflictDoubleSpend, f.tx.Hash, d.tx.Hash)
				flagged[d.tx.Hash] = true
			}
		}
	}

	for _, e := range entries {
		if flagged[e.tx.Hash] {
			report.DoubleSpend.FlaggedHashes = append(report.DoubleSpend.FlaggedHashes, e.tx.Hash)
		}
	}
	report.DoubleSpend.Detected = len(report.DoubleSpend.FlaggedHashes) > 0
}

// apply writes the outcome: the conflict-free prefix is synced and moves
// money, conflicting transactions are kept as CONFLICT and the rest stays
// PENDING.
func (r *ChainReconciler) apply(ctx context.Context, tx dbx.DBTX, ledger *Ledger, entries []*entry,
	report *ReconcileReport, now time.Time) error {

	blocked := false
	for _, e := range entries {
		t := e.tx
		v := e.verdict

		if e.skipped {
			if v.Status == models.StatusFailed {
				blocked = true
			}
			continue
		}

		if len(e.conflicts) > 0 {
			blocked = true
			for _, c := range e.conflicts {
				v.Conflicts = append(v.Conflicts, c.Type)
				c.DetectedAt = now
				saved, err := ledger.SaveConflict(ctx, c)
				if err != nil {
					return err
				}
				report.Conflicts = append(report.Conflicts, saved)
			}
			v.Status = models.StatusConflict
			v.Reason = "conflicts detected"
			if e.has(models.ConflictInvalidHash) {
				// The claimed hash cannot be trusted as a ledger key.
				continue
			}
			t.Status = models.StatusConflict
			if err := ledger.SaveTransaction(ctx, t); err != nil {
				return err
			}
			continue
		}

		v.Valid = true
		if blocked {
			v.Status = models.StatusPending
			v.Reason = "waiting on an earlier transaction"
			t.Status = models.StatusPending
			if err := ledger.SaveTransaction(ctx, t); err != nil {
				return err
			}
			continue
		}

		claim, err := r.nonces.LookupTx(ctx, tx, t.Nonce)
		if err != nil {
			return err
		}
		if claim == nil {
			if err := r.nonces.ClaimTx(ctx, tx, t.SenderID, t.Nonce, t.Hash); err != nil {
				return err
			}
		}
		if err := ledger.Transfer(ctx, t.SenderID, t.RecipientID, t.Amount); err != nil {
			return err
		}
		if err := ledger.MarkSynced(ctx, t, now); err != nil {
			return err
		}
		v.Safe = true
		v.Applied = true
		v.Status = models.StatusSynced
		report.Applied++
	}
	return nil
}

func (r *ChainReconciler) summarize(entries []*entry, report *ReconcileReport) {
	allValid := true
	for _, e := range entries {
		report.Verdicts = append(report.Verdicts, e.verdict)
		if !e.verdict.Valid {
			allValid = false
		}
		for _, c := range e.conflicts {
			if c.Type == models.ConflictChainBroken || c.Type == models.ConflictInvalidHash {
				report.Chain.ErrorCount++
			}
		}
	}
	report.Chain.Valid = report.Chain.ErrorCount == 0
	report.SafeToSync = report.Chain.Valid && !report.DoubleSpend.Detected && allValid
}
