package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	reports []*ReconcileReport
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, r *ReconcileReport) error {
	a.reports = append(a.reports, r)
	return a.err
}

func newReconciler(e *testEnv, archive Archiver) *ChainReconciler {
	r := NewChainReconciler(e.db, e.m, e.keys, e.nonces, archive, e.cfg, nil, nil)
	r.now = e.clock
	return r
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertBalance(t *testing.T, e *testEnv, id, want string) {
	t.Helper()
	got := e.ledger.balance(id)
	assert.True(t, got.Equal(dec(want)), "balance of %s: got %s, want %s", id, got, want)
}

func conflictTypes(v *Verdict) []models.ConflictType { return v.Conflicts }

func TestChainReconciler_CleanBatch(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-10*time.Minute), "100", "200", "300")

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	e.expectationsMet()

	assert.True(t, report.SafeToSync)
	assert.True(t, report.Chain.Valid)
	assert.False(t, report.DoubleSpend.Detected)
	assert.Equal(t, 3, report.Applied)
	assert.Empty(t, report.Conflicts)
	assert.True(t, report.DoubleSpend.LastKnownBalance.Equal(dec("1000")))
	assert.True(t, report.DoubleSpend.ProjectedBalance.Equal(dec("400")))

	require.Len(t, report.Verdicts, 3)
	for i, v := range report.Verdicts {
		assert.Equal(t, batch[i].Hash, v.Hash)
		assert.Equal(t, i, v.Position)
		assert.True(t, v.Valid && v.Safe && v.Applied)
		assert.Equal(t, models.StatusSynced, v.Status)

		stored := e.ledger.tx(batch[i].Hash)
		require.NotNil(t, stored)
		assert.Equal(t, models.StatusSynced, stored.Status)
		require.NotNil(t, stored.SyncedAt)

		claim := e.ledger.nonce(batch[i].Nonce)
		require.NotNil(t, claim)
		assert.Equal(t, batch[i].Hash, claim.TxHash)
	}

	assertBalance(t, e, alice, "400")
	assertBalance(t, e, bob, "600")

	head, err := NewLedger(e.db, e.m).LastSyncedHash(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, batch[2].Hash, head)
}

func TestChainReconciler_ChainBreak(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)

	start := baseTime.Add(-10 * time.Minute)
	first := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, start, "100")
	rest := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, strings.Repeat("cd", 32), start.Add(time.Minute), "100", "100", "100")
	batch := append(first, rest...)

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	e.expectationsMet()

	assert.False(t, report.SafeToSync)
	assert.False(t, report.Chain.Valid)
	assert.Equal(t, 1, report.Chain.ErrorCount)
	assert.Equal(t, 1, report.Applied)

	v := report.Verdicts
	assert.True(t, v[0].Safe)
	assert.False(t, v[1].Valid)
	assert.Equal(t, []models.ConflictType{models.ConflictChainBroken}, conflictTypes(v[1]))
	assert.Equal(t, models.StatusConflict, v[1].Status)
	for _, later := range v[2:] {
		assert.True(t, later.Valid)
		assert.False(t, later.Safe)
		assert.False(t, later.Applied)
		assert.Equal(t, models.StatusPending, later.Status)
	}

	require.Len(t, report.Conflicts, 1)
	c := report.Conflicts[0]
	assert.Equal(t, batch[0].Hash, c.ExpectedValue)
	assert.Equal(t, strings.Repeat("cd", 32), c.ActualValue)
	assert.Equal(t, models.PriorityMedium, c.Priority)
	assert.Equal(t, models.ResolutionUnresolved, c.Status)

	assert.Equal(t, models.StatusConflict, e.ledger.tx(batch[1].Hash).Status)
	assert.Equal(t, models.StatusPending, e.ledger.tx(batch[3].Hash).Status)
	assertBalance(t, e, alice, "900")
}

func TestChainReconciler_InsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "300", "300", "500", "100")

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	e.expectationsMet()

	assert.False(t, report.SafeToSync)
	assert.True(t, report.Chain.Valid)
	assert.False(t, report.DoubleSpend.Detected)
	assert.True(t, report.DoubleSpend.ProjectedBalance.Equal(dec("-200")))
	assert.Equal(t, 2, report.Applied)

	v := report.Verdicts
	assert.Equal(t, []models.ConflictType{models.ConflictInsufficientFunds}, conflictTypes(v[2]))
	assert.False(t, v[3].Safe)
	assert.True(t, v[3].Valid)

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "400.00", report.Conflicts[0].ExpectedValue)
	assert.Equal(t, "500.00", report.Conflicts[0].ActualValue)
	assert.Equal(t, models.PriorityHigh, report.Conflicts[0].Priority)

	assertBalance(t, e, alice, "400")
	assertBalance(t, e, bob, "600")
}

func TestChainReconciler_DoubleSpend(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "600", "600")

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	e.expectationsMet()

	assert.True(t, report.DoubleSpend.Detected)
	assert.ElementsMatch(t, []string{batch[0].Hash, batch[1].Hash}, report.DoubleSpend.FlaggedHashes)
	assert.False(t, report.SafeToSync)
	assert.Zero(t, report.Applied)
	assert.Equal(t, []models.ConflictType{models.ConflictDoubleSpend}, conflictTypes(report.Verdicts[0]))
	assert.ElementsMatch(t, []models.ConflictType{models.ConflictInsufficientFunds, models.ConflictDoubleSpend}, conflictTypes(report.Verdicts[1]))
	assertBalance(t, e, alice, "1000")
}

func TestChainReconciler_DoubleSpendOutsideWindow(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	first := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "600")
	second := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, first[0].Hash, baseTime.Add(-30*time.Minute), "600")

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), append(first, second...))
	require.NoError(t, err)

	assert.False(t, report.DoubleSpend.Detected)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []models.ConflictType{models.ConflictInsufficientFunds}, conflictTypes(report.Verdicts[1]))
}

func TestChainReconciler_SecurityConflicts(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		e := newTestEnv(t)
		key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
		impostor, err := cryptox.GenerateKey(cryptox.AlgorithmECDSA)
		require.NoError(t, err)
		r := newReconciler(e, nil)

		batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10", "20")
		resign(t, batch[1], impostor)

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), batch)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Applied)
		assert.Equal(t, []models.ConflictType{models.ConflictInvalidSignature}, conflictTypes(report.Verdicts[1]))
		assert.Equal(t, models.PriorityCritical, report.Conflicts[0].Priority)
		assert.Equal(t, models.StatusConflict, e.ledger.tx(batch[1].Hash).Status)
	})

	t.Run("invalid hash is not stored", func(t *testing.T) {
		e := newTestEnv(t)
		key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
		r := newReconciler(e, nil)

		batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
		batch[0].Amount = dec("999")

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), batch)
		require.NoError(t, err)

		assert.Contains(t, conflictTypes(report.Verdicts[0]), models.ConflictInvalidHash)
		assert.Contains(t, conflictTypes(report.Verdicts[0]), models.ConflictInvalidSignature)
		assert.False(t, report.Chain.Valid)
		assert.Nil(t, e.ledger.tx(batch[0].Hash))
		assert.Len(t, e.ledger.conflictList(), 2)
		assertBalance(t, e, alice, "1000")
	})

	t.Run("nonce reused inside batch", func(t *testing.T) {
		e := newTestEnv(t)
		key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
		r := newReconciler(e, nil)

		batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
		dup := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, batch[0].Hash, baseTime.Add(-50*time.Minute), "20")
		dup[0].Nonce = batch[0].Nonce
		resign(t, dup[0], key)

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), append(batch, dup...))
		require.NoError(t, err)

		assert.Equal(t, 1, report.Applied)
		assert.Equal(t, []models.ConflictType{models.ConflictNonceReused}, conflictTypes(report.Verdicts[1]))
	})

	t.Run("nonce already claimed elsewhere", func(t *testing.T) {
		e := newTestEnv(t)
		key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
		r := newReconciler(e, nil)

		batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
		require.NoError(t, e.nonces.Claim(context.Background(), alice, batch[0].Nonce, strings.Repeat("ef", 32)))

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), batch)
		require.NoError(t, err)

		assert.Zero(t, report.Applied)
		assert.Equal(t, []models.ConflictType{models.ConflictNonceReused}, conflictTypes(report.Verdicts[0]))
		assert.Equal(t, strings.Repeat("ef", 32), report.Conflicts[0].ExpectedValue)
	})
}

func TestChainReconciler_TimestampWindow(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
	}{
		{name: "older than offline limit", start: baseTime.Add(-8 * 24 * time.Hour)},
		{name: "in the future", start: baseTime.Add(10 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
			r := newReconciler(e, nil)
			batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, tt.start, "10")

			e.expectLockedTx("reconcile:"+alice, true)
			report, err := r.Reconcile(context.Background(), batch)
			require.NoError(t, err)

			assert.Equal(t, []models.ConflictType{models.ConflictTimestampInvalid}, conflictTypes(report.Verdicts[0]))
			assert.Equal(t, models.PriorityLow, report.Conflicts[0].Priority)
			assert.Zero(t, report.Applied)
		})
	}
}

func TestChainReconciler_ResubmissionIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "100", "200")

	e.expectLockedTx("reconcile:"+alice, true)
	_, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)

	next := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, batch[1].Hash, baseTime.Add(-30*time.Minute), "50")
	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), append(batch, next...))
	require.NoError(t, err)
	e.expectationsMet()

	assert.True(t, report.SafeToSync)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, "already synced", report.Verdicts[0].Reason)
	assert.Equal(t, "already synced", report.Verdicts[1].Reason)
	assert.True(t, report.Verdicts[2].Applied)
	assertBalance(t, e, alice, "650")
	assertBalance(t, e, bob, "350")
}

func TestChainReconciler_ResyncKeepsOneOpenConflict(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "5000")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(ctx, batch)
		require.NoError(t, err)
		require.Len(t, report.Conflicts, 1)
		ids = append(ids, report.Conflicts[0].ID)
		e.advance(time.Minute)
	}
	e.expectationsMet()

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])

	resolver := newResolver(e)
	open, err := resolver.ListOpen(ctx, alice)
	require.NoError(t, err)
	require.Len(t, open, 1)

	e.expectTx(true)
	_, err = resolver.Resolve(ctx, open[0].ID, models.ResolutionManualResolved, "topped up")
	require.NoError(t, err)
	e.expectationsMet()
	open, err = resolver.ListOpen(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, open)
	assertBalance(t, e, alice, "1000")
}

func TestChainReconciler_DuplicatesAndOrdering(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "1", "2", "3")

	shuffled := []*models.OfflineTransaction{batch[2], batch[0], batch[1], batch[0]}
	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), shuffled)
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 3)
	for i, v := range report.Verdicts {
		assert.Equal(t, batch[i].Hash, v.Hash)
	}
	assert.True(t, report.SafeToSync)
}

func TestChainReconciler_EqualTimestampsOrderByHash(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)

	at := baseTime.Add(-time.Hour)
	a := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, at, "1")[0]
	b := chain(t, key, cryptox.AlgorithmECDSA, alice, carol, cryptox.GenesisHash, at, "1")[0]

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), []*models.OfflineTransaction{a, b})
	require.NoError(t, err)

	want := []string{a.Hash, b.Hash}
	sort.Strings(want)
	require.Len(t, report.Verdicts, 2)
	assert.Equal(t, want[0], report.Verdicts[0].Hash)
	assert.Equal(t, want[1], report.Verdicts[1].Hash)
	assert.True(t, report.Verdicts[0].Applied)
	assert.Equal(t, []models.ConflictType{models.ConflictChainBroken}, conflictTypes(report.Verdicts[1]))
}

func TestChainReconciler_RejectsBadInput(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	r := newReconciler(e, nil)
	ctx := context.Background()
	fresh := func() []*models.OfflineTransaction {
		return chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10", "20")
	}

	tests := []struct {
		name string
		edit func(b []*models.OfflineTransaction) []*models.OfflineTransaction
		want error
	}{
		{"empty", func([]*models.OfflineTransaction) []*models.OfflineTransaction { return nil }, common.ErrValidation},
		{"nil entry", func(b []*models.OfflineTransaction) []*models.OfflineTransaction { b[1] = nil; return b }, common.ErrValidation},
		{"mixed senders", func(b []*models.OfflineTransaction) []*models.OfflineTransaction { b[1].SenderID = carol; return b }, common.ErrValidation},
		{"malformed sender", func(b []*models.OfflineTransaction) []*models.OfflineTransaction {
			for _, t := range b {
				t.SenderID = "alice"
			}
			return b
		}, common.ErrValidation},
		{"zero amount", func(b []*models.OfflineTransaction) []*models.OfflineTransaction {
			b[0].Amount = decimal.Zero
			return b
		}, common.ErrInvalidAmount},
		{"sub-minor amount", func(b []*models.OfflineTransaction) []*models.OfflineTransaction {
			b[0].Amount = dec("0.005")
			return b
		}, common.ErrInvalidAmount},
		{"pays itself", func(b []*models.OfflineTransaction) []*models.OfflineTransaction { b[0].RecipientID = alice; return b }, common.ErrValidation},
		{"unknown recipient", func(b []*models.OfflineTransaction) []*models.OfflineTransaction {
			b[0].RecipientID = uuid.NewString()
			return b
		}, common.ErrValidation},
		{"missing hash", func(b []*models.OfflineTransaction) []*models.OfflineTransaction { b[0].Hash = ""; return b }, common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Reconcile(ctx, tt.edit(fresh()))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("sender without key", func(t *testing.T) {
		batch := chain(t, key, cryptox.AlgorithmECDSA, bob, alice, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
		_, err := r.Reconcile(ctx, batch)
		assert.ErrorIs(t, err, common.ErrNoKeyRegistered)
	})

	e.expectationsMet()
	assertBalance(t, e, alice, "1000")
}

func TestChainReconciler_StoreFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	archive := &recordingArchiver{}
	r := newReconciler(e, archive)
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
	e.ledger.fail["users.AdjustBalance"] = errors.New("connection reset")

	e.expectLockedTx("reconcile:"+alice, false)
	_, err := r.Reconcile(context.Background(), batch)
	assert.ErrorContains(t, err, "connection reset")
	e.expectationsMet()
	assert.Empty(t, archive.reports)
}

func TestChainReconciler_Archive(t *testing.T) {
	e := newTestEnv(t)
	key := e.addKey(alice, cryptox.AlgorithmECDSA, false)
	archive := &recordingArchiver{err: errors.New("bucket unavailable")}
	r := newReconciler(e, archive)
	r.newID = func() string { return "batch-1" }
	batch := chain(t, key, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")

	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err, "archive failures do not fail the batch")

	require.Len(t, archive.reports, 1)
	assert.Same(t, report, archive.reports[0])
	assert.Equal(t, "batch-1", report.BatchID)
	assert.Equal(t, alice, report.SenderID)
	assert.True(t, baseTime.Equal(report.ReconciledAt))
}

func TestChainReconciler_PlaceholderSignatures(t *testing.T) {
	build := func(e *testEnv) []*models.OfflineTransaction {
		return chain(t, nil, cryptox.AlgorithmECDSA, alice, bob, cryptox.GenesisHash, baseTime.Add(-time.Hour), "10")
	}

	t.Run("accepted by default", func(t *testing.T) {
		e := newTestEnv(t)
		e.addKey(alice, cryptox.AlgorithmECDSA, false)
		r := newReconciler(e, nil)

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), build(e))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Applied)
	})

	t.Run("rejected when signatures are required", func(t *testing.T) {
		e := newTestEnv(t)
		e.addKey(alice, cryptox.AlgorithmECDSA, false)
		e.cfg.RequireSignatures = true
		r := newReconciler(e, nil)

		e.expectLockedTx("reconcile:"+alice, true)
		report, err := r.Reconcile(context.Background(), build(e))
		require.NoError(t, err)
		assert.Zero(t, report.Applied)
		assert.Equal(t, []models.ConflictType{models.ConflictInvalidSignature}, conflictTypes(report.Verdicts[0]))
	})
}

func TestChainReconciler_AppliesNFCSubmission(t *testing.T) {
	e := newTestEnv(t)
	e.addKey(alice, cryptox.AlgorithmECDSA, true)
	e.addKey(bob, cryptox.AlgorithmECDSA, false)
	codec := newCodec(e)
	r := newReconciler(e, nil)
	ctx := context.Background()

	raw, err := codec.Build(ctx, alice, bob, dec("500"), "")
	require.NoError(t, err)
	_, tx, err := codec.Submit(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, tx)

	e.advance(time.Hour)
	e.expectLockedTx("reconcile:"+alice, true)
	report, err := r.Reconcile(ctx, []*models.OfflineTransaction{tx})
	require.NoError(t, err)
	e.expectationsMet()

	assert.True(t, report.SafeToSync)
	assert.Equal(t, 1, report.Applied)
	stored := e.ledger.tx(tx.Hash)
	assert.Equal(t, models.StatusSynced, stored.Status)
	assert.Equal(t, models.ChannelNFC, stored.Channel)
	assertBalance(t, e, alice, "500")
	assertBalance(t, e, bob, "500")
}
