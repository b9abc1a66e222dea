package services

import (
	"context"
	"crypto"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/conflicts"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/keypairs"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	alice = "11111111-1111-4111-8111-111111111111"
	bob   = "22222222-2222-4222-8222-222222222222"
	carol = "33333333-3333-4333-8333-333333333333"
)

// -------- in-memory ledger --------

// fakeLedger backs every repository with maps guarded by one mutex. Setting
// an entry in fail makes the named operation return that error.
type fakeLedger struct {
	mu        sync.Mutex
	users     map[string]*models.User
	keys      []*models.KeyPair
	txs       map[string]*models.OfflineTransaction
	nonces    map[string]*models.UsedNonce
	conflicts map[string]*models.SyncConflict
	sessions  map[string]*models.RefreshToken
	fail      map[string]error
	seq       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:     map[string]*models.User{},
		txs:       map[string]*models.OfflineTransaction{},
		nonces:    map[string]*models.UsedNonce{},
		conflicts: map[string]*models.SyncConflict{},
		sessions:  map[string]*models.RefreshToken{},
		fail:      map[string]error{},
	}
}

func (f *fakeLedger) err(op string) error { return f.fail[op] }

func (f *fakeLedger) nextID() string {
	f.seq++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", f.seq)
}

func (f *fakeLedger) addUser(id, phone, name string, balance string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &models.User{ID: id, PhoneNumber: phone, DisplayName: name, Balance: decimal.RequireFromString(balance)}
}

func (f *fakeLedger) balance(id string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Balance
}

func (f *fakeLedger) tx(hash string) *models.OfflineTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[hash]
}

func (f *fakeLedger) nonce(n string) *models.UsedNonce {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[n]
}

func (f *fakeLedger) conflictList() []*models.SyncConflict {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SyncConflict
	for _, c := range f.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeManager struct{ l *fakeLedger }

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeManager) Users(dbx.DBTX) users.Repository              { return &fakeUsers{m.l} }
func (m *fakeManager) KeyPairs(dbx.DBTX) keypairs.Repository        { return &fakeKeys{m.l} }
func (m *fakeManager) Transactions(dbx.DBTX) transactions.Repository {
	return &fakeTxs{m.l}
}
func (m *fakeManager) Nonces(dbx.DBTX) nonces.Repository       { return &fakeNonces{m.l} }
func (m *fakeManager) Conflicts(dbx.DBTX) conflicts.Repository { return &fakeConflicts{m.l} }
func (m *fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return &fakeSessions{m.l}
}

type fakeUsers struct{ l *fakeLedger }

func (r *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("users.Create"); err != nil {
		return nil, err
	}
	c := *u
	c.ID = r.l.nextID()
	c.CreatedAt = time.Now()
	r.l.users[c.ID] = &c
	return &c, nil
}

func (r *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	u, ok := r.l.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, u := range r.l.users {
		if u.PhoneNumber == phone {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsers) GetBalance(_ context.Context, id string) (decimal.Decimal, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	u, ok := r.l.users[id]
	if !ok {
		return decimal.Zero, common.ErrorNotFound
	}
	return u.Balance, nil
}

func (r *fakeUsers) AdjustBalance(_ context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("users.AdjustBalance"); err != nil {
		return decimal.Zero, err
	}
	u, ok := r.l.users[id]
	if !ok {
		return decimal.Zero, common.ErrorNotFound
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("db error: balance check violated")
	}
	u.Balance = next
	return next, nil
}

type fakeKeys struct{ l *fakeLedger }

func (r *fakeKeys) Create(_ context.Context, k *models.KeyPair) (*models.KeyPair, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("keypairs.Create"); err != nil {
		return nil, err
	}
	for _, e := range r.l.keys {
		if e.OwnerID == k.OwnerID && e.Active {
			return nil, fmt.Errorf("db error: duplicate active key")
		}
	}
	c := *k
	c.ID = r.l.nextID()
	c.Active = true
	c.CreatedAt = time.Now()
	r.l.keys = append(r.l.keys, &c)
	return &c, nil
}

func (r *fakeKeys) GetActive(_ context.Context, ownerID string) (*models.KeyPair, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, k := range r.l.keys {
		if k.OwnerID == ownerID && k.Active {
			c := *k
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeKeys) RevokeActive(_ context.Context, ownerID string, at time.Time) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var n int64
	for _, k := range r.l.keys {
		if k.OwnerID == ownerID && k.Active {
			k.Active = false
			k.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *fakeKeys) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var n int64
	for _, k := range r.l.keys {
		if k.Active && !k.ExpiresAt.After(now) {
			k.Active = false
			k.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

type fakeTxs struct{ l *fakeLedger }

func (r *fakeTxs) Save(_ context.Context, t *models.OfflineTransaction) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("transactions.Save"); err != nil {
		return err
	}
	if e, ok := r.l.txs[t.Hash]; ok {
		if e.Status == models.StatusSynced || e.Status == models.StatusFailed {
			return nil
		}
		e.Status = t.Status
		e.SyncAttempts++
		e.SyncedAt = t.SyncedAt
		return nil
	}
	c := *t
	c.ID = r.l.nextID()
	r.l.txs[t.Hash] = &c
	return nil
}

func (r *fakeTxs) GetByHash(_ context.Context, hash string) (*models.OfflineTransaction, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	t, ok := r.l.txs[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *fakeTxs) LastSynced(_ context.Context, senderID string) (*models.OfflineTransaction, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var best *models.OfflineTransaction
	for _, t := range r.l.txs {
		if t.SenderID != senderID || t.Status != models.StatusSynced || t.SyncedAt == nil {
			continue
		}
		if best == nil || later(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	c := *best
	return &c, nil
}

func later(a, b *models.OfflineTransaction) bool {
	if !a.SyncedAt.Equal(*b.SyncedAt) {
		return a.SyncedAt.After(*b.SyncedAt)
	}
	if !a.ClientTimestamp.Equal(b.ClientTimestamp) {
		return a.ClientTimestamp.After(b.ClientTimestamp)
	}
	return a.Hash > b.Hash
}

func (r *fakeTxs) UpdateStatus(_ context.Context, hash string, status models.SyncStatus, syncedAt *time.Time) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	t, ok := r.l.txs[hash]
	if !ok {
		return common.ErrorNotFound
	}
	t.Status = status
	t.SyncedAt = syncedAt
	return nil
}

type fakeNonces struct{ l *fakeLedger }

func (r *fakeNonces) Claim(_ context.Context, n *models.UsedNonce, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("nonces.Claim"); err != nil {
		return false, err
	}
	if e, ok := r.l.nonces[n.Nonce]; ok && e.ExpiresAt.After(now) {
		return false, nil
	}
	c := *n
	c.CreatedAt = now
	r.l.nonces[n.Nonce] = &c
	return true, nil
}

func (r *fakeNonces) Get(_ context.Context, nonce string, now time.Time) (*models.UsedNonce, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if e, ok := r.l.nonces[nonce]; ok && e.ExpiresAt.After(now) {
		c := *e
		return &c, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeNonces) Exists(ctx context.Context, nonce string, now time.Time) (bool, error) {
	if err := r.l.err("nonces.Exists"); err != nil {
		return false, err
	}
	_, err := r.Get(ctx, nonce, now)
	return err == nil, nil
}

func (r *fakeNonces) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("nonces.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for k, e := range r.l.nonces {
		if !e.ExpiresAt.After(now) {
			delete(r.l.nonces, k)
			n++
		}
	}
	return n, nil
}

type fakeConflicts struct{ l *fakeLedger }

func (r *fakeConflicts) Create(_ context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.err("conflicts.Create"); err != nil {
		return nil, err
	}
	for _, open := range r.l.conflicts {
		if open.TransactionHash == c.TransactionHash && open.Type == c.Type && !open.Status.Final() {
			out := *open
			return &out, nil
		}
	}
	s := *c
	s.ID = r.l.nextID()
	r.l.conflicts[s.ID] = &s
	out := s
	return &out, nil
}

func (r *fakeConflicts) Get(_ context.Context, id string) (*models.SyncConflict, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	c, ok := r.l.conflicts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (r *fakeConflicts) ListOpen(_ context.Context, senderID string) ([]*models.SyncConflict, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []*models.SyncConflict
	for _, c := range r.l.conflicts {
		if c.SenderID == senderID && !c.Status.Final() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeConflicts) UpdateStatus(_ context.Context, id string, status models.ResolutionStatus, resolvedAt *time.Time, notes string) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	c, ok := r.l.conflicts[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Status = status
	c.ResolvedAt = resolvedAt
	c.Notes = notes
	return nil
}

type fakeSessions struct{ l *fakeLedger }

func (r *fakeSessions) Create(_ context.Context, t *models.RefreshToken) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	c := *t
	r.l.sessions[t.TokenHash] = &c
	return nil
}

func (r *fakeSessions) Find(_ context.Context, hash string) (*models.RefreshToken, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	t, ok := r.l.sessions[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *fakeSessions) Delete(_ context.Context, hash string) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.sessions[hash]; !ok {
		return 0, nil
	}
	delete(r.l.sessions, hash)
	return 1, nil
}

func (r *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var n int64
	for k, t := range r.l.sessions {
		if !t.ExpiresAt.After(now) {
			delete(r.l.sessions, k)
			n++
		}
	}
	return n, nil
}

// -------- test environment --------

type testEnv struct {
	t      *testing.T
	db     *sql.DB
	mock   sqlmock.Sqlmock
	ledger *fakeLedger
	m      *fakeManager
	cfg    *config.Config
	now    time.Time
	keys   *KeyService
	nonces *NonceGuard
}

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	e := &testEnv{t: t, db: db, mock: mock, ledger: newFakeLedger(), cfg: cfg, now: baseTime}
	e.m = &fakeManager{l: e.ledger}
	e.rebuild()

	e.ledger.addUser(alice, "+2348000000001", "Alice", "1000.00")
	e.ledger.addUser(bob, "+2348000000002", "Bob", "0.00")
	e.ledger.addUser(carol, "+2348000000003", "Carol", "0.00")
	return e
}

// rebuild recreates the shared services after cfg changed.
func (e *testEnv) rebuild() {
	e.keys = NewKeyService(e.db, e.m, e.cfg, nil)
	e.keys.now = e.clock
	e.nonces = NewNonceGuard(e.db, e.m, e.cfg, nil, nil)
	e.nonces.now = e.clock
}

func (e *testEnv) clock() time.Time { return e.now }

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

// addKey installs an active key for owner without going through a
// transaction. With sealed set the private half is stored as in demo mode.
func (e *testEnv) addKey(owner string, alg cryptox.Algorithm, sealed bool) crypto.Signer {
	e.t.Helper()
	priv, err := cryptox.GenerateKey(alg)
	if err != nil {
		e.t.Fatalf("generate key: %v", err)
	}
	pub, err := cryptox.MarshalPublicKey(priv.Public())
	if err != nil {
		e.t.Fatalf("marshal key: %v", err)
	}
	kp := &models.KeyPair{
		OwnerID:   owner,
		Algorithm: alg,
		KeySize:   alg.KeySize(),
		PublicKey: pub,
		ExpiresAt: e.now.Add(models.DefaultKeyValidity),
	}
	if sealed {
		der, err := cryptox.MarshalPrivateKey(priv)
		if err != nil {
			e.t.Fatalf("marshal private key: %v", err)
		}
		kp.SealedPrivateKey, err = cryptox.Seal(der, []byte(e.cfg.KeySealingSecret))
		if err != nil {
			e.t.Fatalf("seal: %v", err)
		}
	}
	repo := &fakeKeys{e.ledger}
	if _, err := repo.RevokeActive(context.Background(), owner, e.now); err != nil {
		e.t.Fatalf("revoke: %v", err)
	}
	if _, err := repo.Create(context.Background(), kp); err != nil {
		e.t.Fatalf("create key: %v", err)
	}
	return priv
}

func (e *testEnv) expectTx(commit bool) {
	e.mock.ExpectBegin()
	if commit {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) expectLockedTx(key string, commit bool) {
	e.mock.ExpectBegin()
	e.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if commit {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) expectationsMet() {
	e.t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		e.t.Fatalf("unmet sql expectations: %v", err)
	}
}

// chain builds a signed, correctly linked run of transactions from sender
// to recipient, one minute apart, starting at start.
func chain(t *testing.T, signer crypto.Signer, alg cryptox.Algorithm, sender, recipient, prev string, start time.Time, amounts ...string) []*models.OfflineTransaction {
	t.Helper()
	var out []*models.OfflineTransaction
	for i, a := range amounts {
		tx := &models.OfflineTransaction{
			PreviousHash:    prev,
			SenderID:        sender,
			RecipientID:     recipient,
			Amount:          decimal.RequireFromString(a),
			Currency:        "NGN",
			Nonce:           uuid.NewString(),
			Algorithm:       alg,
			ClientTimestamp: start.Add(time.Duration(i) * time.Minute),
			Channel:         models.ChannelBatch,
			Status:          models.StatusPending,
		}
		resign(t, tx, signer)
		prev = tx.Hash
		out = append(out, tx)
	}
	return out
}

// resign recomputes hash and signature after a test edited the fields.
func resign(t *testing.T, tx *models.OfflineTransaction, signer crypto.Signer) {
	t.Helper()
	tx.Hash = cryptox.HashTransaction(tx.Fields())
	if signer == nil {
		tx.Signature = common.UnsignedPlaceholder
		return
	}
	sig, err := cryptox.Sign(cryptox.CanonicalPayload(tx.Fields()), signer, tx.Algorithm)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.Signature = cryptox.EncodeSignature(sig)
}
