package transactions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var txColumns = []string{"id", "hash", "previous_hash", "sender_id", "recipient_id", "amount", "currency", "nonce",
	"algorithm", "signature", "client_timestamp", "channel", "status", "sync_attempts", "raw_payload", "created_at", "synced_at"}

func sampleTx() *models.OfflineTransaction {
	return &models.OfflineTransaction{
		Hash:            "h1",
		PreviousHash:    cryptox.GenesisHash,
		SenderID:        "s",
		RecipientID:     "r",
		Amount:          decimal.NewFromInt(500),
		Currency:        "NGN",
		Nonce:           "n1",
		Algorithm:       cryptox.AlgorithmECDSA,
		Signature:       "sig",
		ClientTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Channel:         models.ChannelNFC,
		Status:          models.StatusPending,
		RawPayload:      []byte("{}"),
	}
}

func TestSave_Upsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	tx := sampleTx()
	q := `(?s)^INSERT\s+INTO\s+offline_transactions.*ON\s+CONFLICT\s+\(hash\)\s+DO\s+UPDATE\s+SET.*sync_attempts\s*=\s*offline_transactions\.sync_attempts\s*\+\s*1.*WHERE\s+offline_transactions\.status\s+NOT\s+IN\s+\('SYNCED',\s*'FAILED'\)\s*$`
	mock.ExpectExec(q).
		WithArgs("h1", cryptox.GenesisHash, "s", "r", "500", "NGN", "n1", "ECDSA", "sig",
			tx.ClientTimestamp, "NFC", "PENDING", 0, []byte("{}"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), tx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+offline_transactions`).WillReturnError(errors.New("down"))
	assert.ErrorContains(t, repo.Save(context.Background(), sampleTx()), "db error: down")
}

func TestGetByHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)^SELECT\s+id,\s*hash,.*FROM\s+offline_transactions\s+WHERE\s+hash\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("h1").WillReturnRows(sqlmock.NewRows(txColumns).AddRow(
		"t-1", "h1", cryptox.GenesisHash, "s", "r", "500.00", "NGN", "n1",
		"RSA", "sig", now, "QR", "SYNCED", 2, nil, now, now))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByHash(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, models.ChannelQR, got.Channel)
	assert.Equal(t, cryptox.AlgorithmRSA, got.Algorithm)
	assert.Equal(t, 2, got.SyncAttempts)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(500)))

	_, err = repo.GetByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLastSynced(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.*FROM\s+offline_transactions\s+WHERE\s+sender_id\s*=\s*\$1\s+AND\s+status\s*=\s*'SYNCED'\s+ORDER\s+BY\s+synced_at\s+DESC,\s*client_timestamp\s+DESC,\s*hash\s+DESC\s+LIMIT\s+1\s*$`
	mock.ExpectQuery(q).WithArgs("fresh").WillReturnError(sql.ErrNoRows)

	_, err := repo.LastSynced(context.Background(), "fresh")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+offline_transactions\s+SET\s+status\s*=\s*\$2,\s*synced_at\s*=\s*\$3\s+WHERE\s+hash\s*=\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs("h1", "FAILED", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("h2", "FAILED", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), "h1", models.StatusFailed, nil))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "h2", models.StatusFailed, nil), common.ErrorNotFound)
}
