// Package services contains the wallet's application services: account
// registration and session state, key provisioning, and outbox sync.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/shopspring/decimal"
)

var ErrAlreadyRegistered = errors.New("wallet already registered")

// Account is the locally cached view of the server account.
type Account struct {
	UserID      string
	PhoneNumber string
	DisplayName string
	Balance     decimal.Decimal
	Spendable   decimal.Decimal
	ChainHead   string
	LastSync    string
}

type AccountService interface {
	Register(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*Account, error)
	Restore(ctx context.Context) error
	Refresh(ctx context.Context) (*Account, error)
	Local(ctx context.Context) (*Account, error)
	SaveTokens(access, refresh string)
	Ping(ctx context.Context) error
	Forget(ctx context.Context) error
}

type accountService struct {
	client client.Client
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

func NewAccountService(c client.Client, db *sql.DB, logger logging.Logger) AccountService {
	return &accountService{client: c, db: db, logger: logger, now: time.Now}
}

// Register opens the account on the server and stores the identity and
// session tokens on the device.
func (a *accountService) Register(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*Account, error) {
	meta := metadata.NewSQLiteRepository(a.db)
	existing, err := metadata.GetString(ctx, meta, metadata.KeyUserID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, existing)
	}

	resp, err := a.client.OpenAccount(ctx, phone, displayName, opening)
	if err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, metadata.NewSQLiteRepository(tx), map[string]string{
			metadata.KeyUserID:       resp.UserID,
			metadata.KeyPhoneNumber:  phone,
			metadata.KeyAccessToken:  resp.AccessToken,
			metadata.KeyRefreshToken: resp.RefreshToken,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	a.logger.Info(ctx, "account registered", "user_id", resp.UserID)

	return a.Refresh(ctx)
}

// Restore hands the stored session tokens to the client.
func (a *accountService) Restore(ctx context.Context) error {
	meta := metadata.NewSQLiteRepository(a.db)
	access, err := metadata.GetString(ctx, meta, metadata.KeyAccessToken)
	if err != nil {
		return err
	}
	refresh, err := metadata.GetString(ctx, meta, metadata.KeyRefreshToken)
	if err != nil {
		return err
	}
	if refresh == "" {
		return client.ErrUnauthorized
	}
	a.client.SetTokens(access, refresh)
	return nil
}

// Refresh pulls balance and chain head from the server and caches them for
// offline use.
func (a *accountService) Refresh(ctx context.Context) (*Account, error) {
	resp, err := a.client.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	head := resp.ChainHead
	if head == "" {
		head = cryptox.GenesisHash
	}
	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, metadata.NewSQLiteRepository(tx), map[string]string{
			metadata.KeyBalance:   cryptox.FormatAmount(resp.Balance),
			metadata.KeyChainHead: head,
			metadata.KeyLastSync:  a.now().UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache account: %w", err)
	}

	acc, err := a.Local(ctx)
	if err != nil {
		return nil, err
	}
	acc.DisplayName = resp.DisplayName
	return acc, nil
}

// Local reads the cached account without contacting the server.
func (a *accountService) Local(ctx context.Context) (*Account, error) {
	meta := metadata.NewSQLiteRepository(a.db)
	values, err := meta.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(values[metadata.KeyUserID]) == 0 {
		return nil, client.ErrUnauthorized
	}

	acc := &Account{
		UserID:      string(values[metadata.KeyUserID]),
		PhoneNumber: string(values[metadata.KeyPhoneNumber]),
		ChainHead:   string(values[metadata.KeyChainHead]),
		LastSync:    string(values[metadata.KeyLastSync]),
	}
	if raw := string(values[metadata.KeyBalance]); raw != "" {
		if acc.Balance, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("corrupt stored balance %q: %w", raw, err)
		}
	}

	open, err := outbox.NewSQLiteRepository(a.db).OpenTotal(ctx)
	if err != nil {
		return nil, err
	}
	acc.Spendable = acc.Balance.Sub(open)
	return acc, nil
}

// SaveTokens persists a refreshed token pair. It matches client.TokenSink.
func (a *accountService) SaveTokens(access, refresh string) {
	ctx := context.Background()
	err := metadata.SetStrings(ctx, metadata.NewSQLiteRepository(a.db), map[string]string{
		metadata.KeyAccessToken:  access,
		metadata.KeyRefreshToken: refresh,
	})
	if err != nil {
		a.logger.Error(ctx, "failed to persist refreshed tokens", "error", err)
	}
}

func (a *accountService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Forget wipes the cached identity and session. The outbox is kept.
func (a *accountService) Forget(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Clear(ctx)
}
