package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/auth"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccountService opens ledger accounts and manages device sessions.
type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	demo                         bool
	now                          clock
	logger                       logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger) *AccountService {
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		demo:                         cfg.StorePrivateKeys,
		now:                          systemClock,
		logger:                       moduleLogger(l, "accounts"),
	}
}

// OpenAccount creates an account for phone and starts a session. A non-zero
// opening balance is only honoured in demo mode.
func (s *AccountService) OpenAccount(ctx context.Context, phone, displayName string, opening decimal.Decimal) (*models.User, *TokenPair, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil, fmt.Errorf("%w: phone number is required", common.ErrValidation)
	}
	if opening.IsNegative() || !cryptox.ValidAmountScale(opening) {
		return nil, nil, fmt.Errorf("%w: opening balance %s", common.ErrInvalidAmount, opening)
	}
	if !opening.IsZero() && !s.demo {
		return nil, nil, fmt.Errorf("%w: opening balance requires demo mode", common.ErrValidation)
	}

	var (
		user *models.User
		pair *TokenPair
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if _, err := repo.GetByPhone(ctx, phone); err == nil {
			return fmt.Errorf("%w: %s", common.ErrAccountExists, phone)
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		var err error
		user, err = repo.Create(ctx, &models.User{PhoneNumber: phone, DisplayName: displayName, Balance: opening})
		if err != nil {
			return fmt.Errorf("error creating account: %w", err)
		}
		pair, err = s.generateTokenPair(ctx, user.ID, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "account opened", "user_id", user.ID)
	return user, pair, nil
}

// RefreshToken rotates a refresh token and returns a fresh pair. Expired
// tokens yield common.ErrRefreshTokenExpired; unknown or already rotated
// tokens yield common.ErrorUnauthorized.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := tokenHash(refreshToken)

	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if !token.ExpiresAt.After(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.RefreshTokens(tx).Delete(ctx, hash)
		if err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		if n == 0 {
			return common.ErrorUnauthorized
		}
		pair, err = s.generateTokenPair(ctx, token.UserID, tx)
		return err
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Account returns the account with its current balance.
func (s *AccountService) Account(ctx context.Context, userID string) (*models.User, error) {
	if err := checkID("user", userID); err != nil {
		return nil, err
	}
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

// ChainHead returns the hash the account's next offline transaction must
// chain onto.
func (s *AccountService) ChainHead(ctx context.Context, userID string) (string, error) {
	if err := checkID("user", userID); err != nil {
		return "", err
	}
	return NewLedger(s.db, s.repomanager).LastSyncedHash(ctx, userID)
}

// ExpireSessions removes refresh tokens past their expiry.
func (s *AccountService) ExpireSessions(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

func (s *AccountService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	err = s.repomanager.RefreshTokens(tx).Create(ctx, &models.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash(refresh),
		ExpiresAt: s.now().Add(s.refreshTokenValidityDuration),
	})
	if err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
