package nonces

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type Repository interface {
	Claim(ctx context.Context, n *models.UsedNonce, now time.Time) (bool, error)
	Get(ctx context.Context, nonce string, now time.Time) (*models.UsedNonce, error)
	Exists(ctx context.Context, nonce string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
