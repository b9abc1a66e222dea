package keypairs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.KeyPair) (*models.KeyPair, error)
	GetActive(ctx context.Context, ownerID string) (*models.KeyPair, error)
	RevokeActive(ctx context.Context, ownerID string, at time.Time) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
