package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Delete(ctx context.Context, tokenHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
