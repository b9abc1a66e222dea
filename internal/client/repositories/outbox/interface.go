package outbox

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Append(ctx context.Context, tx *models.Transaction) error
	Head(ctx context.Context) (string, bool, error)
	GetByHash(ctx context.Context, hash string) (*models.Transaction, error)
	Pending(ctx context.Context, limit int) ([]models.Transaction, error)
	List(ctx context.Context, statuses ...models.Status) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, hash string, status models.Status, reason string, at time.Time) error
	RecordAttempt(ctx context.Context, hash string, lastError string) error
	OpenTotal(ctx context.Context) (decimal.Decimal, error)
}
