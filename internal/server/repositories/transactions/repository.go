package transactions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type Repository interface {
	Save(ctx context.Context, tx *models.OfflineTransaction) error
	GetByHash(ctx context.Context, hash string) (*models.OfflineTransaction, error)
	LastSynced(ctx context.Context, senderID string) (*models.OfflineTransaction, error)
	UpdateStatus(ctx context.Context, hash string, status models.SyncStatus, syncedAt *time.Time) error
}
