package conflicts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error)
	Get(ctx context.Context, id string) (*models.SyncConflict, error)
	ListOpen(ctx context.Context, senderID string) ([]*models.SyncConflict, error)
	UpdateStatus(ctx context.Context, id string, status models.ResolutionStatus, resolvedAt *time.Time, notes string) error
}
