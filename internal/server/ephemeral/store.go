// Package ephemeral provides a key/value store whose entries expire on their
// own. Payment requests live here: the store, not the application, decides
// when a request is gone.
package ephemeral

import (
	"context"
	"time"
)

// Store is an expiring key/value store. Get and Take return
// common.ErrorNotFound for missing or expired keys.
type Store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Take atomically reads and deletes key. Of several concurrent callers
	// at most one receives the value.
	Take(ctx context.Context, key string) ([]byte, error)
	ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}
