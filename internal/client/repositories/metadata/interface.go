package metadata

import (
	"context"
)

// Keys under which the wallet keeps its account state.
const (
	KeyUserID       = "user_id"
	KeyPhoneNumber  = "phone_number"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyKeyID        = "key_id"
	KeyAlgorithm    = "key_algorithm"
	KeyPublicKey    = "public_key"
	KeyBalance      = "server_balance"
	KeyChainHead    = "server_chain_head"
	KeyLastSync     = "last_sync"
)

// Repository is a small key/value table. Get returns common.ErrorNotFound
// for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
