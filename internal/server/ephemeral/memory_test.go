package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ExpiryFollowsClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), 5*time.Minute))

	now = now.Add(4*time.Minute + 59*time.Second)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	got, err := s.ScanPrefix(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_TakeOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), time.Minute))

	v, err := s.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = s.Take(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.SetWithTTL(ctx, "k", buf, time.Minute))
	buf[0] = 'x'

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
	assert.ErrorIs(t, s.SetWithTTL(ctx, "k", buf, -time.Second), common.ErrValidation)
}
