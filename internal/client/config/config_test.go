package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, "wallet.db", c.DatabaseDSN)
	assert.Equal(t, "wallet.key", c.KeyFile)
	assert.Equal(t, "NGN", c.Currency)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 100, c.BatchSize)
	assert.Empty(t, c.LogFile)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"offpay-wallet", "sync"}

	cfg := LoadConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "127.0.0.1:50051", cfg.ServerEndpointAddr)
}
