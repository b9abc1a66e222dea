package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Record(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	c.MustRegister(reg)

	c.NonceClaim(true)
	c.NonceClaim(false)
	c.NonceClaim(false)
	c.SecurityEvent("nonce_reused")
	c.Conflict("")
	c.Batch("safe", 20*time.Millisecond)
	c.PaymentRequest("created")
	c.NFCPayload("valid")
	c.NoncesExpired(4)
	c.NoncesExpired(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.nonceClaims.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.nonceClaims.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.securityEvents.WithLabelValues("NONCE_REUSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conflicts.WithLabelValues("UNKNOWN")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.noncesExpired))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollectors_NilSafe(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.NonceClaim(true)
		c.SecurityEvent("x")
		c.Conflict("x")
		c.Batch("safe", time.Second)
		c.PaymentRequest("created")
		c.NFCPayload("valid")
		c.NoncesExpired(1)
	})
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
