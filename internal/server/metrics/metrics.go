// Package metrics exposes Prometheus collectors for the payment protocol.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "offpay"

type Collectors struct {
	nonceClaims     *prometheus.CounterVec
	securityEvents  *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	batches         *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	paymentRequests *prometheus.CounterVec
	nfcPayloads     *prometheus.CounterVec
	noncesExpired   prometheus.Counter
}

var (
	once     sync.Once
	registry *Collectors
)

// Default returns the process-wide collectors, registering them on first use.
func Default() *Collectors {
	once.Do(func() {
		registry = New()
		registry.MustRegister(prometheus.DefaultRegisterer)
	})
	return registry
}

// New builds an unregistered set of collectors.
func New() *Collectors {
	return &Collectors{
		nonceClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nonce",
			Name:      "claims_total",
			Help:      "Nonce claims by outcome (accepted, rejected).",
		}, []string{"outcome"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Suspected replay, forgery and tampering events by kind.",
		}, []string{"kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "conflicts_total",
			Help:      "Sync conflicts recorded by type.",
		}, []string{"type"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "batches_total",
			Help:      "Reconciliation batches by outcome (safe, partial, rejected, error).",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent reconciling one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		paymentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qr",
			Name:      "requests_total",
			Help:      "Payment request lifecycle events (created, consumed, invalid).",
		}, []string{"event"}),
		nfcPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nfc",
			Name:      "payloads_total",
			Help:      "NFC payloads built or validated by result.",
		}, []string{"result"}),
		noncesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nonce",
			Name:      "expired_total",
			Help:      "Nonces purged by the sweeper.",
		}),
	}
}

func (c *Collectors) MustRegister(r prometheus.Registerer) {
	r.MustRegister(c.nonceClaims, c.securityEvents, c.conflicts, c.batches,
		c.batchDuration, c.paymentRequests, c.nfcPayloads, c.noncesExpired)
}

func (c *Collectors) NonceClaim(accepted bool) {
	if c == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	c.nonceClaims.WithLabelValues(outcome).Inc()
}

func (c *Collectors) SecurityEvent(kind string) {
	if c == nil {
		return
	}
	c.securityEvents.WithLabelValues(normalize(kind)).Inc()
}

func (c *Collectors) Conflict(kind string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(normalize(kind)).Inc()
}

func (c *Collectors) Batch(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.batches.WithLabelValues(outcome).Inc()
	c.batchDuration.Observe(took.Seconds())
}

func (c *Collectors) PaymentRequest(event string) {
	if c == nil {
		return
	}
	c.paymentRequests.WithLabelValues(event).Inc()
}

func (c *Collectors) NFCPayload(result string) {
	if c == nil {
		return
	}
	c.nfcPayloads.WithLabelValues(result).Inc()
}

func (c *Collectors) NoncesExpired(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.noncesExpired.Add(float64(n))
}

func normalize(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
