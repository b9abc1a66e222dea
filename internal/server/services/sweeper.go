package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/offpay/internal/logging"
)

// Sweeper periodically purges expired nonces and sessions and revokes
// expired keys.
type Sweeper struct {
	nonces   *NonceGuard
	keys     *KeyService
	accounts *AccountService
	interval time.Duration
	now      clock
	logger   logging.Logger
}

func NewSweeper(n *NonceGuard, k *KeyService, a *AccountService, interval time.Duration, l logging.Logger) *Sweeper {
	return &Sweeper{
		nonces:   n,
		keys:     k,
		accounts: a,
		interval: interval,
		now:      systemClock,
		logger:   moduleLogger(l, "sweeper"),
	}
}

// SweepOnce runs one pass. Failures are logged and do not stop later passes.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if n, err := s.nonces.Expire(ctx, s.now()); err != nil {
		s.logger.Error(ctx, "nonce sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info(ctx, "expired nonces purged", "count", n)
	}

	if s.keys != nil {
		if _, err := s.keys.ExpireStale(ctx); err != nil {
			s.logger.Error(ctx, "key sweep failed", "error", err)
		}
	}
	if s.accounts != nil {
		if _, err := s.accounts.ExpireSessions(ctx); err != nil {
			s.logger.Error(ctx, "session sweep failed", "error", err)
		}
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Warn(ctx, "sweeper disabled", "interval", s.interval)
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
