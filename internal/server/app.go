// Package server assembles the offpay ledger server: storage, domain
// services, the gRPC API, the ops endpoint and the nonce sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/ephemeral"
	gs "github.com/dmitrijs2005/offpay/internal/server/grpc"
	"github.com/dmitrijs2005/offpay/internal/server/metrics"
	"github.com/dmitrijs2005/offpay/internal/server/ops"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/offpay/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// seams for tests
var (
	openDB               = sql.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newRedisStore        = ephemeral.NewRedisStore
	newAuditArchive      = services.NewAuditArchive
	defaultGatherer      = prometheus.Gatherer(prometheus.DefaultGatherer)
	defaultMetrics       = metrics.Default
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	store   ephemeral.Store
	grpc    *gs.GRPCServer
	ops     *ops.Server
	sweeper *services.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(logging.NewOutput(logging.FileOptions{
		Path:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}))

	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	db, err := openDB("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var store ephemeral.Store
	checks := map[string]ops.Check{"postgres": db.PingContext}
	if c.RedisAddr != "" {
		rs, err := newRedisStore(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ephemeral store error: %w", err)
		}
		store = rs
		checks["redis"] = rs.Ping
	} else {
		logger.Warn(ctx, "redis not configured, payment requests are kept in process memory")
		store = ephemeral.NewMemoryStore()
	}

	archive, err := newAuditArchive(ctx, c, logger)
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("audit archive error: %w", err)
	}
	if archive == nil {
		logger.Warn(ctx, "audit archive disabled, reconciliation reports are not retained")
	}

	mc := defaultMetrics()

	accounts := services.NewAccountService(db, rm, c, logger)
	keys := services.NewKeyService(db, rm, c, logger)
	nonces := services.NewNonceGuard(db, rm, c, logger, mc)
	broker := services.NewPaymentRequestBroker(db, rm, store, keys, nonces, c, logger, mc)
	codec := services.NewOfflinePayloadCodec(db, rm, keys, nonces, c, logger, mc)
	reconciler := services.NewChainReconciler(db, rm, keys, nonces, archive, c, logger, mc)
	conflicts := services.NewConflictResolver(db, rm, logger)

	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Accounts:   accounts,
		Keys:       keys,
		Requests:   broker,
		Payments:   codec,
		Reconciler: reconciler,
		Conflicts:  conflicts,
	}, c.SecretKey, c.RateLimitRPS, c.RateLimitBurst)

	opsServer := ops.NewServer(c.EndpointAddrHTTP, ops.NewRouter(defaultGatherer, checks), logger)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		store:   store,
		grpc:    grpcServer,
		ops:     opsServer,
		sweeper: services.NewSweeper(nonces, keys, accounts, c.NonceSweepInterval, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until a signal arrives or one component fails, then stops the
// rest and releases storage.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.ops.Run(gctx) })
	g.Go(func() error { return app.sweeper.Run(gctx) })

	err := g.Wait()

	if cerr := app.store.Close(); cerr != nil {
		app.logger.Error(ctx, "ephemeral store close error", "error", cerr)
	}
	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close error", "error", cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
