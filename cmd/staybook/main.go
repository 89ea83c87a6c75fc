package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"staybook/internal/app/engine"
	"staybook/internal/app/middleware"
	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/policies"
	"staybook/internal/app/sweeper"
	"staybook/internal/app/uow"
	"staybook/internal/infra/broker/kafka"
	"staybook/internal/infra/config"
	"staybook/internal/infra/db/mongo"
	"staybook/internal/infra/db/sqlite"
	"staybook/internal/infra/fixtures"
	ginserver "staybook/internal/infra/http/gin"
	"staybook/internal/infra/obs"
	infraoutbox "staybook/internal/infra/outbox"
	redisstore "staybook/internal/infra/redis"
	"staybook/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("cannot read .env", "error", err)
	}
	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("staybook stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("staybook stopped")
}

// storage bundles whatever the selected driver provides.
type storage struct {
	factory  uow.Factory
	flusher  appoutbox.Flusher
	notify   <-chan struct{}
	outbox   infraoutbox.Store
	idem     middleware.IdempotencyStore
	check    obs.Check
	shutdown func(context.Context) error
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &storage{
			factory:  sqlite.NewFactory(db),
			flusher:  db,
			notify:   db.Notify(),
			outbox:   sqlite.OutboxStore{DB: db},
			check:    db.Ping,
			shutdown: func(context.Context) error { return db.Close() },
		}, nil
	case config.DriverMongo:
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("prepare mongo: %w", err)
		}
		idem, err := mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("prepare idempotency: %w", err)
		}
		factory := mongo.NewFactory(client.DB)
		return &storage{
			factory:  factory,
			flusher:  factory,
			notify:   factory.Notify(),
			outbox:   mongo.NewOutboxStore(client.DB),
			idem:     idem,
			check:    client.Ping,
			shutdown: client.Disconnect,
		}, nil
	default:
		db := memory.NewDB()
		return &storage{
			factory:  memory.NewFactory(db),
			flusher:  db,
			notify:   db.Notify(),
			outbox:   memory.OutboxStore{DB: db},
			shutdown: func(context.Context) error { return nil },
		}, nil
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.shutdown(closeCtx); err != nil {
			logger.Error("storage close failed", "error", err)
		}
	}()
	checks := map[string]obs.Check{}
	if store.check != nil {
		checks["storage"] = store.check
	}

	var locker policies.Locker = memory.NewLocker()
	idem := store.idem
	if cfg.RedisAddr != "" {
		rdb := redisstore.NewClient(cfg)
		defer rdb.Close()
		if err := redisstore.Ping(ctx, rdb); err != nil {
			return err
		}
		locker = redisstore.NewLocker(rdb)
		idem = redisstore.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
		checks["redis"] = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	if idem == nil {
		idem = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	eng := engine.New(engine.Options{
		UoWFactory:      store.factory,
		Locker:          locker,
		Idempotency:     idem,
		Flusher:         store.flusher,
		Logger:          logger,
		Observer:        metrics,
		DefaultDeadline: cfg.DefaultBookingDeadline,
		ConflictRetries: 2,
		RetryBackoff:    10 * time.Millisecond,
	})

	fixturesPath := cfg.ItemsFixtures
	if fixturesPath == "" {
		fixturesPath = fixtures.DefaultPath()
	}
	rep, err := fixtures.LoadFile(ctx, fixturesPath, eng.Commands, logger)
	if err != nil {
		logger.Warn("item fixtures load failed", "error", err, "path", fixturesPath)
	} else if rep.Items > 0 {
		logger.Info("item fixtures loaded", "items", rep.Items, "batches", rep.Batches, "skipped", rep.Skipped)
	}

	var producer infraoutbox.Producer = infraoutbox.LogProducer{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.NewConfig("staybook-relay"))
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer kp.Close()
		producer = kp
	}
	relay := &infraoutbox.Worker{
		Store:       store.outbox,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Wake:        store.notify,
		Logger:      logger.With("component", "outbox"),
	}
	sweep := &sweeper.Sweeper{
		Bus:        eng.Commands,
		UoWFactory: store.factory,
		Logger:     logger.With("component", "sweeper"),
		Interval:   cfg.SweepInterval,
	}

	handlers := ginserver.NewHandlers(eng.Commands, eng.Queries, logger)
	handlers.Metrics = ginserver.MetricsHandler(reg)
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Metrics: metrics},
		obs.HealthHandlers{Checks: checks, Timeout: 2 * time.Second}, handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(relay.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(sweep.Run(gctx)) })
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
