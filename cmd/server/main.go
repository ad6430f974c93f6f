package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/messaging"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "stockledger",
		Usage: "per-warehouse stock ledger and transaction state machine",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP and gRPC servers",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "product", Usage: "seed a product as SKU:Name:Price"},
					&cli.StringSliceFlag{Name: "warehouse", Usage: "seed a warehouse as Name:Capacity"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply schema migrations",
				Action: migrateSchema,
			},
			{
				Name:   "reconcile",
				Usage:  "recompute every product's aggregate stock from the ledger",
				Action: reconcile,
			},
			{
				Name:  "seed",
				Usage: "add catalog entries",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "product", Usage: "SKU:Name:Price"},
					&cli.StringSliceFlag{Name: "warehouse", Usage: "Name:Capacity"},
				},
				Action: seed,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("stockledger: %v", err)
	}
}

type deps struct {
	db    port.DatabaseRepository
	cache port.CacheRepository
	close func()
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}
	var closers []func()
	d.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		d.db = storage.NewMemoryAdapter()
		logger.Info("using in-memory store")
	default:
		if cfg.MigrateOnStart {
			if err := storage.Migrate(cfg.MySQLDSN); err != nil {
				return nil, err
			}
			logger.Info("schema migrated")
		}
		db, err := storage.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { db.Close() })
		d.db = storage.NewMySQLAdapter(db, cfg.TxRetries)
		logger.Info("connected to mysql")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			d.close()
			return nil, errors.Wrap(err, "connect redis")
		}
		closers = append(closers, func() { rdb.Close() })
		d.cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	return d, nil
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	if err := seedCatalog(ctx, d.db, c.StringSlice("product"), c.StringSlice("warehouse"), logger); err != nil {
		return err
	}

	txService := service.NewTransactionService(d.db, d.cache, logger, service.Options{
		QueueSize:      cfg.QueueSize,
		NumberAttempts: cfg.NumberAttempts,
	})

	var publisher port.EventPublisher = messaging.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing stock events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	var workers sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			messaging.WorkerLoop(id, txService.Events(), publisher, logger)
		}(i)
	}
	logger.Info("started event workers", zap.Int("count", cfg.WorkerCount))

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(txService))
	healthServer.SetServingStatus(config.ServiceName, healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(txService, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return errors.Wrap(err, "listen grpc")
		}
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	txService.Close()
	workers.Wait()
	if closeErr := publisher.Close(); closeErr != nil {
		logger.Warn("closing publisher", zap.Error(closeErr))
	}
	logger.Info("workers stopped")
	return err
}

func migrateSchema(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store != config.StoreMySQL {
		return errors.New("migrate requires LEDGER_STORE=mysql")
	}
	if err := storage.Migrate(cfg.MySQLDSN); err != nil {
		return err
	}
	log.Println("schema up to date")
	return nil
}

func reconcile(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := buildDeps(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	_, err = service.NewProjection(d.db, d.cache, logger).RebuildAll(c.Context)
	return err
}

func seed(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := buildDeps(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	return seedCatalog(c.Context, d.db, c.StringSlice("product"), c.StringSlice("warehouse"), logger)
}
