package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"cdr.dev/slog/v3/sloggers/slogjson"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/xerrors"

	"example.com/exercisetracker/internal/api"
	"example.com/exercisetracker/internal/config"
	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/idgen"
	"example.com/exercisetracker/internal/outbox"
	"example.com/exercisetracker/internal/persistence"
	"example.com/exercisetracker/internal/persistence/memory"
	"example.com/exercisetracker/internal/persistence/migrations"
	mongostore "example.com/exercisetracker/internal/persistence/mongo"
	pgstore "example.com/exercisetracker/internal/persistence/postgres"
	"example.com/exercisetracker/internal/persistence/sqlite"
	httptransport "example.com/exercisetracker/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := newLogger(os.Stderr, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal(ctx, "failed to open store", slog.F("driver", cfg.StoreDriver), slog.Error(err))
	}

	var dispatcher *outbox.Dispatcher
	var producer *outbox.KafkaProducer
	if store.pool != nil && cfg.OutboxEnabled() {
		outboxLogger := logger.Named("outbox")
		producer = outbox.NewKafkaProducer(cfg.KafkaBrokers, outboxLogger)
		dispatcher = outbox.NewDispatcher(pgstore.NewOutboxStore(store.pool), producer, outboxLogger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	service := domain.NewService(store.repo, idgen.New)
	handler := api.NewHandler(service, logger.Named("api"))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.HTTPAddress,
		Logger:  logger.Named("http"),
	}, handler.Router(api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        promhttp.Handler(),
		RateLimit:      cfg.RateLimit,
		RateWindow:     cfg.RateWindow,
	}))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, "exercise tracker listening",
			slog.F("address", cfg.HTTPAddress),
			slog.F("store", cfg.StoreDriver),
			slog.F("outbox", dispatcher != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "server error", slog.Error(err))
		}
	}()

	<-shutdownCh
	logger.Info(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", slog.Error(err))
	}

	cancel()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn(ctx, "close kafka producer", slog.Error(err))
		}
	}
	if err := store.close(shutdownCtx); err != nil {
		logger.Warn(ctx, "close store", slog.Error(err))
	}
}

func newLogger(w io.Writer, cfg config.Config) slog.Logger {
	var logger slog.Logger
	switch cfg.LogFormat {
	case "json":
		logger = slog.Make(slogjson.Sink(w))
	default:
		logger = slog.Make(sloghuman.Sink(w))
	}

	switch cfg.LogLevel {
	case "debug":
		return logger.Leveled(slog.LevelDebug)
	case "warn":
		return logger.Leveled(slog.LevelWarn)
	case "error":
		return logger.Leveled(slog.LevelError)
	default:
		return logger.Leveled(slog.LevelInfo)
	}
}

// openedStore is the repository picked by STORE_DRIVER together with what
// must be released on shutdown. pool is only set for Postgres.
type openedStore struct {
	repo  domain.Repository
	pool  *pgxpool.Pool
	close func(context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger slog.Logger) (openedStore, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn(ctx, "using in-memory store, data is lost on restart")
		return openedStore{repo: memory.NewRepository(), close: noop}, nil

	case config.DriverPostgres:
		pool, err := persistence.Connect(ctx, logger, cfg.StoreConnectTimeout, func(ctx context.Context) (*pgxpool.Pool, error) {
			return pgstore.Dial(ctx, cfg.PostgresURL)
		})
		if err != nil {
			return openedStore{}, err
		}
		if err := migrations.Up(cfg.PostgresURL); err != nil {
			pool.Close()
			return openedStore{}, err
		}
		return openedStore{
			repo: pgstore.NewRepository(pool),
			pool: pool,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverMongo:
		client, err := persistence.Connect(ctx, logger, cfg.StoreConnectTimeout, func(ctx context.Context) (*mongodriver.Client, error) {
			return mongostore.Dial(ctx, cfg.MongoURI)
		})
		if err != nil {
			return openedStore{}, err
		}
		repo := mongostore.NewRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return openedStore{}, err
		}
		return openedStore{repo: repo, close: client.Disconnect}, nil

	case config.DriverSQLite:
		repo, err := persistence.Connect(ctx, logger, cfg.StoreConnectTimeout, func(context.Context) (*sqlite.Repository, error) {
			return sqlite.Open(cfg.SQLitePath)
		})
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{
			repo:  repo,
			close: func(context.Context) error { return repo.Close() },
		}, nil

	default:
		return openedStore{}, xerrors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
