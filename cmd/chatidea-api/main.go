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

	"golang.org/x/sync/errgroup"

	"github.com/chatidea/chatidea/internal/api"
	"github.com/chatidea/chatidea/internal/auth"
	"github.com/chatidea/chatidea/internal/chat"
	"github.com/chatidea/chatidea/internal/config"
	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/fuzzy"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/observability"
	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/query"
	duckdbengine "github.com/chatidea/chatidea/internal/query/duckdb"
	pgengine "github.com/chatidea/chatidea/internal/query/postgres"
	"github.com/chatidea/chatidea/internal/schema"
	s3store "github.com/chatidea/chatidea/internal/storage/s3"
)

type engine interface {
	query.Engine
	Close() error
}

func main() {
	cfg, err := config.LoadFromEnv("chatidea-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objectStore *s3store.Store
	if cfg.UsesObjectStore() {
		objectStore, err = s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	read := schema.DirReader(cfg.Documents.Dir)
	if cfg.Documents.Source == config.DocumentsSourceObjectStore {
		read = schema.ObjectStoreReader(objectStore, cfg.Documents.Prefix)
	}
	registry, err := schema.Load(ctx, read)
	if err != nil {
		logger.Error("failed to load concept documents", slog.Any("error", err))
		os.Exit(1)
	}
	messages, err := chat.LoadMessages(ctx, read)
	if err != nil {
		logger.Error("failed to load message catalogue", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("concept documents loaded",
		slog.String("source", cfg.Documents.Source),
		slog.Int("concepts", len(registry.Concepts())),
		slog.Int("tables", len(registry.TableNames())),
	)

	queryEngine, err := openEngine(ctx, cfg, objectStore, registry)
	if err != nil {
		logger.Error("failed to open query engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = queryEngine.Close() }()
	dialect, err := planner.DialectByName(cfg.Storage.Driver)
	if err != nil {
		logger.Error("failed to select sql dialect", slog.Any("error", err))
		os.Exit(1)
	}

	limits := conversation.Limits{
		PageSize:        cfg.Conversation.PageSize,
		HistoryPageSize: cfg.Conversation.HistoryPageSize,
		MaxLength:       cfg.Conversation.MaxLength,
	}
	sessions, err := openSessionStore(ctx, cfg, limits)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = sessions.Close() }()

	var classifier nlu.Classifier
	if cfg.NLU.URL != "" {
		classifier, err = nlu.NewHTTPClassifier(nlu.HTTPConfig{
			BaseURL: cfg.NLU.URL,
			Token:   cfg.NLU.Token,
			Timeout: cfg.NLU.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize classifier", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("no classifier configured; only button payloads will be understood")
	}

	service, err := chat.NewService(chat.Dependencies{
		Registry: registry,
		Parser:   nlu.NewParser(classifier, cfg.NLU.IntentThreshold),
		Engine:   queryEngine,
		Store:    sessions,
		Dialect:  dialect,
		Matcher:  fuzzy.New(cfg.Match.Threshold),
		RowLimit: cfg.Storage.RowLimit,
		Messages: &messages,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to initialize chat service", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.Dependency{
		{Name: "storage", Check: queryEngine.Ping},
		{Name: "sessions", Check: sessions.Ping},
		{Name: "registry", Check: api.CheckRegistry(service)},
		{Name: "objectstore_config", Check: api.CheckObjectStoreConfig(cfg)},
	}
	if objectStore != nil {
		readiness = append(readiness, api.Dependency{Name: "objectstore", Check: objectStore.Ping})
	}
	deps := api.Dependencies{
		Logger:            logger,
		Chat:              service,
		Readiness:         readiness,
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if memory, ok := sessions.(*conversation.MemoryStore); ok {
		group.Go(func() error {
			runJanitor(groupCtx, logger, memory, cfg.Conversation.SweepInterval)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("api server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func openEngine(ctx context.Context, cfg config.Config, objectStore *s3store.Store, registry *schema.Registry) (engine, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverDuckDB:
		return duckdbengine.Open(ctx, objectStore, duckdbengine.Config{
			TablePrefix:  cfg.DuckDB.TablePrefix,
			Tables:       registry.TableNames(),
			QueryTimeout: cfg.Storage.QueryTimeout,
		})
	default:
		return pgengine.Open(ctx, pgengine.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxIdleTime: cfg.Storage.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
			QueryTimeout:    cfg.Storage.QueryTimeout,
		})
	}
}

func openSessionStore(ctx context.Context, cfg config.Config, limits conversation.Limits) (conversation.Store, error) {
	if cfg.Sessions.Store != config.SessionStoreRedis {
		return conversation.NewMemoryStore(limits, cfg.Conversation.IdleTimeout), nil
	}
	return conversation.OpenRedis(ctx, conversation.RedisConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		Prefix:      cfg.Redis.KeyPrefix + ":session:",
		IdleTimeout: cfg.Conversation.IdleTimeout,
		LockTTL:     cfg.HTTP.WriteTimeout,
		LockWait:    cfg.Redis.LockTimeout,
	}, limits)
}

// runJanitor drops idle in-memory sessions and publishes the live count.
func runJanitor(ctx context.Context, logger *slog.Logger, store *conversation.MemoryStore, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if expired := store.Sweep(now); expired > 0 {
				logger.Debug("expired idle sessions", slog.Int("count", expired))
			}
			observability.SetActiveSessions(store.Len())
		}
	}
}
