package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gradewatch/gradewatch/internal/bot"
	"github.com/gradewatch/gradewatch/internal/crypto"
	"github.com/gradewatch/gradewatch/internal/dialog"
	apperrors "github.com/gradewatch/gradewatch/internal/errors"
	"github.com/gradewatch/gradewatch/internal/health"
	"github.com/gradewatch/gradewatch/internal/notifier"
	"github.com/gradewatch/gradewatch/internal/ops"
	"github.com/gradewatch/gradewatch/internal/storage"
	"github.com/gradewatch/gradewatch/internal/subscription"
	"github.com/gradewatch/gradewatch/internal/zju"
	"github.com/gradewatch/gradewatch/pkg/config"
	"github.com/gradewatch/gradewatch/pkg/logger"
	"github.com/gradewatch/gradewatch/pkg/metrics"
	redispkg "github.com/gradewatch/gradewatch/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, level := logger.New(cfg.Logger, cfg.Sentry.Enabled)
	slog.SetDefault(log)
	config.WatchLogLevel(v, level, log)

	log.Info("starting gradewatch bot",
		slog.String("env", cfg.AppEnv),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("storage_backend", cfg.Storage.Backend),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			return fmt.Errorf("initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	gate, err := crypto.NewGate(cfg.Encryption.Key, cfg.Encryption.IV)
	if err != nil {
		return fmt.Errorf("initialize crypto: %w", err)
	}

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	checker := health.NewChecker(log)

	var redisClient *redispkg.Client
	if cfg.UsesRedis() {
		redisClient, err = redispkg.New(ctx, redispkg.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			PoolTimeout:  cfg.Redis.PoolTimeout,
			IdleTimeout:  cfg.Redis.IdleTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				log.Error("error closing redis client", slog.Any("error", cerr))
			}
		}()
		checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))
	}

	backing, err := newBackingStore(ctx, cfg, redisClient, checker, log)
	if err != nil {
		return err
	}

	var dialogs dialog.Store
	if redisClient != nil {
		dialogs = dialog.NewRedisStore(redisClient.Client, gate, log)
	} else {
		log.Warn("redis not configured, dialog state is in-memory and lost on restart")
		dialogs = dialog.NewMemoryStore(gate, log)
	}

	subs := subscription.NewStore(gate, backing, log)
	if err := subs.LoadAll(ctx); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	metrics.SetSubscribers(subs.Len())

	zjuClient := zju.NewClient(zju.DefaultConfig(), log)

	tgBot, err := bot.New(cfg.Bot, log, errHandler)
	if err != nil {
		return fmt.Errorf("initialize bot: %w", err)
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))

	engine := bot.NewEngine(dialogs, subs, zjuClient, tgBot.Messenger(), errHandler, log)
	tgBot.RegisterEngine(engine)

	sweeper := notifier.New(subs, zjuClient, tgBot.Messenger(), errHandler, cfg.NotifyInterval(), log)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}

	opsServer := ops.NewServer(cfg.Server, checker, log)
	opsErrCh := make(chan error, 1)
	go func() {
		opsErrCh <- opsServer.ListenAndServe(ctx)
	}()

	go tgBot.Start()

	<-ctx.Done()
	log.Info("shutdown signal received")

	tgBot.Stop()
	sweeper.Stop()

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := subs.PersistAll(persistCtx); err != nil {
		log.Error("failed to persist subscriptions on shutdown", slog.Any("error", err))
	}

	if err := <-opsErrCh; err != nil {
		log.Error("ops server exited with error", slog.Any("error", err))
	}

	log.Info("gradewatch bot stopped")

	return nil
}

func newBackingStore(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redispkg.Client,
	checker *health.Checker,
	log *slog.Logger,
) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendFile:
		store, err := storage.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, fmt.Errorf("initialize file storage: %w", err)
		}
		return store, nil

	case config.StorageBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis storage backend requires a redis connection")
		}
		return storage.NewRedisStore(redisClient.Client), nil

	case config.StorageBackendPostgres:
		store, err := storage.NewPostgresStore(ctx, cfg.Storage.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres storage: %w", err)
		}
		checker.AddCheck("postgres", health.NewDBChecker(store.DB()))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
