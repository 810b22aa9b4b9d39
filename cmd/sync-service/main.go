// cmd/sync-service/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"application-sync/internal/audit"
	"application-sync/internal/chat"
	"application-sync/internal/common/config"
	"application-sync/internal/common/database"
	"application-sync/internal/common/logger"
	"application-sync/internal/common/observability"
	"application-sync/internal/engine"
	"application-sync/internal/forum"
	"application-sync/internal/interaction"
	"application-sync/internal/notify"
	"application-sync/internal/scheduler"
	"application-sync/internal/store"
	"application-sync/internal/webhook"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sync service...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("sync-service")
	defer obs.Shutdown()

	ctx := context.Background()
	timeout := time.Duration(cfg.Sync.CollaboratorTimeoutSec) * time.Second

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional audit index) ---
	var indexer audit.Indexer = audit.NoOpIndexer{}
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = audit.NewESIndexer(esClient, cfg.Database.Elasticsearch.Index, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init collaborators ---
	forumClient := forum.NewCachedForum(
		forum.NewClient(cfg.Forum, timeout, log),
		redis,
		time.Duration(cfg.Forum.TopicCacheTTLSeconds)*time.Second,
		log,
	)
	gateway := chat.NewRestGateway(cfg.Chat, timeout, log)

	// --- Init operator notifier ---
	var notifier notify.Notifier = &notify.LogNotifier{Log: log}
	if cfg.Notifications.SNS.Enabled || cfg.Notifications.Email.Enabled {
		var snsClient *notify.SNSClient
		var sesClient *notify.SESClient
		if cfg.Notifications.SNS.Enabled {
			snsClient, err = notify.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
		}
		if cfg.Notifications.Email.Enabled {
			sesClient, err = notify.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
		}
		notifier = notify.NewAWSNotifier(cfg.Notifications, snsClient, sesClient, log)
	}

	// --- Init engine + scheduler ---
	recordStore := store.NewPostgresStore(pg.DB, log)

	eng, err := engine.New(cfg, recordStore, forumClient, gateway, indexer, notifier, log)
	if err != nil {
		zapLog.Fatal("engine init failed", zap.Error(err))
	}

	sched := scheduler.New(eng,
		time.Duration(cfg.Sync.ReconcileIntervalMins)*time.Minute, log)
	eng.SetArchiver(sched)

	if err := eng.Restore(ctx); err != nil {
		zapLog.Fatal("timer restore failed", zap.Error(err))
	}
	sched.Start()

	// --- Init HTTP surface ---
	server := webhook.NewServer(cfg, eng, obs, log)
	server.Register("/interactions",
		interaction.NewHandler(eng, []string{cfg.Chat.BotToken}, log))

	go func() {
		if err := server.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Sync service running",
		zap.String("mode", cfg.Chat.Mode),
		zap.Int("port", cfg.Server.ListenPort),
	)

	// --- Wait for shutdown signal ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http shutdown incomplete", zap.Error(err))
	}
	sched.Stop()

	zapLog.Info("Sync service stopped")
}
