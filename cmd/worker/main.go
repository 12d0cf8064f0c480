package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/database"
	"tenniscourts/internal/logging"
	"tenniscourts/internal/repository"
	"tenniscourts/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// Воркер доставляет задачи outbox (Telegram, Google Sheets) и делает бэкапы базы.
func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	base, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(base, "worker-main")

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(base, "database"))
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reportFailedTasks(ctx, db, logger)

	outbox := worker.NewOutboxWorker(db, redisClient, cfg.Worker, logging.Component(base, "outbox"))
	registered := worker.RegisterHandlers(ctx, outbox, cfg, logger)
	if len(registered) == 0 {
		logger.Warn().Msg("no outbox destinations configured, pending tasks will fail without a handler")
	}

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(base, "backup"))

	done := make(chan struct{}, 2)
	go func() {
		outbox.Start(ctx)
		done <- struct{}{}
	}()
	go func() {
		backup.Start(ctx)
		done <- struct{}{}
	}()

	logger.Info().Strs("task_types", registered).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	// ждём завершения текущей задачи, но не бесконечно
	deadline := time.After(10 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-deadline:
			logger.Warn().Msg("worker shutdown timed out")
			return nil
		}
	}

	logger.Info().Msg("worker stopped")
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		if err := os.MkdirAll(cfg.Backup.StoragePath, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для бэкапов")
			return err
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, relying on outbox polling")
		_ = client.Close()
		return nil
	}
	return client
}

func reportFailedTasks(ctx context.Context, db *database.DB, logger *zerolog.Logger) {
	failed, err := db.GetFailedOutboxTasks(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("list failed outbox tasks")
		return
	}
	if len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Int64("latest_task_id", failed[0].ID).Msg("outbox has permanently failed tasks")
	}
}
