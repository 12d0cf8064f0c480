package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenniscourts/internal/api"
	"tenniscourts/internal/config"
	"tenniscourts/internal/database"
	"tenniscourts/internal/domain"
	"tenniscourts/internal/events"
	"tenniscourts/internal/export"
	"tenniscourts/internal/kafka"
	"tenniscourts/internal/logging"
	"tenniscourts/internal/metrics"
	"tenniscourts/internal/models"
	"tenniscourts/internal/repository"
	"tenniscourts/internal/seed"
	"tenniscourts/internal/service"
	"tenniscourts/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "api-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, base)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus(logging.Component(base, "events"))
	publisher := initKafka(cfg, bus, base)
	if publisher != nil {
		defer publisher.Close()
	}

	outbox := worker.NewOutboxWorker(db, redisClient, cfg.Worker, logging.Component(base, "outbox"))

	services, err := buildServices(cfg, db, redisClient, bus, outbox, base)
	if err != nil {
		return err
	}

	if cfg.Worker.Enabled {
		worker.RegisterHandlers(ctx, outbox, cfg, logging.Component(base, "worker"))
		go outbox.Start(ctx)
	}

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(base, "backup"))
	go backup.Start(ctx)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, services, base)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, services, base)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, baseLogger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, base *zerolog.Logger) (*database.DB, error) {
	logger := logging.Component(base, "database")
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seedPath := cfg.Seed.Path
	if env := os.Getenv("SEED_PATH"); env != "" {
		seedPath = env
	}
	if _, err := seed.LoadAndApply(ctx, db, seedPath, logger); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("apply seed data")
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initKafka(cfg *config.Config, bus *events.EventBus, base *zerolog.Logger) *kafka.Publisher {
	if !cfg.Kafka.Enabled {
		return nil
	}

	logger := logging.Component(base, "kafka")
	publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("kafka init failed, continuing without event stream")
		return nil
	}
	bus.SubscribeAll(publisher.Handler())

	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher ready")
	return publisher
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	outbox *worker.OutboxWorker,
	base *zerolog.Logger,
) (api.Services, error) {
	var cache domain.ScheduleCache = repository.NewMemoryScheduleCache()
	if redisClient != nil {
		cache = repository.NewFailoverScheduleCache(
			repository.NewRedisScheduleCache(redisClient),
			cache,
			logging.Component(base, "schedule-cache"),
		)
	}

	price, err := models.ParseMoney(cfg.Reservation.DefaultValue)
	if err != nil {
		return api.Services{}, fmt.Errorf("reservation.default_value: %w", err)
	}

	taskTypes := worker.EnabledTaskTypes(cfg)
	reservations := service.NewReservationService(db, logging.Component(base, "reservations"),
		service.WithDefaultValue(price),
		service.WithRefundCutoffHours(cfg.Reservation.RefundCutoffHours),
		service.WithEventPublisher(bus),
		service.WithOutbox(outbox, taskTypes...),
		service.WithScheduleCache(cache),
	)

	schedules := service.NewScheduleService(db, cache,
		cfg.Reservation.FreeSlotsCacheTTL,
		time.Duration(cfg.Reservation.SlotMinutes)*time.Minute,
		logging.Component(base, "schedules"),
	)

	exporter := export.NewScheduleExporter(schedules, db, cfg.Exports.Path, logging.Component(base, "export"))

	base.Info().Str("price", price.String()).Strs("outbox_tasks", taskTypes).Msg("services ready")

	return api.Services{
		Reservations: reservations,
		Schedules:    schedules,
		Exporter:     exporter,
		Ready:        db.Ready,
	}, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	grpcAddr := ""
	if grpcServer != nil {
		grpcAddr = grpcServer.Addr()
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcAddr).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
