package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"barangay/internal/api"
	"barangay/internal/config"
	"barangay/internal/database"
	"barangay/internal/domain"
	"barangay/internal/events"
	"barangay/internal/google"
	"barangay/internal/lock"
	"barangay/internal/logging"
	"barangay/internal/metrics"
	"barangay/internal/models"
	"barangay/internal/postgres"
	"barangay/internal/repository"
	"barangay/internal/service"
	"barangay/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// store is what both the sqlite and postgres backends provide.
type store interface {
	domain.Repository
	domain.SyncQueueRepository
	PingContext(ctx context.Context) error
	Close() error
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	items, err := loadItems(cfg, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initStore(ctx, cfg, items, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	locker, limiter := initConcurrency(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	subscribeAuditLog(eventBus, &logger)

	borrowService := service.NewBorrowService(
		db,
		locker,
		eventBus,
		initSheetsWorker(ctx, cfg, db, redisClient, &logger),
		initNotifier(cfg, &logger),
		cfg.Borrowing,
		&logger,
	)
	borrowService.SetRateLimiter(limiter)
	itemService := service.NewItemService(db, eventBus, &logger)

	startBackups(ctx, cfg, db, &logger)
	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, cfg, borrowService, itemService, db, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadItems reads the item catalogue from ITEMS_PATH, falling back to the
// items section of the main config when the file does not exist.
func loadItems(cfg *config.Config, logger *zerolog.Logger) ([]models.Item, error) {
	itemsPath := os.Getenv("ITEMS_PATH")
	if itemsPath == "" {
		itemsPath = "configs/items.yaml"
	}

	itemsData, err := os.ReadFile(itemsPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Str("items_path", itemsPath).Int("items", len(cfg.Items)).Msg("items file not found, using config items")
		return cfg.Items, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("items_path", itemsPath).Msg("read items")
		return nil, err
	}

	var itemsConfig struct {
		Items []models.Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(itemsData, &itemsConfig); err != nil {
		logger.Error().Err(err).Str("items_path", itemsPath).Msg("parse items")
		return nil, err
	}

	if err := config.ValidateItems(itemsConfig.Items); err != nil {
		logger.Error().Err(err).Msg("items validation failed")
		return nil, err
	}
	return itemsConfig.Items, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("create database directory")
			return err
		}
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("create export directory")
			return err
		}
	}
	return nil
}

func initStore(ctx context.Context, cfg *config.Config, items []models.Item, logger *zerolog.Logger) (store, error) {
	var (
		db  store
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgres.NewStore(ctx, cfg.Database.Postgres.DSN(), logger)
	default:
		db, err = database.NewDB(cfg.Database.Path, logger)
	}
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return nil, err
	}

	if len(items) > 0 {
		seed := make([]*models.Item, len(items))
		for i := range items {
			seed[i] = &items[i]
		}
		if err := db.SyncItems(ctx, seed); err != nil {
			logger.Error().Err(err).Msg("sync items")
		}
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initConcurrency picks the item lock and submission limiter. Without Redis
// both are process-local, which is only correct for a single instance.
func initConcurrency(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (domain.ItemLocker, domain.RateLimiter) {
	memoryLimiter := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		logger.Warn().Msg("using in-process item locks; run a single API instance")
		return lock.NewMemoryLocker(), memoryLimiter
	}

	locker := lock.NewFailoverLocker(lock.NewRedisLocker(redisClient, cfg.Borrowing.LockTTL, logger), lock.NewMemoryLocker(), logger)
	limiter := repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memoryLimiter, logger)
	return locker, limiter
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Telegram.BotToken == "" {
		logger.Info().Msg("telegram token not set, notifications disabled")
		return nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
	return service.NewTelegramService(service.NewBotWrapper(botAPI), cfg.Telegram.StaffChatID)
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db store, redisClient *redis.Client, logger *zerolog.Logger) domain.SyncWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.RequestsSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.RequestsSpreadSheetID,
		cfg.Google.RequestsSheetName,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets connection test failed, share the sheet with the service account")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, db, redisClient, retryPolicy, logger)
	go sheetsWorker.Start(ctx)

	if err := sheetsWorker.EnqueueFullSync(ctx); err != nil {
		logger.Warn().Err(err).Msg("schedule initial sheet sync")
	}

	logger.Info().Msg("google sheets mirror enabled")
	return sheetsWorker
}

func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	bus.SubscribeAll(func(ev *events.Event) error {
		audit.Info().
			Str("event", ev.Type).
			RawJSON("payload", ev.Payload).
			Time("at", ev.CreatedAt).
			Msg("domain event")
		return nil
	})
}

func startBackups(ctx context.Context, cfg *config.Config, db store, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	sqlite, ok := db.(*database.DB)
	if !ok {
		logger.Info().Msg("backups are only built in for sqlite; back up postgres with its own tooling")
		return
	}
	go database.NewBackupService(sqlite, cfg.Backup, logger).Start(ctx)
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
	cfg *config.Config,
	borrowService domain.BorrowService,
	itemService domain.ItemService,
	db store,
	logger *zerolog.Logger,
) error {
	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(&cfg.API, api.NewBorrowingService(borrowService, itemService), logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, borrowService, itemService, db, cfg.Exports.Path, logger)
		httpServer.SetLocation(cfg.Borrowing.Location())
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	if grpcServer == nil && httpServer == nil {
		logger.Warn().Msg("neither HTTP nor gRPC is enabled, nothing to serve")
	}
	logger.Info().
		Bool("grpc", grpcServer != nil).
		Bool("http", httpServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Int("grpc_port", cfg.API.GRPC.Port).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
