package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"messbook/internal/api"
	"messbook/internal/channel"
	"messbook/internal/config"
	"messbook/internal/database"
	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/lifecycle"
	"messbook/internal/logging"
	"messbook/internal/metrics"
	"messbook/internal/models"
	"messbook/internal/notify"
	"messbook/internal/policy"
	"messbook/internal/realtime"
	"messbook/internal/repository"
	"messbook/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

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

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()

	db, err := initDatabase(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	machine := lifecycle.New()
	pol := policy.New(machine.IsTerminal)
	ledger := initLedger(cfg, redisClient, logger)

	var wg sync.WaitGroup
	defer wg.Wait()

	hub := realtime.NewHub(db, pol, logging.Component(logger, "realtime"))
	hub.Attach(bus)
	goRun(&wg, func() { hub.Run(ctx) })

	if cfg.Notifications.Enabled {
		startNotifications(ctx, &wg, cfg, db, ledger, machine, bus, hub, logger)
	} else {
		logger.Warn().Msg("notifications are disabled")
	}

	if redisClient != nil {
		relay := realtime.NewRelay(redisClient, cfg.Redis.Channel, bus, logging.Component(logger, "relay"))
		relay.Attach()
		goRun(&wg, func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis relay stopped")
			}
		})
	}

	records := service.NewRecordService(db, db, machine, pol, bus, ledger, service.RecordOptions{
		ReserveCapacityOnConfirm: cfg.Coordinator.ReserveCapacityOnConfirm,
	}, logging.Component(logger, "records"))
	listings := service.NewListingService(db, pol, logging.Component(logger, "listings"))

	startMetrics(ctx, &wg, cfg, logger)

	if !cfg.API.Enabled {
		logger.Info().Msg("API отключен, работаем только как диспетчер уведомлений")
		<-ctx.Done()
		logger.Info().Msg("Shutdown complete.")
		return nil
	}

	return startServers(ctx, cfg, api.Deps{
		Records:  records,
		Listings: listings,
		Hub:      hub,
		Policy:   pol,
		Store:    db,
		Logger:   logger,
	}, logger)
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

	return cfg, logging.Component(baseLogger, "coordinator-main"), closer, nil
}

func goRun(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func initDatabase(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetEventPublisher(bus)

	if err := service.SeedListings(ctx, db, cfg.Listings, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed listings: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(client)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initLedger(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.StatusLedger {
	ttl := time.Duration(cfg.Notifications.LedgerTTLHours) * time.Hour
	memory := repository.NewMemoryLedger(ttl)
	if client == nil {
		return memory
	}
	return repository.NewFailoverLedger(repository.NewRedisLedger(client, ttl), memory, logging.Component(logger, "ledger"))
}

func initChannel(cfg *config.Config, logger *zerolog.Logger) domain.Channel {
	if cfg.Telegram.BotToken == "" {
		logger.Warn().Msg("telegram bot_token не задан, уведомления пишутся в лог")
		return channel.NewLog(logging.Component(logger, "notify-log"))
	}

	bot, err := channel.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, falling back to log channel")
		return channel.NewLog(logging.Component(logger, "notify-log"))
	}

	logger.Info().Str("bot", bot.GetSelf().UserName).Msg("Authorized on telegram account")
	return channel.NewTelegram(bot, cfg.Telegram.ChatID, models.ParseModeHTML, logging.Component(logger, "telegram"))
}

func startNotifications(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	db *database.DB,
	ledger domain.StatusLedger,
	machine *lifecycle.Machine,
	bus *events.EventBus,
	hub *realtime.Hub,
	logger *zerolog.Logger,
) {
	dispatcher := notify.New(initChannel(cfg, logger), ledger, db, machine.IsTerminal, notify.Options{
		Timeout:   time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second,
		QueueSize: cfg.Notifications.QueueSize,
		SendRate:  cfg.Notifications.SendRate,
	}, logging.Component(logger, "notify"))
	dispatcher.Subscribe(bus)
	goRun(wg, func() { dispatcher.Start(ctx) })

	// новые заявки приходят через живую подписку, а не через шину
	watcher := realtime.NewWatcher(hub, func(rec *models.Record) {
		dispatcher.Notify(notify.Notification{Type: notify.RecordCreated, Record: rec})
	}, logging.Component(logger, "watcher"))
	goRun(wg, func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("pending watcher stopped")
		}
	})
}

func startMetrics(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	goRun(wg, func() { startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger) })
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startServers(ctx context.Context, cfg *config.Config, deps api.Deps, logger *zerolog.Logger) error {
	auth := api.NewAuthenticator(cfg.API)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		srv, err := api.NewGRPCServer(cfg.API, auth, deps.Store, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		grpcServer = srv
		go grpcServer.WatchHealth(ctx, 10*time.Second)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, auth, deps)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("Coordinator started")

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

	logger.Info().Msg("Shutdown complete.")
	return nil
}
