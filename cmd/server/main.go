package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"glucolog/internal/api"
	"glucolog/internal/api/handlers"
	"glucolog/internal/api/middleware"
	"glucolog/internal/engine/admission"
	"glucolog/internal/engine/credentials"
	"glucolog/internal/engine/ratelimit"
	"glucolog/internal/engine/tiers"
	"glucolog/internal/engine/usage"
	"glucolog/internal/pkg/logger"
	"glucolog/internal/platform/audit"
	"glucolog/internal/platform/auth"
	"glucolog/internal/platform/config"
	"glucolog/internal/platform/database"
	"glucolog/internal/platform/repositories"
	"glucolog/internal/workers"
	"glucolog/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	if cfg.Credentials.Pepper == "" || cfg.JWT.Secret == "" {
		log.Fatal().Msg("credentials.pepper and jwt.secret must be set")
	}

	catalog, err := tiers.Load(cfg.Tiers.File)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tier catalog")
	}
	if !catalog.Issuable(cfg.Tiers.DefaultTier) {
		log.Fatal().Str("tier", cfg.Tiers.DefaultTier).Msg("default tier is not in the catalog")
	}

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(db, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Repositories
	keyRepo := repositories.NewAPIKeyRepository(db)
	usageRepo := repositories.NewUsageRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Rate limit counters
	local := ratelimit.NewMemoryCounter(ratelimit.WithWindow(cfg.RateLimit.Window))
	var counter ratelimit.Counter = local
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = ratelimit.Connect(context.Background(), cfg.Redis.URL,
			cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		counter = ratelimit.NewFallbackCounter(
			ratelimit.NewRedisCounter(redisClient, cfg.Redis.KeyPrefix, cfg.RateLimit.Window), local)
		log.Info().Msg("rate limit windows shared through redis")
	}

	// Usage sinks
	var sink usage.Sink = usage.NewSQLSink(usageRepo, keyRepo)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := usage.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka sink")
		}
		defer kafkaSink.Close()
		sink = usage.MultiSink{sink, kafkaSink}
	}
	recorder := usage.NewRecorder(sink, usage.Options{
		QueueSize:     cfg.Usage.QueueSize,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
		WriteTimeout:  cfg.Usage.WriteTimeout,
	})

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT, cfg.Tiers.DefaultTier)
	keySvc := credentials.NewService(keyRepo, catalog, credentials.Options{
		Pepper:       cfg.Credentials.Pepper,
		SecretLength: cfg.Credentials.SecretLength,
		PrefixLength: cfg.Credentials.PrefixLength,
	})
	controller := admission.NewController(admission.Config{
		Keys:     keySvc,
		Sessions: tokenSvc,
		Counter:  counter,
		Catalog:  catalog,
		Recorder: recorder,
		Window:   cfg.RateLimit.Window,
	})

	// Router
	deps := &api.Dependencies{
		APIKeyHandler:       handlers.NewAPIKeyHandler(keySvc, catalog, audit.NewLogger(auditRepo, cfg.Database.QueryTimeout), cfg.Tiers.DefaultTier),
		UsageHandler:        handlers.NewUsageHandler(usage.NewService(usageRepo, cfg.Usage.QueryMaxDays, nil)),
		AuditHandler:        handlers.NewAuditHandler(auditRepo),
		QuotaHandler:        handlers.NewQuotaHandler(catalog),
		HealthHandler:       handlers.NewHealthHandler(db, redisClient),
		MetricsHandler:      handlers.NewMetricsHandler(controller, recorder),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc),
		AdmissionMiddleware: middleware.NewAdmissionMiddleware(controller, cfg.Server.TrustProxy),
	}
	router := api.NewRouter(deps)

	// Housekeeping
	scheduler := workers.NewScheduler(cfg.RateLimit.SweepGrace)
	if err := scheduler.Add(cfg.RateLimit.SweepSchedule, "sweep_windows", workers.SweepWindows(local, cfg.RateLimit.SweepGrace)); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule window sweep")
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown incomplete")
	}
	scheduler.Stop(ctx)
	if err := recorder.Close(ctx); err != nil {
		log.Error().Err(err).Interface("usage", recorder.Stats()).Msg("usage recorder did not drain")
	}
	log.Info().Msg("server stopped")
}
