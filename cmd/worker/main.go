package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"glucolog/internal/pkg/logger"
	"glucolog/internal/platform/config"
	"glucolog/internal/platform/database"
	"glucolog/internal/platform/repositories"
	"glucolog/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run every job once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)
	log.Info().Msg("starting glucolog background workers")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	prune := workers.PruneUsage(repositories.NewUsageRepository(db), cfg.Usage.RetentionDays, nil)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := prune(ctx); err != nil {
			log.Fatal().Err(err).Msg("usage prune failed")
		}
		return
	}

	scheduler := workers.NewScheduler(30 * time.Minute)
	if err := scheduler.Add(cfg.Usage.PruneSchedule, "prune_usage", prune); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule usage prune")
	}
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	scheduler.Stop(ctx)
	log.Info().Msg("workers stopped")
}
