package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"glucolog/internal/pkg/logger"
	"glucolog/internal/platform/config"
	"glucolog/internal/platform/database"
	"glucolog/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	dir := flag.String("dir", "", "Apply migrations from this directory instead of the embedded set")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	source := "embedded"
	var fsys fs.FS = migrations.FS
	if *dir != "" {
		source = *dir
		fsys = os.DirFS(*dir)
	}

	if err := database.Migrate(db, fsys); err != nil {
		log.Fatal().Err(err).Str("source", source).Msg("migration failed")
	}

	log.Info().Str("source", source).Str("dialect", string(db.Dialect)).Msg("migrations applied")
}
