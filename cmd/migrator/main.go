package main

import (
	"flag"
	"fmt"
	"os"

	"learncoins-ledger/config"
	pgStorage "learncoins-ledger/internal/adapter/storage/postgres"
	"learncoins-ledger/pkg/logger"
)

func main() {
	var configPath, direction string
	flag.StringVar(&configPath, "config", "", "path to config file (defaults to ./config.yaml)")
	flag.StringVar(&direction, "direction", pgStorage.MigrateUp, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Database.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("Migrations only apply to the postgres driver")
	}

	if err := pgStorage.Migrate(cfg.Database, direction, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}
