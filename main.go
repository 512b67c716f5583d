package main

import (
	"context"
	"os"
	"strings"
	"time"

	"orderkato/bot"
	"orderkato/config"
	"orderkato/db"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if cfg.Telegram.Token == "" {
		log.Fatal().Msg("TOKEN not set")
	}

	if err := db.Init(cfg.DB); err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer db.Close()

	// Check for migrate subcommand
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := applyMigrations(context.Background(), true); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		return
	}

	// Optional auto-migration (useful in production and for fresh DBs).
	// Set AUTO_MIGRATE=1 (or "true") to enable.
	if v := strings.TrimSpace(os.Getenv("AUTO_MIGRATE")); v == "1" || strings.EqualFold(v, "true") {
		if err := applyMigrations(context.Background(), false); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bot")
	}

	log.Info().
		Bool("photo_verify", cfg.Photo.VerifyRequired).
		Dur("photo_max_age", cfg.Photo.MaxAge).
		Msg("bot started")
	b.Start()
}
