package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/budgetme/ledger/internal/api"
	"github.com/budgetme/ledger/internal/config"
	"github.com/budgetme/ledger/internal/database"
	"github.com/budgetme/ledger/internal/logger"
	"github.com/budgetme/ledger/internal/service"
)

func main() {
	// A missing .env is not an error, only a missing convenience.
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("create data directory")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	if err := database.SeedDefaults(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("seed shared categories")
	}

	alerts := &service.AlertService{DB: db, Log: log, Cooldown: cfg.Alerts.Cooldown}
	ledger := &service.LedgerService{
		DB:           db,
		Log:          log,
		Alerts:       alerts,
		MaxRetries:   cfg.Ledger.MaxRetries,
		RetryBackoff: cfg.Ledger.RetryBackoff,
	}
	goals := &service.GoalService{Ledger: ledger, Log: log}
	maintenance := &service.MaintenanceService{
		DB:            db,
		Log:           log,
		Ledger:        ledger,
		RetentionDays: cfg.Retention.AuditDays,
	}

	handler := &api.Handler{
		Ledger:      ledger,
		Goals:       goals,
		Maintenance: maintenance,
		Log:         log,
	}

	log.Info().Str("addr", cfg.Server.Addr).Str("db", cfg.Database.Path).Msg("ledger engine listening")
	if err := http.ListenAndServe(cfg.Server.Addr, handler.Router()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
