package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahkjxy/family-points-bank-sub000/internal/config"
	"github.com/ahkjxy/family-points-bank-sub000/internal/database"
	"github.com/ahkjxy/family-points-bank-sub000/internal/logging"
	"github.com/ahkjxy/family-points-bank-sub000/internal/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "familybank",
	Short: "Family points bank: a household ledger for earning and spending points",
	Long: `familybank keeps a points ledger for each family: members earn points for
tasks, lose them for penalties, redeem them for rewards and transfer them
between each other. Run "familybank serve" for the HTTP API; the other
commands operate on the same database for cron jobs and maintenance.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the configured runtime shared by every command.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	srv    *server.Server
	logger *slog.Logger
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	srv, err := server.New(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: db, srv: srv, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.srv.Close(); err != nil {
		a.logger.Warn("close server", "error", err)
	}
	a.db.Close()
}

// output opens path for writing, or stdout when path is empty or "-".
func output(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
