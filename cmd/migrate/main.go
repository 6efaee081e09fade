// Command migrate applies the purchase ledger schema.
//
//	migrate [-driver sqlite|postgres] [-dsn DSN] up|down|status|redo|version
//
// Driver and DSN default to the service configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"api_sales/internal/config"
	"api_sales/internal/logger"
	"api_sales/internal/persistence"
)

func main() {
	var driver, dsn, logLevel string
	flag.StringVar(&driver, "driver", "", "database driver (sqlite or postgres)")
	flag.StringVar(&dsn, "dsn", "", "database DSN")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: migration command is required")
		fmt.Fprintln(os.Stderr, "Usage: migrate [-driver sqlite|postgres] [-dsn DSN] <command>")
		fmt.Fprintln(os.Stderr, "Commands: up, down, status, redo, version")
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if driver == "" || dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal("failed to load configuration", zap.Error(err))
		}
		if driver == "" {
			driver = cfg.Database.Driver
		}
		if dsn == "" {
			dsn = cfg.Database.DSN
		}
	}

	db, err := persistence.OpenSQL(driver, dsn)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Info("starting migration", zap.String("command", command), zap.String("driver", driver))
	if err := persistence.RunMigrations(ctx, db, driver, command, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("migration finished")
}
