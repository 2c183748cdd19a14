package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate 解析 --config 后把剩余参数交给 migration.CLI
//
//	mogul-agent migrate [--config path] <command> [arg]
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, migration.CLIUsage)
		fmt.Fprintln(os.Stderr, "\nOptions:\n  --config <path>   Path to configuration file (YAML)")
	}
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	if cfg.Database.IsMongo() {
		fmt.Fprintln(os.Stderr, "SQL migrations do not apply to the mongo driver")
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if err != nil {
		logger.Error("failed to create migrator", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = m.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migration.NewCLI(m).Run(ctx, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		_ = m.Close()
		os.Exit(1)
	}
}
