package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"labelscan/pkg/config"
	"labelscan/pkg/logging"
	"labelscan/pkg/store"
	"labelscan/process/sanitize"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "show what would be truncated without changing anything")
	yes := flag.Bool("yes", false, "confirm the destructive truncate")
	reseed := flag.Bool("reseed", false, "seed the roles again after truncating")
	tables := flag.String("tables", sanitize.DefaultTables, "comma separated tables to truncate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.App.LogLevel, true)
	if cfg.App.Env == config.Production && !*dryRun {
		logger.Warn().Msg("truncating a production database")
	}
	gdb, err := store.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	existing, err := sanitize.Run(ctx, gdb, sanitize.Options{Tables: *tables, DryRun: *dryRun, Confirm: *yes}, logger)
	if len(existing) == 0 && err == nil {
		fmt.Println("no requested tables present; nothing to do")
		return
	}
	fmt.Println("Tables considered for truncation:")
	for _, t := range existing {
		fmt.Printf(" - %s\n", t)
	}
	switch {
	case errors.Is(err, sanitize.ErrNotConfirmed):
		fmt.Println("Destructive operation. Pass -yes to confirm. Aborting.")
		os.Exit(1)
	case err != nil:
		logger.Fatal().Err(err).Msg("sanitize failed")
	case *dryRun:
		fmt.Println("dry-run enabled; no changes made. Use -dry-run=false -yes to execute.")
		return
	}
	fmt.Println("Truncate completed.")

	if *reseed {
		if err := store.New(gdb, logger).SeedRoles(ctx); err != nil {
			logger.Fatal().Err(err).Msg("reseed roles")
		}
		fmt.Println("Roles seeded; create users with cmd/create_user.")
	}
}
