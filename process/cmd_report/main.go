package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"labelscan/models"
	"labelscan/pkg/config"
	"labelscan/pkg/logging"
	"labelscan/pkg/store"
	"labelscan/process/report"
)

func main() {
	username := flag.String("username", "admin", "username to report for")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching analyses")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.Env == config.Development)
	gdb, err := store.Open(cfg.DB.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var user models.User
	if err := gdb.Where("username = ?", *username).First(&user).Error; err != nil {
		logger.Fatal().Err(err).Str("username", *username).Msg("user not found")
	}
	if err := report.Write(context.Background(), os.Stdout, store.New(gdb, logger), user.ID, user.Username, *month, *list); err != nil {
		logger.Fatal().Err(err).Msg("report failed")
	}
}
