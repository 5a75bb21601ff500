package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/config"
	"labelscan/pkg/logging"
	"labelscan/pkg/store"
	"labelscan/process/reclassify"
)

func main() {
	username := flag.String("username", "admin", "user whose analyses are reclassified")
	all := flag.Bool("all", false, "reclassify every user's analyses")
	below := flag.Float64("below", 0.1, "only analyses scoring under this (0 = all)")
	month := flag.String("month", "", "restrict to a month (YYYY-MM)")
	limit := flag.Int("limit", 1000, "maximum analyses to process")
	dry := flag.Bool("dry-run", true, "report score changes without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.Env == config.Development)
	if err := cfg.ValidateAnalysis(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	gdb, err := store.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	st := store.New(gdb, logger)

	f := store.Filter{All: *all, BelowScore: *below, Limit: *limit}
	if !*all {
		var u models.User
		if err := gdb.Where("username = ?", *username).First(&u).Error; err != nil {
			logger.Fatal().Err(err).Str("username", *username).Msg("user not found")
		}
		f.UserID = u.ID
	}
	if *month != "" {
		t, err := time.Parse("2006-01", *month)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid month format, expected YYYY-MM")
		}
		f.Since = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		f.Until = f.Since.AddDate(0, 1, 0)
	}

	svc, _, err := analyzer.Build(cfg, st, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build analyzer")
	}
	rep, err := reclassify.Run(context.Background(), st, svc, f, *dry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("reclassify")
	}
	for _, c := range rep.Changes {
		prefix := "updated"
		if *dry {
			prefix = "DRY"
		}
		fmt.Printf("%s: id=%s product=%q score %.1f -> %.1f\n", prefix, c.ID, c.Product, c.OldScore, c.NewScore)
	}
	fmt.Printf("checked=%d updated=%d failed=%d\n", rep.Checked, rep.Updated, rep.Failed)
}
