package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/config"
	"labelscan/pkg/logging"
	"labelscan/pkg/ocr"
	"labelscan/pkg/store"
	"labelscan/process/batch"
)

// Scans a directory of label photos, analyzes each one for a user and saves
// the result, skipping photos analyzed before. With -watch it keeps running
// and picks up new photos as they arrive.
func main() {
	dirFlag := flag.String("dir", "public/labels", "directory to scan for label photos")
	archive := flag.String("archive", "public/processed", "move analyzed photos here (empty keeps them in place)")
	username := flag.String("username", "admin", "user the analyses are saved for")
	dryRun := flag.Bool("dry-run", false, "analyze without saving or moving anything")
	watch := flag.Bool("watch", false, "watch the directory for new photos")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	retries := flag.Uint64("retries", 3, "retries for timeouts and unavailable model")
	verbose := flag.Bool("verbose", false, "verbose per-file logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	level := cfg.App.LogLevel
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.App.Env == config.Development)
	if err := cfg.ValidateAnalysis(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if _, err := ocr.CheckEngine(cfg.OCR.TessdataPrefix); err != nil {
		logger.Fatal().Err(err).Msg("tesseract is required")
	}

	var (
		st     *store.Store
		userID uint
	)
	if !*dryRun {
		gdb, err := store.Open(cfg.DB.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("open database")
		}
		st = store.New(gdb, logger)
		userID = resolveUser(gdb, *username, logger)
	}

	// Nil interfaces, not typed nil pointers, when running dry.
	var (
		saver analyzer.Store
		files batch.Store
	)
	if st != nil {
		saver, files = st, st
	}
	svc, _, err := analyzer.Build(cfg, saver, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build analyzer")
	}

	opts := batch.Options{
		Dir:        *dirFlag,
		ArchiveDir: *archive,
		UserID:     userID,
		Workers:    *workers,
		MaxRetries: *retries,
		DryRun:     *dryRun,
		Verbose:    *verbose,
	}
	p := batch.New(svc, files, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Preload(ctx); err != nil {
		logger.Fatal().Err(err).Msg("preload analyzed files")
	}
	photos := batch.ListImageFiles(*dirFlag)
	logger.Info().Int("files", len(photos)).Str("dir", *dirFlag).Msg("scanning")
	rep := p.Run(ctx, photos)
	logger.Info().Interface("report", rep).Msg("scan finished")

	if *watch {
		if err := p.Watch(ctx, 300*time.Millisecond); err != nil {
			logger.Fatal().Err(err).Msg("watch failed")
		}
		logger.Info().Interface("report", p.Report()).Msg("watch stopped")
	}
}

// resolveUser looks up the user analyses are saved for.
func resolveUser(db *gorm.DB, username string, logger zerolog.Logger) uint {
	var u models.User
	err := db.Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Fatal().Str("username", username).Msg("user not found; create it with cmd/create_user")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("lookup user")
	}
	return u.ID
}
