package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"labelscan/pkg/analyzer"
	"labelscan/pkg/config"
	"labelscan/pkg/grpcserver"
	"labelscan/pkg/logging"
	"labelscan/pkg/ocr"
)

var (
	cfg       *config.Config
	logger    zerolog.Logger
	jwtSecret []byte
)

const requestIDKey = "request_id"

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger = logging.New(cfg.App.LogLevel, cfg.App.Env == config.Development)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	jwtSecret = []byte(cfg.App.JWTSecret)

	// `./labelscan migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	version, err := ocr.CheckEngine(cfg.OCR.TessdataPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("tesseract is required")
	}
	logger.Info().Str("tesseract", version).Msg("ocr engine ready")

	initDB()
	initService()

	health := grpcserver.New(cfg.App.GRPCHealthAddr)
	go func() {
		if err := health.Start(); err != nil {
			logger.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	if cfg.App.Env == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter()
	srv := &http.Server{Addr: cfg.App.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info().Str("addr", cfg.App.HTTPAddr).Str("grpc_health", cfg.App.GRPCHealthAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()
	health.SetServing(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down")
	health.SetServing(false)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	health.Stop()
}

func initService() {
	var err error
	svc, classifyCache, err = analyzer.Build(cfg, analyses, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build analyzer")
	}
	ocrSem = make(chan struct{}, cfg.App.OCRConcurrency)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(requestIDMiddleware(), requestLogMiddleware(), gin.Recovery())
	if cfg.App.RequestTimeout > 0 {
		r.Use(requestTimeoutMiddleware(cfg.App.RequestTimeout))
	}
	setupRoutes(r)
	return r
}

// requestIDMiddleware keeps an incoming X-Request-ID or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func requestTimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
