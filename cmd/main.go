package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"photoflow/internal/api"
	"photoflow/internal/config"
	fileutil "photoflow/internal/file"
	"photoflow/internal/upload"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("ensure data dir")
	}

	manager := buildManager(cfg)

	router := setupRouter()
	wireRoutes(router, manager, cfg.DataDir)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	manager.SetBaseContext(baseCtx)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("photoflow listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, manager, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger())
	return r
}

func buildManager(cfg config.Config) *upload.Manager {
	m := upload.NewManagerWithOptions(upload.Options{
		DataDir:           cfg.DataDir,
		MaxItems:          cfg.MaxItems,
		MaxFileSize:       cfg.MaxFileSizeBytes,
		MaxEdge:           cfg.MaxEdge,
		JPEGQuality:       cfg.JPEGQuality,
		AllowedExtensions: cfg.AllowedExtensions,
	})

	if err := m.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("restore items from disk failed")
	}
	return m
}

func wireRoutes(router *gin.Engine, manager *upload.Manager, dataDir string) {
	apiHandler := api.NewAPI(manager, dataDir)
	apiHandler.RegisterRoutes(router)

	uiHandler := api.NewUI(manager)
	uiHandler.RegisterRoutes(router)
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, m *upload.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !m.WaitAll(ctx) {
		log.Warn().Msg("background workers did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
