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

	"docscan/internal/bootstrap"
	"docscan/internal/config"
	"docscan/internal/handler"
	"docscan/internal/logging"
	"docscan/internal/port"
	"docscan/internal/repository/postgres"
	"docscan/internal/router"
	"docscan/internal/service"
	s3storage "docscan/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(&cfg.Log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	outcomeRepo := postgres.NewOutcomeRepo(db)
	auditRepo := postgres.NewAttemptAuditRepo(db)

	// Initialize storage
	maxBytes := cfg.Pipeline.MaxUploadMB * 1024 * 1024
	var storage port.ObjectStorage
	if cfg.S3.Bucket != "" {
		storage, err = s3storage.NewS3Client(&cfg.S3, maxBytes)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}

	// Initialize the recognition pipeline with every registered backend so
	// requests can name any of them.
	p, err := bootstrap.NewPipeline(cfg, nil, log)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer p.Close()

	// Initialize services and handlers
	processingSvc := service.NewProcessingService(p.Controller, outcomeRepo, auditRepo, storage, cfg.Pipeline, &cfg.S3, log)
	processingH := handler.NewProcessingHandler(processingSvc, maxBytes, log)
	healthH := handler.NewHealthHandler(db, p.Backends.Names())

	r := router.Setup(processingH, healthH, cfg.CORS.AllowedOrigins, log)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Server.Port, "backends", p.Backends.Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Deadline+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
