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

	"github.com/rohits-web03/vaultbox/internal/api"
	"github.com/rohits-web03/vaultbox/internal/api/handlers"
	"github.com/rohits-web03/vaultbox/internal/config"
	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/sirupsen/logrus"
)

// @title Vaultbox API
// @version 1.0
// @description Encrypted file storage: upload, list, preview/download and delete files encrypted at rest.
// @BasePath /api/v1
func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	configureLogger(log, cfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func configureLogger(log *logrus.Logger, cfg config.Config) {
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

func run(cfg config.Config, log *logrus.Logger) error {
	for _, dir := range []string{cfg.Storage.Root, cfg.Storage.TempDir(), cfg.Storage.AvatarDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}

	// Connect to database
	db, err := repositories.ConnectDatabase(cfg.DBDriver, cfg.DB_URL, log)
	if err != nil {
		return err
	}
	log.WithField("driver", cfg.DBDriver).Info("Database connected and migrated")

	codec, err := encryption.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	pipeline := encryption.NewPipeline(codec, encryption.PipelineOptions{
		StreamThreshold: cfg.Storage.StreamThresholdBytes(),
		MaxConcurrent:   cfg.Storage.MaxConcurrentCrypto,
	})

	var mirror repositories.BlobMirror
	if cfg.R2.Enabled() {
		mirror = repositories.NewR2Mirror(cfg.R2)
		log.WithField("bucket", cfg.R2.BucketName).Info("Mirroring ciphertext to R2")
	}

	files := repositories.NewFileRepository(db)
	users := repositories.NewUserRepository(db)

	h := handlers.New(handlers.Deps{
		Uploads:     services.NewUploadService(cfg.Storage, pipeline, files, mirror, log),
		Retrieval:   services.NewRetrievalService(files, pipeline, log),
		Deletion:    services.NewDeletionService(files, mirror, log),
		Accounts:    services.NewAccountService(users, cfg.JWTSecret, cfg.TokenTTL, cfg.Storage.AvatarDir(), log),
		Google:      services.NewGoogleProvider(cfg.Google),
		Log:         log,
		TempDir:     cfg.Storage.TempDir(),
		FrontendURL: cfg.FrontendURL,
		Production:  cfg.IsProduction(),
	})

	mux := api.SetupRouter(h, api.RouterConfig{
		JWTSecret:   []byte(cfg.JWTSecret),
		CorsOptions: cfg.CorsConfig,
		AvatarDir:   cfg.Storage.AvatarDir(),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: mux,
		// Timeouts prevent resource exhaustion from slow clients. Bodies and
		// responses can be large, so only headers and idle time are bounded.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("Starting Vaultbox server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on port %s: %w", cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
