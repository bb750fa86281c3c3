// Package main provides the compositor API server entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/chicogong/media-compositor/pkg/api"
	"github.com/chicogong/media-compositor/pkg/auth"
	"github.com/chicogong/media-compositor/pkg/compiler"
	"github.com/chicogong/media-compositor/pkg/compiler/validator"
	"github.com/chicogong/media-compositor/pkg/config"
	"github.com/chicogong/media-compositor/pkg/executor"
	"github.com/chicogong/media-compositor/pkg/geometry"
	"github.com/chicogong/media-compositor/pkg/prober"
	"github.com/chicogong/media-compositor/pkg/render"
	"github.com/chicogong/media-compositor/pkg/storage"
	"github.com/chicogong/media-compositor/pkg/store"
)

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := newStorageRouter(ctx, cfg)
	if err != nil {
		return err
	}

	s := store.NewMemoryStore(cfg.Store.MaxRecords)
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	output := geometry.NewSpace(cfg.Render.Width, cfg.Render.Height)
	v := validator.New(output)
	v.AllowPrivateNetworks = cfg.Render.AllowPrivateNetworks
	v.LocalRoot = cfg.Storage.LocalRoot

	svc := render.NewService(render.Deps{
		Validator: v,
		Compiler: compiler.New(compiler.Options{
			Width:           cfg.Render.Width,
			Height:          cfg.Render.Height,
			DefaultDuration: cfg.Render.DefaultDuration,
			FontFamily:      cfg.Render.FontFamily,
		}),
		Builder:  executor.NewCommandBuilder(cfg.Render.FFmpegPath),
		Executor: executor.NewExecutor(logger, cfg.Render.Timeout),
		Staging:  executor.NewStorageManager(cfg.Render.StagingDir, router, logger, cfg.Render.KeepStaging),
		Prober:   newProber(cfg),
		Store:    s,
		Metrics:  render.NewMetrics(reg),
		Logger:   logger,
	})

	authenticator, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(svc, logger, cfg.Render.MaxUploadBytes)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      setupRoutes(server, reg, logger, authenticator),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", httpServer.Addr),
			zap.Int("width", cfg.Render.Width),
			zap.Int("height", cfg.Render.Height),
			zap.Bool("auth", authenticator != nil),
			zap.Bool("keep_staging", cfg.Render.KeepStaging),
		)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

func newStorageRouter(ctx context.Context, cfg *config.Config) (*storage.Router, error) {
	router := storage.NewRouter()
	router.Register(storage.NewLocalStorage(), "file")
	router.Register(storage.NewHTTPStorage(storage.WithMaxBytes(cfg.Render.MaxDownloadBytes)), "http", "https")

	if cfg.Storage.S3Enabled {
		s3, err := storage.NewS3Storage(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		router.Register(s3, "s3")
	}
	return router, nil
}

func newProber(cfg *config.Config) *prober.Prober {
	if cfg.Render.FFprobePath == "" {
		return nil
	}
	return prober.NewProber(prober.WithFFprobePath(cfg.Render.FFprobePath))
}

func newAuthenticator(cfg config.AuthConfig) (*auth.AuthMiddleware, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	}

	var keys *auth.APIKeyManager
	if len(cfg.APIKeys) > 0 {
		keys = auth.NewAPIKeyManager()
		for _, k := range cfg.APIKeys {
			if err := keys.Register(k.Key, k.UserID, k.Name, nil); err != nil {
				return nil, fmt.Errorf("api key for %s: %w", k.UserID, err)
			}
		}
	}

	return auth.NewAuthMiddleware(jwtManager, keys, "/health"), nil
}
