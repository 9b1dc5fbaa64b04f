package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/docket/internal/app"
	"github.com/MrJamesThe3rd/docket/internal/config"
	docketHttp "github.com/MrJamesThe3rd/docket/internal/http"
	documentHandler "github.com/MrJamesThe3rd/docket/internal/http/document"
	matchingHandler "github.com/MrJamesThe3rd/docket/internal/http/matching"
	recordHandler "github.com/MrJamesThe3rd/docket/internal/http/record"
	verificationHandler "github.com/MrJamesThe3rd/docket/internal/http/verification"
	"github.com/MrJamesThe3rd/docket/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	uploadLimit, err := docketHttp.UploadLimit(cfg.Upload.RateLimit, cfg.Upload.TrustProxy)
	if err != nil {
		return err
	}

	var (
		documentH     = documentHandler.NewHandler(a.Documents, a.Pipeline, cfg.Upload.MaxBytes, uploadLimit)
		verificationH = verificationHandler.NewHandler(a.Queue)
		recordH       = recordHandler.NewHandler(a.Records)
		matchingH     = matchingHandler.NewHandler(a.Matching)
	)

	router := docketHttp.New(docketHttp.Options{
		CORSOrigins: cfg.App.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.Issuer,
	}, documentH, verificationH, recordH, matchingH)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	pipelineDone := make(chan error, 1)

	go func() {
		pipelineDone <- a.Pipeline.Run(ctx)
	}()

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("starting server", "port", srv.Addr, "store", cfg.App.StoreDriver, "storage", cfg.Storage.Driver)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		return err
	case err := <-pipelineDone:
		stop()
		return fmt.Errorf("pipeline stopped: %w", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	if err := <-pipelineDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline stopped: %w", err)
	}

	return nil
}
