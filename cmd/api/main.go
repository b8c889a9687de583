package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/app/bootstrap"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/tracing"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/config"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New(cfg.ServiceName, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(tracing.Config{
		ServiceName: cfg.ServiceName,
		AppName:     cfg.AppName,
		Stdout:      cfg.TraceStdout,
	})
	if err != nil {
		log.Error("failed to configure tracing", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.ModeServer, prometheus.DefaultRegisterer, log)
	if err != nil {
		log.Error("failed to start item service", "error", err)
		os.Exit(1)
	}
	app.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("item api starting", "addr", cfg.Addr, "item_store", cfg.ItemStore, "blob_store", cfg.BlobStore)
		errorCh <- srv.ListenAndServe()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("item api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			exitCode = 1
		}
		stop()
	}

	if err := app.Close(); err != nil {
		log.Error("failed to release resources", "error", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("trace flush failed", "error", err)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
