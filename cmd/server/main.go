package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collector-agent/internal/app"
	"collector-agent/internal/config"
)

func main() {
	// ---- Configuration (read only here) ----
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.Port, "publicUrl", cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	if cfg.CallOnStart {
		go func() {
			started, err := a.Intake.CallCurrent(ctx)
			if err != nil {
				logger.Error("initial call failed", "err", err)
				return
			}
			logger.Info("initial call placed", "callSid", started.CallSID, "debtorId", started.DebtorID)
		}()
	}

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
		return
	}
	logger.Info("server stopped")
}
