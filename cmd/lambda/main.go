package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"collector-agent/internal/app"
	"collector-agent/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "err", err)
		os.Exit(1)
	}

	lambda.Start(a.Handler.Handle)
}
