package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"careerlens/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(services.Logger)

	if err := NewApp(services).Run(ctx); err != nil {
		services.Logger.Error("server failed", "error", err)
		stop()
		os.Exit(1)
	}
}
