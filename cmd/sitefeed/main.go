package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sitefeed/internal/app"
	"sitefeed/internal/config"
	"sitefeed/internal/logging"
	"sitefeed/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error", "text").Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("build pipeline", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	srv := server.New(a.Pipeline, a.Registry, log)

	log.Info("starting server", "addr", cfg.HTTPAddr)

	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
