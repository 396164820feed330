package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sitefeed/internal/app"
	"sitefeed/internal/bot"
	"sitefeed/internal/config"
	"sitefeed/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireBot()
	}
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

	b, err := bot.New(cfg.TelegramBotToken, a.Pipeline, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot")

	b.Run(ctx)

	log.Info("bot stopped")
}
