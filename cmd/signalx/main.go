package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/forid0k/signalx/internal/bot"
	"github.com/forid0k/signalx/internal/config"
	"github.com/forid0k/signalx/internal/metrics"
	"github.com/forid0k/signalx/internal/util"
)

func main() {
	_ = godotenv.Load()

	log := util.NewLogger("info")

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	b, err := bot.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build bot")
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr, b.Healthz())
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("pipeline stopped")
	}
}
