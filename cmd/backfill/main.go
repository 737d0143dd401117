package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/forid0k/signalx/internal/backfill"
	"github.com/forid0k/signalx/internal/bot"
	"github.com/forid0k/signalx/internal/config"
	"github.com/forid0k/signalx/internal/util"
)

// One-shot history import: pulls the round-history endpoint and pushes every
// derived signal through the same pipeline the live binary runs.
func main() {
	_ = godotenv.Load()

	log := util.NewLogger(getEnv("LOG_LEVEL", "info"))

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.History.URL == "" {
		log.Fatal().Msg("history.url is required for backfill")
	}

	pipe, err := bot.NewPipeline(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Replayed rounds mirror to telegram like live ones, so the worker runs
	// for the import and flushes its queue before the process exits.
	notifyDone := make(chan struct{})
	if notifier := pipe.Notifier(); notifier != nil {
		go func() {
			defer close(notifyDone)
			notifier.Run(ctx)
		}()
	} else {
		close(notifyDone)
	}

	importer := backfill.NewImporter(cfg.History.URL, pipe.Interpreter(), util.Component(log, "backfill"))
	err = importer.Run(ctx, pipe.Handle)

	if notifier := pipe.Notifier(); notifier != nil {
		notifier.Close()
	}
	<-notifyDone

	if err != nil {
		log.Fatal().Err(err).Msg("backfill failed")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
