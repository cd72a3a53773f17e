package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/iliyamo/datepoll/internal/config"
	"github.com/iliyamo/datepoll/internal/logging"
	"github.com/iliyamo/datepoll/internal/queue"
)

// worker drains the activity queue into an append-only log file.
func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	path := os.Getenv("ACTIVITY_LOG_PATH")
	if path == "" {
		path = "logs/activity.log"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", queue.ActivityQueue).Str("path", path).Msg("activity worker starting")
	if err := queue.StartActivityConsumer(ctx, cfg.RabbitURL, queue.ActivityLog{Path: path}, log); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("activity consumer stopped")
	}
}
