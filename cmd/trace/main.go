package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mindjig/trace-core/internal/cli"
	"github.com/mindjig/trace-core/internal/config"
	"github.com/mindjig/trace-core/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	log := logging.NewTextLogger(os.Stderr, slog.LevelInfo)

	app, err := cli.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
