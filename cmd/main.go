package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/secondbrain-backend/internal/app"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var levels []string
	if cfg.LogLevel != "" {
		levels = append(levels, cfg.LogLevel)
	}
	log, err := logger.New(cfg.LogMode, levels...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		log.Error("Failed to start background loops", "error", err)
		return
	}
	if err := a.Run(ctx, 15*time.Second); err != nil {
		log.Error("Server exited", "error", err)
	}
}
