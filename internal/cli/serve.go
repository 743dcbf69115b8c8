package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rainbow-desk/rainbow/internal/channels"
	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/gateway"
	"github.com/rainbow-desk/rainbow/internal/knowledge"
	"github.com/rainbow-desk/rainbow/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant (WhatsApp, scheduler, preview gateway)",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🚀 Rainbow")
		if err := runServe(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.KnowledgeDir, 0755); err != nil {
		return fmt.Errorf("create knowledge dir: %w", err)
	}

	c, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	// Hot reload: the config store actor watches its directory; changed
	// files are pushed into the live components.
	go func() {
		if err := c.cfgStore.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("config store stopped", "error", err)
		}
	}()
	go func() {
		for name := range c.cfgStore.Subscribe() {
			c.applyReload(name)
		}
	}()

	go func() {
		if err := c.msgBus.DispatchOutbound(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbound dispatch stopped", "error", err)
		}
	}()

	watcher, err := knowledge.NewWatcher(c.retriever, logger)
	if err != nil {
		logger.Warn("knowledge watcher unavailable", "error", err)
	} else {
		go watcher.Run(ctx)
	}

	go func() {
		if err := c.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	wa := channels.NewWhatsAppChannel(cfg.Channels.WhatsApp, cfg.Paths.Workspace, c.msgBus, logger)
	if err := wa.Start(ctx); err != nil {
		return fmt.Errorf("whatsapp channel: %w", err)
	}
	defer wa.Stop()

	gw := gateway.NewServer(c.engine, c.convStore, cfg.Gateway, logger)
	go func() {
		if err := gw.Run(ctx); err != nil {
			logger.Error("gateway stopped", "error", err)
		}
	}()

	logger.Info("rainbow running",
		"whatsapp", cfg.Channels.WhatsApp.Enabled,
		"gateway", cfg.Gateway.Enabled,
		"scheduler", cfg.Scheduler.Enabled)

	pool := worker.NewPool(c.msgBus, c.engine, logger)
	return pool.Run(ctx)
}
