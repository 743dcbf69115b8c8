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

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/channels"
	"github.com/rainbow-desk/rainbow/internal/config"
)

var whatsappCmd = &cobra.Command{
	Use:   "whatsapp",
	Short: "Link a WhatsApp account (QR pairing)",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📱 WhatsApp Setup")
		if err := runWhatsAppSetup(); err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}
	},
}

func runWhatsAppSetup() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Pairing works regardless of whether the channel is enabled in config.
	waCfg := cfg.Channels.WhatsApp
	waCfg.Enabled = true

	ch := channels.NewWhatsAppChannel(waCfg, cfg.Paths.Workspace, bus.NewMessageBus(), slog.Default())
	if err := ch.Start(ctx); err != nil {
		return err
	}
	defer ch.Stop()

	fmt.Println("Session stored. Press Ctrl+C to exit.")
	<-ctx.Done()
	return nil
}
