package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rainbow-desk/rainbow/internal/config"
)

var chatPhone string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant from the terminal (no WhatsApp needed)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runChat(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatPhone, "phone", "60100000001", "phone number the simulated guest sends from")
}

func runChat() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	printHeader("💬 Rainbow Chat")
	fmt.Printf("Chatting as %s. Type 'exit' to quit.\n\n", chatPhone)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.GreenString("You: "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}

		resp, err := c.engine.HandleMessage(ctx, chatPhone, text, "Guest")
		if err != nil {
			fmt.Println(color.RedString("error: %v", err))
			continue
		}
		fmt.Printf("%s %s\n", color.CyanString("Rainbow:"), resp.Reply)
		fmt.Println(color.HiBlackString("  intent=%s tier=%s confidence=%.2f lang=%s %dms",
			resp.Intent, resp.Tier, resp.Confidence, resp.DetectedLanguage, resp.ResponseTimeMs))
	}
}
