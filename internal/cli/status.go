package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rainbow-desk/rainbow/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Rainbow Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Rainbow Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:   ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:   ✗ Not found (defaults in effect)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:   ✗ %v\n", err)
			return
		}

		// Provider keys
		keyed := 0
		for _, p := range cfg.Providers {
			if p.Enabled && p.APIKey != "" {
				keyed++
			}
		}
		if keyed > 0 {
			fmt.Printf("Providers: ✓ %d with API keys\n", keyed)
		} else {
			fmt.Println("Providers: ✗ No API keys configured")
		}

		// WhatsApp session + QR location
		if cfg.Channels.WhatsApp.Enabled {
			fmt.Println("WhatsApp: ✓ Enabled")
		} else {
			fmt.Println("WhatsApp: ✗ Disabled")
		}
		waDB := filepath.Join(cfg.Paths.Workspace, "whatsapp.db")
		qrPath := filepath.Join(cfg.Paths.Workspace, "whatsapp-qr.png")
		if _, err := os.Stat(waDB); err == nil {
			fmt.Println("WhatsApp Link: ✓ Session found (no QR needed)")
		} else {
			fmt.Println("WhatsApp Link: ✗ No session (QR needed)")
			fmt.Println("WhatsApp QR:   " + qrPath)
		}

		// Gateway
		if cfg.Gateway.Enabled {
			fmt.Printf("Gateway:  ✓ %s\n", cfg.Gateway.Addr)
		} else {
			fmt.Println("Gateway:  ✗ Disabled")
		}

		fmt.Println("Status:   Ready")
	},
}
