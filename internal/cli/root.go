// Package cli implements the rainbow command-line interface.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/rainbow-desk/rainbow/internal/cli.version=1.2.3"
	version = "1.4.0"
	logo    = "\n" +
		"  ____       _       _\n" +
		" |  _ \\ __ _(_)_ __ | |__   _____      __\n" +
		" | |_) / _` | | '_ \\| '_ \\ / _ \\ \\ /\\ / /\n" +
		" |  _ < (_| | | | | | |_) | (_) \\ V  V /\n" +
		" |_| \\_\\__,_|_|_| |_|_.__/ \\___/ \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "rainbow",
	Short: "Rainbow - WhatsApp guest assistant for hostels and guesthouses",
	Long:  color.CyanString(logo) + "\nA multilingual WhatsApp assistant that answers guests, runs booking and incident workflows, and escalates to staff when it should.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(accuracyCmd)
	rootCmd.AddCommand(whatsappCmd)
}
