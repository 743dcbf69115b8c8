package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
)

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Show intent classification accuracy",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fail(err)
		}
		store, err := conversation.NewStore(cfg.Paths.DatabasePath)
		if err != nil {
			fail(err)
		}
		defer store.Close()

		report, err := store.Accuracy()
		if err != nil {
			fail(err)
		}

		printHeader("🎯 Intent Accuracy")
		fmt.Printf("Predictions: %d total, %d reviewed\n", report.Total, report.Reviewed)
		if report.AccuracyRate == nil {
			fmt.Println("Accuracy:    n/a (no reviewed predictions yet)")
		} else {
			fmt.Printf("Accuracy:    %.1f%% (%d correct, %d incorrect)\n",
				*report.AccuracyRate*100, report.Correct, report.Incorrect)
		}

		printBuckets("By tier", report.ByTier)
		printBuckets("By intent", report.ByIntent)
	},
}

func printBuckets(title string, buckets map[string]conversation.AccuracyBucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Println("\n" + title + ":")
	for name, b := range buckets {
		if b.AccuracyRate == nil {
			fmt.Printf("  %-20s %d predictions, unreviewed\n", name, b.Total)
			continue
		}
		fmt.Printf("  %-20s %d predictions, %.1f%%\n", name, b.Total, *b.AccuracyRate*100)
	}
}
