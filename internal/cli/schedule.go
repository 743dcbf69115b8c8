package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/scheduler"
)

var (
	scheduleAt     string
	scheduleRepeat string
	scheduleStatus string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled messages",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <phone> <message>",
	Short: "Queue a message for later delivery",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSchedulerStore()
		if err != nil {
			fail(err)
		}
		defer store.Close()

		fireAt, err := parseFireAt(scheduleAt)
		if err != nil {
			fail(err)
		}
		task := &scheduler.Task{
			Phone:   args[0],
			Payload: args[1],
			FireAt:  fireAt,
			Repeat:  scheduleRepeat,
			Creator: "cli",
		}
		if err := store.Schedule(task); err != nil {
			fail(err)
		}
		fmt.Printf("Scheduled %s for %s at %s\n", task.ID, task.Phone, task.FireAt.Format(time.RFC3339))
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled messages",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSchedulerStore()
		if err != nil {
			fail(err)
		}
		defer store.Close()

		tasks, err := store.List(scheduleStatus)
		if err != nil {
			fail(err)
		}
		if len(tasks) == 0 {
			fmt.Println("No scheduled messages.")
			return
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-9s  %s  %s  %q\n",
				t.ID, t.Status, t.FireAt.Local().Format("2006-01-02 15:04"), t.Phone, t.Payload)
		}
	},
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending scheduled message",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSchedulerStore()
		if err != nil {
			fail(err)
		}
		defer store.Close()

		if err := store.Cancel(args[0]); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				fail(fmt.Errorf("no pending task with id %s", args[0]))
			}
			fail(err)
		}
		fmt.Printf("Cancelled %s\n", args[0])
	},
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleAt, "at", "", "fire time, RFC3339 or duration from now like 2h30m (required)")
	scheduleAddCmd.Flags().StringVar(&scheduleRepeat, "repeat", "none", "repeat rule: none, daily, weekly, monthly")
	scheduleAddCmd.MarkFlagRequired("at")
	scheduleListCmd.Flags().StringVar(&scheduleStatus, "status", "", "filter by status: pending, sent, cancelled, failed")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleCancelCmd)
}

func openSchedulerStore() (*scheduler.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.Workspace, 0755); err != nil {
		return nil, err
	}
	return scheduler.NewStore(cfg.Paths.DatabasePath)
}

func parseFireAt(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339 or a duration like 45m: %w", err)
	}
	return t, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
