package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/queue"
)

var (
	enqueueSource string
	enqueueStdin  bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [payload...]",
	Short: "Add work items to the queue",
	Long: `Add work items to the database queue read by ` + "`cadence serve`" + `.

Examples:
  cadence enqueue job-1 job-2
  cat jobs.txt | cadence enqueue --stdin --source nightly
`,
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueSource, "source", queue.DefaultSource, "Source label for the items")
	enqueueCmd.Flags().BoolVar(&enqueueStdin, "stdin", false, "Read one payload per line from stdin")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !cfg.QueueEnabled() {
		return fmt.Errorf("CADENCE_DB_DSN is not set")
	}

	payloads := append([]string(nil), args...)
	if enqueueStdin {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				payloads = append(payloads, line)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if len(payloads) == 0 {
		return fmt.Errorf("nothing to enqueue")
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	store := queue.NewStore(database, nil, logger)
	ctx := context.Background()
	items, err := store.Enqueue(ctx, enqueueSource, payloads...)
	if err != nil {
		return err
	}
	pending, err := store.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d items, %d pending\n", len(items), pending)
	return nil
}
