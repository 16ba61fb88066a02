package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmateai/taskmate/internal/config"
	"github.com/taskmateai/taskmate/internal/database"
)

// NewPurgeCmd creates the purge command
func NewPurgeCmd() *cobra.Command {
	var olderThanDays int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Hard-delete archived tasks past retention",
		Long:  "Permanently remove soft-deleted tasks and reminder log rows older than the cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThanDays <= 0 {
				return fmt.Errorf("--older-than must be a positive number of days")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := context.Background()
			db, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			cutoff := time.Now().AddDate(0, 0, -olderThanDays)
			fmt.Printf("Purging records archived before %s\n", cutoff.Format(time.RFC3339))

			if dryRun {
				fmt.Println("Dry run: nothing deleted")
				return nil
			}

			taskRepo := database.NewTaskRepository(db)
			reminderRepo := database.NewReminderLogRepository(db)

			tasks, err := taskRepo.PurgeArchivedBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to purge archived tasks: %w", err)
			}
			reminders, err := reminderRepo.PurgeBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to purge reminder log: %w", err)
			}

			fmt.Printf("Deleted %d archived tasks and %d reminder log rows\n", tasks, reminders)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 90, "Delete records archived more than this many days ago")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the cutoff without deleting anything")

	return cmd
}
