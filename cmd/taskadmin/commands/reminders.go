package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmateai/taskmate/internal/config"
	"github.com/taskmateai/taskmate/internal/database"
)

// NewRemindersCmd creates the reminders command group
func NewRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect reminder delivery",
	}

	cmd.AddCommand(newRemindersStatsCmd())

	return cmd
}

func newRemindersStatsCmd() *cobra.Command {
	var sinceHours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show reminder delivery counts",
		Long:  "Show how many reminders were sent, total and per kind",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			reminderRepo := database.NewReminderLogRepository(db)

			since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			recent, err := reminderRepo.CountSince(ctx, since)
			if err != nil {
				return fmt.Errorf("failed to count recent reminders: %w", err)
			}

			byKind, err := reminderRepo.CountByKind(ctx)
			if err != nil {
				return fmt.Errorf("failed to count reminders by kind: %w", err)
			}

			fmt.Printf("Reminders sent in the last %dh: %d\n", sinceHours, recent)
			if len(byKind) == 0 {
				fmt.Println("No reminders recorded")
				return nil
			}

			kinds := make([]string, 0, len(byKind))
			for kind := range byKind {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)

			fmt.Println("All-time by kind:")
			for _, kind := range kinds {
				fmt.Printf("  %-35s %d\n", kind, byKind[kind])
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&sinceHours, "since", 24, "Window in hours for the recent count")

	return cmd
}
