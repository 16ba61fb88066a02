package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmateai/taskmate/cmd/taskadmin/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskadmin",
		Short: "Operational tool for the TaskMate API",
		Long:  "CLI tool for archive retention and reminder delivery inspection",
	}

	rootCmd.AddCommand(commands.NewPurgeCmd())
	rootCmd.AddCommand(commands.NewRemindersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
