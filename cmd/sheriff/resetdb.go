package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var resetDBForce bool

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Factory reset: delete all local repos, issues, and sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := initDeps(ctx); err != nil {
			return err
		}
		defer closeDeps()

		if !resetDBForce {
			rl, err := readline.New("Delete ALL local sheriff data? Type 'yes' to confirm: ")
			if err != nil {
				return err
			}
			defer rl.Close()
			line, err := rl.Readline()
			if err != nil {
				return err
			}
			if strings.TrimSpace(line) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := store.Reset(ctx); err != nil {
			return err
		}
		repoCache.Invalidate()
		fmt.Println("Database reset. Reconnect a repository with 'sheriff connect'.")
		return nil
	},
}

func init() {
	resetDBCmd.Flags().BoolVar(&resetDBForce, "force", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetDBCmd)
}
