package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard <issue-number>",
	Short: "Throw away a plan and return the issue to NEW",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := initDeps(ctx); err != nil {
			return err
		}
		defer closeDeps()

		repo, err := resolveRepo(ctx)
		if err != nil {
			return err
		}
		issue, err := resolveIssue(ctx, repo, args[0])
		if err != nil {
			return err
		}

		if _, err := orch.Discard(ctx, issue); err != nil {
			return err
		}
		fmt.Printf("Plan discarded, issue #%d is NEW again\n", issue.Number)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discardCmd)
}
