package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var closeRemote bool

var closeCmd = &cobra.Command{
	Use:   "close <issue-number>",
	Short: "Mark an issue DONE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := initDeps(ctx); err != nil {
			return err
		}
		defer closeDeps()
		if closeRemote {
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		repo, err := resolveRepo(ctx)
		if err != nil {
			return err
		}
		issue, err := resolveIssue(ctx, repo, args[0])
		if err != nil {
			return err
		}

		if _, err := orch.Close(ctx, repo, issue, closeRemote); err != nil {
			return err
		}
		fmt.Printf("Issue #%d closed\n", issue.Number)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <issue-number>",
	Short: "Return an issue to NEW, clearing plan, PR, and CI state",
	Long: `Clears the plan, PR reference, CI status, and last error. The heal
retry count is preserved; the ceiling counts attempts per issue.`,
	Args: cobra.ExactArgs(1),
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

		if _, err := orch.Reset(ctx, issue); err != nil {
			return err
		}
		fmt.Printf("Issue #%d reset to NEW\n", issue.Number)
		return nil
	},
}

func init() {
	closeCmd.Flags().BoolVar(&closeRemote, "remote", false, "also close the issue on GitHub")
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(resetCmd)
}
