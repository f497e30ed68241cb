package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local issues with the remote tracker",
	Long: `Fetches the repository's open issues, creates new local records,
overwrites content on existing ones, closes issues that were resolved
remotely, and marks issues with merged pull requests DONE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := initDeps(ctx); err != nil {
			return err
		}
		defer closeDeps()
		if err := cfg.Validate(); err != nil {
			return err
		}

		repo, err := resolveRepo(ctx)
		if err != nil {
			return err
		}

		summary, err := reconcile.Sync(ctx, repo)
		if err != nil {
			return err
		}
		fmt.Println(summary)

		merged, err := reconcile.SyncPRStatuses(ctx, repo)
		if err != nil {
			return err
		}
		if merged > 0 {
			fmt.Printf("%d issue(s) closed via merged pull requests\n", merged)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
