package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions <issue-number>",
	Short: "Show an issue's remote session history",
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

		sessions, err := store.GetSessions(ctx, issue.ID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Printf("No sessions recorded for issue #%d\n", issue.Number)
			return nil
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s\n", bold(fmt.Sprintf("Sessions for issue #%d (newest first):", issue.Number)))
		for _, s := range sessions {
			fmt.Printf("  %s  %-8s  %-10s  %s\n",
				s.CreatedAt.Format("2006-01-02 15:04"), s.Type, s.Status, s.RemoteID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
