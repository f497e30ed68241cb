package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rescopeCmd = &cobra.Command{
	Use:   "rescope <issue-number> <notes...>",
	Short: "Refine an existing plan with feedback",
	Long: `Sends the stored plan plus your refinement notes back to the agent and
replaces the plan with the result. The issue stays SCOPED.`,
	Args: cobra.MinimumNArgs(2),
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
		issue, err := resolveIssue(ctx, repo, args[0])
		if err != nil {
			return err
		}
		notes := strings.Join(args[1:], " ")

		fmt.Printf("Rescoping issue #%d with your notes\n", issue.Number)
		h, err := orch.StartRescope(ctx, repo, issue, notes)
		if err != nil {
			return err
		}
		outcome, err := awaitTransition(ctx, h)
		if err != nil {
			return err
		}
		if outcome.Err != nil {
			return outcome.Err
		}

		printPlan(outcome.Issue)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescopeCmd)
}
