package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

var scopeCmd = &cobra.Command{
	Use:   "scope <issue-number>",
	Short: "Run a scope session to produce a remediation plan",
	Args:  cobra.ExactArgs(1),
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

		fmt.Printf("Scoping issue #%d: %s\n", issue.Number, issue.Title)
		h, err := orch.StartScope(ctx, repo, issue)
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

func printPlan(issue *types.Issue) {
	plan := issue.Plan
	if plan == nil {
		fmt.Println("No plan recorded.")
		return
	}
	if issue.LastError != "" {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s %s\n", yellow("Warning:"), issue.LastError)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s %s\n", bold("Plan:"), plan.Summary)
	if len(plan.FilesToChange) > 0 {
		fmt.Printf("%s\n", bold("Files:"))
		for _, f := range plan.FilesToChange {
			fmt.Printf("  - %s\n", f)
		}
	}
	if len(plan.ActionPlan) > 0 {
		fmt.Printf("%s\n", bold("Steps:"))
		for i, step := range plan.ActionPlan {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}
	fmt.Printf("%s %d%%   %s %s", bold("Confidence:"), plan.Confidence, bold("Risk:"), plan.RiskTier)
	if plan.RiskRationale != "" {
		fmt.Printf(" (%s)", plan.RiskRationale)
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(scopeCmd)
}
