package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

var checkCICmd = &cobra.Command{
	Use:   "check-ci <issue-number>",
	Short: "Inspect CI for the issue's pull request",
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

		ci, err := orch.CheckCI(ctx, repo, issue)
		if err != nil {
			return err
		}

		fmt.Printf("CI for issue #%d (%s): %s\n", issue.Number, issue.PRURL, colorCI(ci.Status))
		for _, f := range ci.Failures {
			fmt.Printf("  - %s", f.Name)
			if f.Detail != "" {
				fmt.Printf(": %s", f.Detail)
			}
			fmt.Println()
		}
		return nil
	},
}

var healCmd = &cobra.Command{
	Use:   "heal <issue-number>",
	Short: "Auto-heal a failing pull request",
	Long: `Checks CI for the issue's pull request and, if it is failing and the
retry ceiling allows, re-runs execution with the failure context. At most
` + fmt.Sprint(types.MaxHealRetries) + ` heal attempts are made per issue.`,
	Args: cobra.ExactArgs(1),
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

		fmt.Printf("Healing issue #%d\n", issue.Number)
		h, err := orch.Heal(ctx, repo, issue)
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

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s heal %d/%d pushed to %s\n",
			green("Done:"), outcome.Issue.RetryCount, types.MaxHealRetries, outcome.Issue.PRURL)
		return nil
	},
}

func colorCI(status types.CIStatus) string {
	switch status {
	case types.CIPassing:
		return color.GreenString(string(status))
	case types.CIFailing:
		return color.RedString(string(status))
	case types.CIPending:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func init() {
	rootCmd.AddCommand(checkCICmd)
	rootCmd.AddCommand(healCmd)
}
