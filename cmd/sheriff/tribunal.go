package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tribunalCmd = &cobra.Command{
	Use:   "tribunal <issue-number>",
	Short: "Get an advisory review of the issue's plan",
	Long: `Runs a review session that grades the plan's safety, efficiency, and
completeness. Advisory only: the issue and plan are never modified.`,
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

		fmt.Printf("Convening tribunal for issue #%d\n", issue.Number)
		h, err := orch.StartTribunal(ctx, repo, issue)
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

		review := outcome.Review
		bold := color.New(color.Bold).SprintFunc()
		for _, key := range []string{"safety", "efficiency", "completeness"} {
			if v, ok := review[key]; ok {
				fmt.Printf("%s %v/10\n", bold(key+":"), v)
			}
		}
		verdict, _ := review["verdict"].(string)
		verdictColor := color.New(color.FgGreen).SprintFunc()
		if verdict != "approve" {
			verdictColor = color.New(color.FgYellow).SprintFunc()
		}
		fmt.Printf("%s %s\n", bold("verdict:"), verdictColor(verdict))
		if rationale, ok := review["rationale"].(string); ok && rationale != "" {
			fmt.Printf("%s %s\n", bold("rationale:"), rationale)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tribunalCmd)
}
