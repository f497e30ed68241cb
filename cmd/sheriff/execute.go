package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

var executePlanFile string

var executeCmd = &cobra.Command{
	Use:   "execute <issue-number>",
	Short: "Implement the approved plan and open a pull request",
	Long: `Runs an execute session for a SCOPED issue. With --plan-file, the given
JSON plan is used for this run only; the stored plan is never replaced.`,
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

		var override *types.Plan
		if executePlanFile != "" {
			override, err = readPlanFile(executePlanFile)
			if err != nil {
				return err
			}
		}

		fmt.Printf("Executing plan for issue #%d: %s\n", issue.Number, issue.Title)
		h, err := orch.StartExecute(ctx, repo, issue, override)
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
		fmt.Printf("%s %s\n", green("PR opened:"), outcome.Issue.PRURL)
		return nil
	},
}

func readPlanFile(path string) (*types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan types.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid plan: %v", types.ErrValidation, path, err)
	}
	return &plan, nil
}

func init() {
	executeCmd.Flags().StringVar(&executePlanFile, "plan-file", "", "JSON plan overriding the stored plan for this run only")
	rootCmd.AddCommand(executeCmd)
}
