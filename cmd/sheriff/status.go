package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the repository's issue pipeline",
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
		issues, err := store.ListIssues(ctx, repo.ID)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== "+repo.FullName()+" ==="))

		shown := 0
		counts := map[types.Status]int{}
		for _, issue := range issues {
			counts[issue.Status]++
			if !statusAll && issue.State == types.StateClosed {
				continue
			}
			printIssueLine(issue)
			shown++
		}
		if shown == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("  %s\n", gray("No open issues (use --all to include closed)"))
		}

		fmt.Printf("\n%d issues: %d new, %d scoped, %d executing, %d pr open, %d done, %d failed\n",
			len(issues), counts[types.StatusNew], counts[types.StatusScoped],
			counts[types.StatusExecuting], counts[types.StatusPROpen],
			counts[types.StatusDone], counts[types.StatusFailed])
		return nil
	},
}

func printIssueLine(issue *types.Issue) {
	fmt.Printf("  #%-5d %s  %s", issue.Number, colorStatus(issue.Status), truncateTitle(issue.Title, 60))
	if issue.Plan != nil && issue.Plan.RiskTier != "" {
		fmt.Printf("  [%s risk, %d%%]", issue.Plan.RiskTier, issue.Plan.Confidence)
	}
	if issue.Status == types.StatusPROpen {
		fmt.Printf("  ci=%s", issue.CIStatus)
		if issue.RetryCount > 0 {
			fmt.Printf(" heals=%d/%d", issue.RetryCount, types.MaxHealRetries)
		}
	}
	if issue.LastError != "" {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("  %s", red("!"))
	}
	fmt.Println()
}

func colorStatus(status types.Status) string {
	switch status {
	case types.StatusNew:
		return color.New(color.FgWhite).Sprintf("%-9s", status)
	case types.StatusScoped:
		return color.New(color.FgYellow).Sprintf("%-9s", status)
	case types.StatusExecuting:
		return color.New(color.FgBlue).Sprintf("%-9s", status)
	case types.StatusPROpen:
		return color.New(color.FgCyan).Sprintf("%-9s", status)
	case types.StatusDone:
		return color.New(color.FgGreen).Sprintf("%-9s", status)
	case types.StatusFailed:
		return color.New(color.FgRed).Sprintf("%-9s", status)
	default:
		return fmt.Sprintf("%-9s", status)
	}
}

func truncateTitle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "include closed issues")
	rootCmd.AddCommand(statusCmd)
}
