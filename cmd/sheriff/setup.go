package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/config"
	"github.com/SamuelHanono/devin-sheriff/internal/github"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively configure credentials and webhook",
	Long: `Prompts for the GitHub token, Devin API key, and optional webhook URL,
verifies the GitHub token, and writes ~/.devin-sheriff/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		existing, err := config.Load()
		if err != nil {
			return err
		}

		rl, err := readline.New("> ")
		if err != nil {
			return fmt.Errorf("failed to open terminal: %w", err)
		}
		defer rl.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Devin Sheriff Setup ==="))

		token, err := promptSecret(rl, "GitHub personal access token", existing.GitHubToken)
		if err != nil {
			return err
		}
		apiKey, err := promptSecret(rl, "Devin API key", existing.DevinAPIKey)
		if err != nil {
			return err
		}
		webhook, err := promptText(rl, "Webhook URL (Slack/Discord, optional)", existing.WebhookURL)
		if err != nil {
			return err
		}

		fmt.Print("Verifying GitHub token... ")
		login, err := github.NewClient(token).VerifyAuth(ctx)
		if err != nil {
			return fmt.Errorf("token verification failed: %w", err)
		}
		fmt.Printf("ok (authenticated as %s)\n", login)

		cfg := &config.Config{
			GitHubToken:  token,
			DevinAPIKey:  apiKey,
			WebhookURL:   webhook,
			DatabasePath: existing.DatabasePath,
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Configuration saved to %s\n", config.Path())
		return nil
	},
}

// promptSecret reads a credential without echo. Empty input keeps the
// current value when one exists.
func promptSecret(rl *readline.Instance, label, current string) (string, error) {
	suffix := ": "
	if current != "" {
		suffix = " [keep current]: "
	}
	data, err := rl.ReadPassword(label + suffix)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		if current != "" {
			return current, nil
		}
		return "", fmt.Errorf("%s is required", label)
	}
	return value, nil
}

func promptText(rl *readline.Instance, label, current string) (string, error) {
	suffix := ": "
	if current != "" {
		suffix = " [keep current]: "
	}
	rl.SetPrompt(label + suffix)
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return current, nil
	}
	return value, nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
