package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var webhookTestCmd = &cobra.Command{
	Use:   "webhook-test",
	Short: "Send a test message to the configured webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := initDeps(ctx); err != nil {
			return err
		}
		defer closeDeps()

		if err := notifier.Test(ctx); err != nil {
			return err
		}
		fmt.Println("Test notification delivered.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webhookTestCmd)
}
