package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/github"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

var connectCmd = &cobra.Command{
	Use:   "connect <repo-url>",
	Short: "Connect a GitHub repository and run the first sync",
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

		url := normalizeRepoArg(args[0])
		owner, name, err := github.ParseRepoURL(url)
		if err != nil {
			return err
		}
		if _, err := store.GetRepoByURL(ctx, url); err == nil {
			return fmt.Errorf("repository %s/%s is already connected", owner, name)
		}

		details, err := ghClient.GetRepo(ctx, owner, name)
		if err != nil {
			return fmt.Errorf("could not reach repository %s/%s: %w", owner, name, err)
		}

		repo := &types.Repo{
			Owner:         owner,
			Name:          name,
			URL:           details.HTMLURL,
			DefaultBranch: details.DefaultBranch,
		}
		if err := store.CreateRepo(ctx, repo); err != nil {
			return err
		}
		repoCache.Invalidate()
		fmt.Printf("Connected %s (default branch %s)\n", repo.FullName(), repo.DefaultBranch)

		summary, err := reconcile.Sync(ctx, repo)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove a connected repository and all of its local issues",
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
		if err := store.DeleteRepo(ctx, repo.ID); err != nil {
			return err
		}
		repoCache.Invalidate()
		fmt.Printf("Disconnected %s\n", repo.FullName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}
