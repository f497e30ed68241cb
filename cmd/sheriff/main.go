// Command sheriff watches a GitHub repository's issues and drives an
// autonomous remediation pipeline: sync, scope, execute, heal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamuelHanono/devin-sheriff/internal/config"
	"github.com/SamuelHanono/devin-sheriff/internal/devin"
	"github.com/SamuelHanono/devin-sheriff/internal/github"
	"github.com/SamuelHanono/devin-sheriff/internal/notify"
	"github.com/SamuelHanono/devin-sheriff/internal/orchestrator"
	"github.com/SamuelHanono/devin-sheriff/internal/storage"
	"github.com/SamuelHanono/devin-sheriff/internal/syncer"
	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Shared command dependencies, initialized by initDeps.
var (
	cfg       *config.Config
	store     storage.Storage
	repoCache *storage.RepoCache
	ghClient  *github.Client
	agent     *devin.Client
	notifier  *notify.Notifier
	orch      *orchestrator.Orchestrator
	reconcile *syncer.Syncer
)

var (
	verbose  bool
	repoFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sheriff",
	Short: "Autonomous GitHub issue remediation",
	Long: `Devin Sheriff syncs a repository's open issues, scopes fixes with a
remote agent, executes approved plans into pull requests, and auto-heals
failing CI, all tracked in a local database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository to operate on (owner/name or URL)")
}

// initDeps loads config and wires the shared clients. Commands that talk to
// remote APIs or the database call this first.
func initDeps(ctx context.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = storage.DefaultPath()
	}
	store, err = storage.NewStorage(ctx, &storage.Config{Path: dbPath})
	if err != nil {
		return err
	}
	repoCache = storage.NewRepoCache(store, storage.DefaultRepoCacheTTL)

	ghClient = github.NewClient(cfg.GitHubToken)
	agent = devin.NewClient(cfg.DevinAPIKey)
	notifier = notify.New(cfg.WebhookURL)
	orch = orchestrator.New(store, agent, ghClient, notifier)
	reconcile = syncer.New(store, ghClient)
	return nil
}

func closeDeps() {
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
}

// resolveRepo picks the repository to operate on: the --repo flag when
// given, otherwise the only connected repository.
func resolveRepo(ctx context.Context) (*types.Repo, error) {
	repos, err := repoCache.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("no repository connected (run 'sheriff connect <url>')")
	}

	if repoFlag == "" {
		if len(repos) == 1 {
			return repos[0], nil
		}
		return nil, fmt.Errorf("%d repositories connected, pick one with --repo", len(repos))
	}

	owner, name, err := github.ParseRepoURL(normalizeRepoArg(repoFlag))
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if repo.Owner == owner && repo.Name == name {
			return repo, nil
		}
	}
	return nil, fmt.Errorf("%w: repository %s/%s is not connected", types.ErrNotFound, owner, name)
}

// normalizeRepoArg accepts bare owner/name as well as a full URL.
func normalizeRepoArg(arg string) string {
	if len(arg) > 0 && arg[0] != 'h' {
		return "https://github.com/" + arg
	}
	return arg
}

// resolveIssue parses an issue number argument and loads the issue.
func resolveIssue(ctx context.Context, repo *types.Repo, arg string) (*types.Issue, error) {
	number, err := strconv.Atoi(arg)
	if err != nil || number <= 0 {
		return nil, fmt.Errorf("%w: %q is not an issue number", types.ErrValidation, arg)
	}
	return store.GetIssueByNumber(ctx, repo.ID, number)
}

// awaitTransition waits for a transition handle, printing a progress dot on
// a fixed cadence so long sessions are visibly alive.
func awaitTransition(ctx context.Context, h *orchestrator.Handle) (orchestrator.Outcome, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-h.Done():
			fmt.Println()
			outcome, _ := h.Poll()
			return outcome, nil
		case <-ticker.C:
			fmt.Print(".")
		case <-ctx.Done():
			fmt.Println()
			return orchestrator.Outcome{}, ctx.Err()
		}
	}
}
