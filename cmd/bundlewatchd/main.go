package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/go-github/v68/github"
	"github.com/spf13/cobra"

	"github.com/schaermu/bundlewatchd/internal/builder"
	"github.com/schaermu/bundlewatchd/internal/compare"
	"github.com/schaermu/bundlewatchd/internal/config"
	"github.com/schaermu/bundlewatchd/internal/git"
	"github.com/schaermu/bundlewatchd/internal/publish"
	"github.com/schaermu/bundlewatchd/internal/snapshot"
	"github.com/schaermu/bundlewatchd/internal/store"
	"github.com/schaermu/bundlewatchd/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	prNumber  int
	recordRef string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bundlewatchd",
	Short: "Track and report frontend bundle sizes on pull requests",
	Long: `bundlewatchd measures the size of a frontend build output, compares it
against a recorded base snapshot, and publishes the difference as a pull
request comment.

It can run as a oneshot report (via CI) or as a long-running webhook daemon
that responds to GitHub pull request events.`,
	SilenceUsage: true,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare the current build against the base and publish a report",
	Long: `Report reads the build manifest from the current build output, measures
every route's assets, and diffs the result against the base snapshot.

The rendered report is posted as a pull request comment, updating the
previous report comment in place when one exists. Without --pr the report
is printed to stdout instead.`,
	RunE: runReport,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the current build as the base snapshot",
	Long: `Record analyzes the current build output and stores the snapshot as the
base record for its branch, typically after a merge to the main branch.

The record key defaults to the currently checked out branch; override it
with --ref.`,
	RunE: runRecord,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the current build and print the report to stdout",
	RunE:  runAnalyze,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub
pull_request webhook events and publishes a report for each opened or
updated pull request.

This mode requires additional configuration for the webhook secret and
allowed base refs.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bundlewatchd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/bundlewatchd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Report command flags
	reportCmd.Flags().IntVar(&prNumber, "pr", 0, "pull request number to publish the report to (defaults to github.pull_request; 0 prints to stdout)")
	reportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the report instead of publishing it")

	// Record command flags
	recordCmd.Flags().StringVar(&recordRef, "ref", "", "record key (default is the currently checked out branch)")
	recordCmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without storing the snapshot")

	// Add commands
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := buildEngine(cfg, logger, prNumber, dryRun)
	if err != nil {
		return err
	}

	if err := engine.Report(ctx); err != nil {
		logger.Error("report failed", "error", err)
		return err
	}

	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	key := recordRef
	if key == "" {
		// Default to the branch being recorded, typically the one CI just
		// merged into.
		head, err := git.NewShellClient().Head(ctx, cfg.Project.Dir)
		if err != nil {
			return fmt.Errorf("failed to resolve record key from checkout (use --ref): %w", err)
		}
		key = head
	}

	engine := compare.NewEngine(cfg, newAnalyzer(cfg, logger), nil, st, nil, logger, dryRun)

	if err := engine.Record(ctx, key); err != nil {
		logger.Error("record failed", "error", err)
		return err
	}

	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// No base source and no publisher: a current-only report on stdout.
	engine := compare.NewEngine(cfg, newAnalyzer(cfg, logger), nil, nil, nil, logger, false)
	return engine.Report(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		return fmt.Errorf("serve is not enabled in the configuration")
	}

	run := func(ctx context.Context, pr int) error {
		engine, err := buildEngine(cfg, logger, pr, false)
		if err != nil {
			return err
		}
		return engine.Report(ctx)
	}

	server, err := webhook.NewServer(cfg, run, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return server.Start(ctx)
}

// buildEngine assembles the comparison engine and its collaborators for a
// report run against the given pull request (0 means stdout only).
func buildEngine(cfg *config.Config, logger *slog.Logger, pr int, dryRun bool) (*compare.Engine, error) {
	if pr == 0 {
		pr = cfg.GitHub.PullRequest
	}

	analyzer := newAnalyzer(cfg, logger)

	var base store.Source
	switch cfg.Compare.BaseStrategy {
	case config.BaseFromStore:
		st, err := newStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		base = store.NewStoreSource(st, cfg.Compare.BaseRef)
	case config.BaseFromRebuild:
		b := builder.NewShellBuilder(cfg.Project.InstallCommand, cfg.Project.BuildCommand)
		base = store.NewRebuildSource(git.NewShellClient(), b, analyzer,
			cfg.Project.Dir, cfg.BuildRoot(), cfg.Compare.BaseRef, logger)
	}

	var publisher publish.Publisher
	if pr > 0 {
		client, owner, repo, err := newGitHubClient(cfg)
		if err != nil {
			return nil, err
		}
		publisher = publish.NewCommentPublisher(client, owner, repo, pr, logger)
		cfg.GitHub.PullRequest = pr
	}

	return compare.NewEngine(cfg, analyzer, base, nil, publisher, logger, dryRun), nil
}

func newAnalyzer(cfg *config.Config, logger *slog.Logger) *snapshot.Analyzer {
	return snapshot.NewAnalyzer(cfg.Project.Manifest, cfg.Project.StaticSubdir, logger)
}

func newStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	client, owner, repo, err := newGitHubClient(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewIssueStore(client, owner, repo, cfg.GitHub.StoreLabel, logger), nil
}

func newGitHubClient(cfg *config.Config) (*github.Client, string, string, error) {
	owner, repo, err := cfg.SplitRepository()
	if err != nil {
		return nil, "", "", err
	}

	token, err := cfg.Token()
	if err != nil {
		return nil, "", "", err
	}

	return github.NewClient(nil).WithAuthToken(token), owner, repo, nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/bundlewatchd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"project_dir", cfg.Project.Dir,
		"build_root", cfg.BuildRoot(),
		"base_ref", cfg.Compare.BaseRef,
		"base_strategy", cfg.Compare.BaseStrategy)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
