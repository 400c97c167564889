// Package compare orchestrates an analysis run: measure the current build,
// obtain the base snapshot, diff, render, and publish.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schaermu/bundlewatchd/internal/config"
	"github.com/schaermu/bundlewatchd/internal/publish"
	"github.com/schaermu/bundlewatchd/internal/report"
	"github.com/schaermu/bundlewatchd/internal/snapshot"
	"github.com/schaermu/bundlewatchd/internal/store"
)

// Engine runs the full comparison pipeline with injected collaborators.
type Engine struct {
	cfg       *config.Config
	analyzer  *snapshot.Analyzer
	base      store.Source
	store     store.Store
	publisher publish.Publisher
	logger    *slog.Logger
	dryRun    bool
}

// NewEngine creates an engine. base and publisher may be nil: without a
// base source reports are current-only, without a publisher the rendered
// report goes to stdout (dry-run behaves the same way).
func NewEngine(cfg *config.Config, analyzer *snapshot.Analyzer, base store.Source, st store.Store, publisher publish.Publisher, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:       cfg,
		analyzer:  analyzer,
		base:      base,
		store:     st,
		publisher: publisher,
		logger:    logger,
		dryRun:    dryRun,
	}
}

// Report analyzes the current build, compares it against the base, and
// publishes the rendered result.
//
// Only a missing current build fails the run. A missing base degrades to a
// current-only report; a failed publish is logged and the run still
// succeeds, because the analysis itself did.
func (e *Engine) Report(ctx context.Context) error {
	e.logger.Info("starting report run",
		"build_root", e.cfg.BuildRoot(),
		"base_ref", e.cfg.Compare.BaseRef,
		"dry_run", e.dryRun)

	current, err := e.analyzer.Analyze(e.cfg.BuildRoot())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotBuilt) {
			return fmt.Errorf("current build output missing, run the build first: %w", err)
		}
		return fmt.Errorf("failed to analyze current build: %w", err)
	}

	base := e.fetchBase(ctx)

	cmp := snapshot.Diff(current, base)
	body := report.Render(cmp)

	significant := snapshot.IsSignificant(current, base, e.cfg.Compare.ThresholdBytes)
	e.logger.Info("comparison complete",
		"mode", mode(cmp),
		"total_delta", cmp.TotalDelta,
		"significant", significant)

	if !significant && e.cfg.Compare.Publish == config.PublishSkipInsignificant {
		e.logger.Info("skipping publish, change below threshold",
			"threshold_bytes", e.cfg.Compare.ThresholdBytes)
		return nil
	}

	if e.dryRun || e.publisher == nil {
		fmt.Fprintln(os.Stdout, body)
		if e.dryRun {
			e.logger.Info("dry-run complete, report not published")
		}
		return nil
	}

	if err := e.publisher.Publish(ctx, body, report.Marker); err != nil {
		// Analysis succeeded even though reporting did not.
		e.logger.Error("failed to publish report", "error", err)
		return nil
	}

	e.logger.Info("report published", "pr", e.cfg.GitHub.PullRequest)
	return nil
}

// Record analyzes the current build and stores the snapshot under key,
// seeding the base record that later report runs compare against.
func (e *Engine) Record(ctx context.Context, key string) error {
	e.logger.Info("starting record run", "build_root", e.cfg.BuildRoot(), "key", key)

	if e.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}

	current, err := e.analyzer.Analyze(e.cfg.BuildRoot())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotBuilt) {
			return fmt.Errorf("current build output missing, run the build first: %w", err)
		}
		return fmt.Errorf("failed to analyze current build: %w", err)
	}

	if e.dryRun {
		e.logger.Info("dry-run complete, snapshot not recorded",
			"key", key, "total_size", current.TotalSize)
		return nil
	}

	if err := e.store.Save(ctx, key, current); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}

	e.logger.Info("snapshot recorded", "key", key, "total_size", current.TotalSize)
	return nil
}

// fetchBase obtains the base snapshot, degrading to nil on any failure.
func (e *Engine) fetchBase(ctx context.Context) *snapshot.Snapshot {
	if e.base == nil {
		e.logger.Info("no base source configured, reporting current state only")
		return nil
	}

	base, err := e.base.Fetch(ctx)
	if err != nil {
		e.logger.Warn("base snapshot unavailable, reporting current state only",
			"strategy", e.base.Name(), "error", err)
		return nil
	}
	if base == nil {
		e.logger.Info("no base snapshot recorded yet, reporting current state only",
			"strategy", e.base.Name())
	}
	return base
}

func mode(cmp *snapshot.Comparison) string {
	if cmp.CurrentOnly() {
		return "current-only"
	}
	return "comparison"
}
