package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/bundlewatchd/internal/builder"
	"github.com/schaermu/bundlewatchd/internal/git"
	"github.com/schaermu/bundlewatchd/internal/snapshot"
)

// Source obtains a base snapshot for comparison. Any failure here is
// non-fatal to the caller: the report degrades to current-only mode.
type Source interface {
	// Name identifies the strategy in logs.
	Name() string
	// Fetch produces the base snapshot, or nil when none exists.
	Fetch(ctx context.Context) (*snapshot.Snapshot, error)
}

// StoreSource fetches the base snapshot from a record store.
type StoreSource struct {
	store Store
	key   string
}

// NewStoreSource creates a source that loads the record stored under key.
func NewStoreSource(store Store, key string) *StoreSource {
	return &StoreSource{store: store, key: key}
}

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) Fetch(ctx context.Context) (*snapshot.Snapshot, error) {
	return s.store.Load(ctx, s.key)
}

// Analyzer is the single analysis operation RebuildSource needs from the
// snapshot package.
type Analyzer interface {
	Analyze(buildRoot string) (*snapshot.Snapshot, error)
}

// RebuildSource materializes the base snapshot by switching the working
// checkout to the base ref, rebuilding, and analyzing the result.
//
// The working checkout is a shared resource mutated exclusively for the
// duration of Fetch: the original position is restored on success and on
// every failure path, exactly once.
type RebuildSource struct {
	git       git.Client
	builder   builder.Builder
	analyzer  Analyzer
	dir       string
	buildRoot string
	baseRef   string
	logger    *slog.Logger
}

// NewRebuildSource creates a rebuild-on-demand base source. dir is the
// working checkout; buildRoot the build output directory to analyze after
// the rebuild.
func NewRebuildSource(gitClient git.Client, b builder.Builder, analyzer Analyzer, dir, buildRoot, baseRef string, logger *slog.Logger) *RebuildSource {
	return &RebuildSource{
		git:       gitClient,
		builder:   b,
		analyzer:  analyzer,
		dir:       dir,
		buildRoot: buildRoot,
		baseRef:   baseRef,
		logger:    logger,
	}
}

func (s *RebuildSource) Name() string { return "rebuild" }

// Fetch checks out the base ref, rebuilds, analyzes, and restores the
// original checkout. The restore runs via defer so no failure between
// checkout and analysis can skip it; a restore failure is logged
// distinctly and only surfaces as the returned error when the rebuild
// itself succeeded, so it never masks the original failure.
func (s *RebuildSource) Fetch(ctx context.Context) (snap *snapshot.Snapshot, err error) {
	available, aerr := s.builder.IsAvailable(ctx)
	if aerr != nil || !available {
		return nil, fmt.Errorf("build tooling not available: %w", aerr)
	}

	head, err := s.git.Head(ctx, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current checkout: %w", err)
	}

	s.logger.Info("rebuilding base for comparison", "base_ref", s.baseRef, "restore_to", head)

	if err := s.git.Checkout(ctx, s.dir, s.baseRef); err != nil {
		return nil, fmt.Errorf("failed to checkout base ref %q: %w", s.baseRef, err)
	}

	defer func() {
		if rerr := s.git.Checkout(ctx, s.dir, head); rerr != nil {
			s.logger.Error("failed to restore original checkout",
				"ref", head, "error", rerr)
			if err == nil {
				err = fmt.Errorf("failed to restore checkout to %q: %w", head, rerr)
				snap = nil
			}
			return
		}
		s.logger.Info("restored original checkout", "ref", head)
	}()

	if err := s.builder.Install(ctx, s.dir); err != nil {
		return nil, fmt.Errorf("base install failed: %w", err)
	}
	if err := s.builder.Build(ctx, s.dir); err != nil {
		return nil, fmt.Errorf("base build failed: %w", err)
	}

	snap, err = s.analyzer.Analyze(s.buildRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze base build: %w", err)
	}
	return snap, nil
}
