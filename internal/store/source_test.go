package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/schaermu/bundlewatchd/internal/snapshot"
)

// mockGit implements git.Client for testing.
type mockGit struct {
	head        string
	headErr     error
	checkouts   []string
	checkoutErr map[string]error
}

func (m *mockGit) Head(_ context.Context, _ string) (string, error) {
	return m.head, m.headErr
}

func (m *mockGit) Checkout(_ context.Context, _ string, ref string) error {
	m.checkouts = append(m.checkouts, ref)
	if m.checkoutErr != nil {
		return m.checkoutErr[ref]
	}
	return nil
}

// mockBuilder implements builder.Builder for testing.
type mockBuilder struct {
	available     bool
	installErr    error
	buildErr      error
	installCalled bool
	buildCalled   bool
}

func (m *mockBuilder) IsAvailable(_ context.Context) (bool, error) {
	if !m.available {
		return false, errors.New("tooling missing")
	}
	return true, nil
}

func (m *mockBuilder) Install(_ context.Context, _ string) error {
	m.installCalled = true
	return m.installErr
}

func (m *mockBuilder) Build(_ context.Context, _ string) error {
	m.buildCalled = true
	return m.buildErr
}

// mockAnalyzer returns a fixed snapshot.
type mockAnalyzer struct {
	snap *snapshot.Snapshot
	err  error
}

func (m *mockAnalyzer) Analyze(_ string) (*snapshot.Snapshot, error) {
	return m.snap, m.err
}

func rebuildSource(g *mockGit, b *mockBuilder, a *mockAnalyzer) *RebuildSource {
	return NewRebuildSource(g, b, a, "/work", "/work/.next", "main", testLogger())
}

func TestRebuildFetch(t *testing.T) {
	g := &mockGit{head: "feature-branch"}
	b := &mockBuilder{available: true}
	a := &mockAnalyzer{snap: testSnapshot(1234)}

	snap, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.TotalSize != 1234 {
		t.Errorf("unexpected snapshot total %d", snap.TotalSize)
	}
	if !b.installCalled || !b.buildCalled {
		t.Error("expected install and build to run")
	}

	// Base checked out, then original restored.
	want := []string{"main", "feature-branch"}
	if len(g.checkouts) != 2 || g.checkouts[0] != want[0] || g.checkouts[1] != want[1] {
		t.Errorf("expected checkouts %v, got %v", want, g.checkouts)
	}
}

func TestRebuildFetch_RestoresOnBuildFailure(t *testing.T) {
	g := &mockGit{head: "feature-branch"}
	b := &mockBuilder{available: true, buildErr: errors.New("webpack exploded")}
	a := &mockAnalyzer{snap: testSnapshot(1)}

	_, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected build error")
	}
	if !strings.Contains(err.Error(), "webpack exploded") {
		t.Errorf("expected original error preserved, got %v", err)
	}

	// The restore must still have run.
	if len(g.checkouts) != 2 || g.checkouts[1] != "feature-branch" {
		t.Errorf("expected restore checkout, got %v", g.checkouts)
	}
}

func TestRebuildFetch_RestoreFailureDoesNotMaskOriginalError(t *testing.T) {
	g := &mockGit{
		head:        "feature-branch",
		checkoutErr: map[string]error{"feature-branch": errors.New("restore broke")},
	}
	b := &mockBuilder{available: true, buildErr: errors.New("webpack exploded")}
	a := &mockAnalyzer{}

	_, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	// The build failure is the original error; the restore failure is
	// logged but must not replace it.
	if !strings.Contains(err.Error(), "webpack exploded") {
		t.Errorf("restore failure masked the original error: %v", err)
	}
}

func TestRebuildFetch_RestoreFailureSurfacesOnSuccess(t *testing.T) {
	g := &mockGit{
		head:        "feature-branch",
		checkoutErr: map[string]error{"feature-branch": errors.New("restore broke")},
	}
	b := &mockBuilder{available: true}
	a := &mockAnalyzer{snap: testSnapshot(1)}

	snap, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected restore error when everything else succeeded")
	}
	if snap != nil {
		t.Error("expected nil snapshot when the checkout is left broken")
	}
	if !strings.Contains(err.Error(), "restore broke") {
		t.Errorf("expected restore error, got %v", err)
	}
}

func TestRebuildFetch_ToolingUnavailable(t *testing.T) {
	g := &mockGit{head: "feature-branch"}
	b := &mockBuilder{available: false}
	a := &mockAnalyzer{}

	_, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for unavailable tooling")
	}
	// Nothing may touch the checkout when tooling is missing.
	if len(g.checkouts) != 0 {
		t.Errorf("expected no checkouts, got %v", g.checkouts)
	}
}

func TestRebuildFetch_CheckoutFailureSkipsRestore(t *testing.T) {
	g := &mockGit{
		head:        "feature-branch",
		checkoutErr: map[string]error{"main": errors.New("unknown ref")},
	}
	b := &mockBuilder{available: true}
	a := &mockAnalyzer{}

	_, err := rebuildSource(g, b, a).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected checkout error")
	}
	// The checkout never switched, so there is nothing to restore.
	if len(g.checkouts) != 1 {
		t.Errorf("expected single checkout attempt, got %v", g.checkouts)
	}
}
