//go:build integration

package tier1

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 2 * time.Minute

// Harness provides a throwaway git repository with a fake frontend project
// for integration tests. The project's "build" is a shell script that copies
// a checked-in build output into place, so tests exercise the real
// checkout/build/analyze cycle without node tooling.
type Harness struct {
	t   *testing.T
	Dir string
}

// NewHarness creates a git repository in a temp directory with an initial
// commit on main containing the given files.
func NewHarness(t *testing.T, files map[string]string) *Harness {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	h := &Harness{t: t, Dir: t.TempDir()}

	h.Git("init", "-q", "-b", "main")
	h.Git("config", "user.email", "tier1@example.com")
	h.Git("config", "user.name", "tier1")

	h.WriteFiles(files)
	h.Commit("initial")

	return h
}

// Git runs a git command in the repository and fails the test on error.
func (h *Harness) Git(args ...string) string {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", h.Dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFiles writes files relative to the repository root, creating parent
// directories as needed.
func (h *Harness) WriteFiles(files map[string]string) {
	h.t.Helper()

	for name, content := range files {
		path := filepath.Join(h.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			h.t.Fatalf("failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			h.t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// Commit stages everything and commits.
func (h *Harness) Commit(msg string) {
	h.t.Helper()
	h.Git("add", "-A")
	h.Git("commit", "-q", "-m", msg)
}

// Branch creates and checks out a new branch.
func (h *Harness) Branch(name string) {
	h.t.Helper()
	h.Git("checkout", "-q", "-b", name)
}

// CurrentBranch returns the checked out branch name.
func (h *Harness) CurrentBranch() string {
	h.t.Helper()
	return h.Git("symbolic-ref", "--short", "HEAD")
}

// buildScript returns a shell build command that writes a manifest and
// asset files of the given sizes under outDir. Committed per branch, it
// gives each ref a distinct reproducible "build".
func buildScript(outDir string, manifest string, files map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rm -rf %s\n", outDir)
	fmt.Fprintf(&b, "mkdir -p %s/static\n", outDir)
	fmt.Fprintf(&b, "cat > %s/build-manifest.json <<'EOF'\n%s\nEOF\n", outDir, manifest)
	for name, size := range files {
		fmt.Fprintf(&b, "head -c %d /dev/zero > %s/%s\n", size, outDir, name)
	}
	return b.String()
}
