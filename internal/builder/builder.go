package builder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Builder invokes the project's build tooling. The rebuild-on-demand base
// strategy uses it to materialize the base branch's build output.
type Builder interface {
	// IsAvailable checks that the configured tooling can run at all.
	IsAvailable(ctx context.Context) (bool, error)
	// Install installs dependencies in dir.
	Install(ctx context.Context, dir string) error
	// Build produces the build output in dir.
	Build(ctx context.Context, dir string) error
}

// ShellBuilder implements Builder by running the configured commands
// through the shell, so config values like "npm run build" work verbatim.
type ShellBuilder struct {
	installCmd string
	buildCmd   string
}

// NewShellBuilder creates a builder for the given install and build
// command lines. An empty install command skips the install step.
func NewShellBuilder(installCmd, buildCmd string) *ShellBuilder {
	return &ShellBuilder{
		installCmd: installCmd,
		buildCmd:   buildCmd,
	}
}

// IsAvailable checks that a shell and the build command's binary exist.
func (b *ShellBuilder) IsAvailable(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath("sh"); err != nil {
		return false, fmt.Errorf("shell not available: %w", err)
	}

	fields := strings.Fields(b.buildCmd)
	if len(fields) == 0 {
		return false, fmt.Errorf("no build command configured")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return false, fmt.Errorf("build tool %q not available: %w", fields[0], err)
	}

	return true, nil
}

// Install installs dependencies in dir.
func (b *ShellBuilder) Install(ctx context.Context, dir string) error {
	if b.installCmd == "" {
		return nil
	}
	if err := b.run(ctx, dir, b.installCmd); err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	return nil
}

// Build runs the build command in dir. No timeout is imposed here; callers
// bound the run externally through ctx since a build can run indefinitely.
func (b *ShellBuilder) Build(ctx context.Context, dir string) error {
	if err := b.run(ctx, dir, b.buildCmd); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// run executes a command line via the shell and returns an error with
// combined output on failure
func (b *ShellBuilder) run(ctx context.Context, dir, cmdline string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q: %w: %s", cmdline, err, strings.TrimSpace(string(output)))
	}
	return nil
}
