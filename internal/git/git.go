package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client provides the working-checkout operations the rebuild strategy
// needs. It never clones or fetches; it operates on an existing,
// already-authenticated checkout.
type Client interface {
	// Head returns a name for the current checkout position: the branch
	// name when one is checked out, otherwise the commit hash.
	Head(ctx context.Context, dir string) (string, error)
	// Checkout forcibly switches the working tree to ref.
	Checkout(ctx context.Context, dir, ref string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct{}

// NewShellClient creates a new git client that uses the git command
func NewShellClient() *ShellClient {
	return &ShellClient{}
}

// Head resolves the current branch, falling back to the commit hash for a
// detached HEAD (the usual state on CI runners).
func (c *ShellClient) Head(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "symbolic-ref", "--short", "-q", "HEAD")
	output, err := cmd.Output()
	if err == nil {
		if branch := strings.TrimSpace(string(output)); branch != "" {
			return branch, nil
		}
	}

	cmd = exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	output, err = cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Checkout switches the working tree to ref.
// Strategy:
// 1. Try direct checkout (works for local branches, tags, commit hashes)
// 2. If that fails, try as a remote branch (origin/ref)
// This handles tags and commit hashes correctly, and prefers local refs when they exist
func (c *ShellClient) Checkout(ctx context.Context, dir, ref string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "checkout", "-f", ref)
	if err := c.runCommand(cmd); err != nil {
		remoteRef := "origin/" + ref
		cmd = exec.CommandContext(ctx, "git", "-C", dir, "checkout", "-f", remoteRef)
		if err := c.runCommand(cmd); err != nil {
			return fmt.Errorf("git checkout failed for ref %q (tried both direct and remote): %w", ref, err)
		}
	}
	return nil
}

// runCommand executes a command and returns an error with stderr on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
