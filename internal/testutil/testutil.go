package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// BuildFixture describes a fake build output tree for tests: a manifest
// plus on-disk asset files with fixed sizes.
type BuildFixture struct {
	// ManifestName defaults to build-manifest.json when empty.
	ManifestName string
	// Manifest is the raw manifest content.
	Manifest string
	// Files maps build-root-relative paths to the byte size to write.
	Files map[string]int
}

// WriteBuildOutput materializes the fixture under dir and returns dir.
func WriteBuildOutput(t *testing.T, dir string, fx BuildFixture) string {
	t.Helper()

	name := fx.ManifestName
	if name == "" {
		name = "build-manifest.json"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if fx.Manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(fx.Manifest), 0644); err != nil {
			t.Fatal(err)
		}
	}

	for rel, size := range fx.Files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

// FindProjectRoot walks up the directory tree from the current file to find go.mod
func FindProjectRoot() (string, error) {
	// Get the directory of the caller's source file
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)

	// Walk up the directory tree looking for go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root without finding go.mod
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
