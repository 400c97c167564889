package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/bundlewatchd/internal/snapshot"
)

// PublishPolicy defines when a rendered report is published
type PublishPolicy string

const (
	PublishAlways            PublishPolicy = "always"
	PublishSkipInsignificant PublishPolicy = "skip-insignificant"
)

// BaseStrategy defines how the base snapshot is obtained
type BaseStrategy string

const (
	// BaseFromStore loads a previously recorded snapshot for the base ref.
	BaseFromStore BaseStrategy = "store"
	// BaseFromRebuild checks out the base ref and rebuilds it on demand.
	BaseFromRebuild BaseStrategy = "rebuild"
)

// Config represents the complete bundlewatchd configuration
type Config struct {
	Project ProjectConfig `yaml:"project"`
	Compare CompareConfig `yaml:"compare"`
	GitHub  GitHubConfig  `yaml:"github"`
	Serve   ServeConfig   `yaml:"serve"`
}

// ProjectConfig describes the working checkout and its build tooling
type ProjectConfig struct {
	Dir            string `yaml:"dir"`
	BuildDir       string `yaml:"build_dir"`
	Manifest       string `yaml:"manifest"`
	StaticSubdir   string `yaml:"static_subdir"`
	InstallCommand string `yaml:"install_command"`
	BuildCommand   string `yaml:"build_command"`
}

// CompareConfig configures diffing and publishing behavior
type CompareConfig struct {
	BaseRef        string        `yaml:"base_ref"`
	ThresholdBytes int64         `yaml:"threshold_bytes"`
	Publish        PublishPolicy `yaml:"publish"`
	BaseStrategy   BaseStrategy  `yaml:"base_strategy"`
}

// GitHubConfig configures the publishing and record-store collaborators
type GitHubConfig struct {
	Repository  string `yaml:"repository"` // owner/name
	TokenFile   string `yaml:"token_file"`
	PullRequest int    `yaml:"pull_request"`
	StoreLabel  string `yaml:"store_label"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedBaseRefs         []string `yaml:"allowed_base_refs"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Project.Dir = os.ExpandEnv(c.Project.Dir)
	c.Project.BuildDir = os.ExpandEnv(c.Project.BuildDir)
	c.Project.Manifest = os.ExpandEnv(c.Project.Manifest)
	c.Project.StaticSubdir = os.ExpandEnv(c.Project.StaticSubdir)
	c.Compare.BaseRef = os.ExpandEnv(c.Compare.BaseRef)
	c.GitHub.Repository = os.ExpandEnv(c.GitHub.Repository)
	c.GitHub.TokenFile = os.ExpandEnv(c.GitHub.TokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Project.Dir == "" {
		c.Project.Dir = "."
	}
	if c.Project.BuildDir == "" {
		c.Project.BuildDir = ".next"
	}
	if c.Project.Manifest == "" {
		c.Project.Manifest = "build-manifest.json"
	}
	if c.Project.StaticSubdir == "" {
		c.Project.StaticSubdir = "static"
	}
	if c.Project.InstallCommand == "" {
		c.Project.InstallCommand = "npm ci"
	}
	if c.Project.BuildCommand == "" {
		c.Project.BuildCommand = "npm run build"
	}
	if c.Compare.BaseRef == "" {
		c.Compare.BaseRef = "main"
	}
	if c.Compare.ThresholdBytes == 0 {
		c.Compare.ThresholdBytes = snapshot.DefaultThreshold
	}
	if c.Compare.Publish == "" {
		c.Compare.Publish = PublishAlways
	}
	if c.Compare.BaseStrategy == "" {
		c.Compare.BaseStrategy = BaseFromStore
	}
	if c.GitHub.StoreLabel == "" {
		c.GitHub.StoreLabel = "bundlewatchd"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Compare.ThresholdBytes < 0 {
		return fmt.Errorf("compare.threshold_bytes must not be negative")
	}

	switch c.Compare.Publish {
	case PublishAlways, PublishSkipInsignificant:
		// valid
	default:
		return fmt.Errorf("invalid compare.publish policy: %s (must be always or skip-insignificant)", c.Compare.Publish)
	}

	switch c.Compare.BaseStrategy {
	case BaseFromStore, BaseFromRebuild:
		// valid
	default:
		return fmt.Errorf("invalid compare.base_strategy: %s (must be store or rebuild)", c.Compare.BaseStrategy)
	}

	// The store strategy and the publisher both need a GitHub repository.
	if c.GitHub.Repository != "" {
		if _, _, err := c.SplitRepository(); err != nil {
			return err
		}
	}
	if c.Compare.BaseStrategy == BaseFromStore && c.GitHub.Repository == "" {
		return fmt.Errorf("github.repository is required for the store base strategy")
	}

	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.GitHubWebhookSecretFile == "" {
			return fmt.Errorf("serve.github_webhook_secret_file is required when serve is enabled")
		}
	}

	return nil
}

// SplitRepository splits github.repository into owner and name
func (c *Config) SplitRepository() (owner, name string, err error) {
	parts := strings.Split(c.GitHub.Repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github.repository must be owner/name: %s", c.GitHub.Repository)
	}
	return parts[0], parts[1], nil
}

// BuildRoot returns the path to the build output directory
func (c *Config) BuildRoot() string {
	return filepath.Join(c.Project.Dir, c.Project.BuildDir)
}

// Token reads the GitHub token from the configured token file, falling
// back to the GITHUB_TOKEN environment variable.
func (c *Config) Token() (string, error) {
	if c.GitHub.TokenFile != "" {
		data, err := os.ReadFile(c.GitHub.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("no GitHub token configured (set github.token_file or GITHUB_TOKEN)")
}
