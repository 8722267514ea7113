// Package config provides configuration management for wsbind.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/wsbind/config.toml)
//  3. Project config (.wsbind/config.toml or wsbind.toml)
//  4. Environment variables (WSBIND_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config is the main configuration struct for wsbind.
type Config struct {
	// Workspace configures project discovery and materialization.
	Workspace WorkspaceConfig `toml:"workspace"`

	// Repositories lists prebuilt bundle sources queried after the workspace.
	Repositories []RepositoryConfig `toml:"repositories"`

	// Watch configures watch mode.
	Watch WatchConfig `toml:"watch"`

	// Log configures diagnostic logging.
	Log LogConfig `toml:"log"`
}

// WorkspaceConfig controls how projects are found.
type WorkspaceConfig struct {
	// Manifest is the per-project manifest file name.
	Manifest string `toml:"manifest"`

	// Ignore holds directory name prefixes skipped while scanning.
	Ignore []string `toml:"ignore"`

	// Track holds doublestar patterns for artifact files whose content
	// changes should re-publish bindings.
	Track []string `toml:"track"`

	// Classpath is the file written into each project with its bound
	// bundles. Empty disables writing.
	Classpath string `toml:"classpath"`
}

// RepositoryConfig describes one prebuilt bundle source.
type RepositoryConfig struct {
	// Name identifies the repository in diagnostics.
	Name string `toml:"name"`

	// Kind selects the implementation ("static" or "dir").
	Kind string `toml:"kind"`

	// Path is the index file or directory, relative to the workspace root.
	Path string `toml:"path"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// DebounceMs is the quiet period before a batch of changes is applied.
	DebounceMs int `toml:"debounce_ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Verbosity is the kubectl-style level (0=error .. 4=trace).
	Verbosity *int `toml:"verbosity"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Defaults.
const (
	DefaultManifest   = "bundle.yaml"
	DefaultClasspath  = ".wsbind.classpath"
	DefaultDebounceMs = 500
)

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Manifest:  DefaultManifest,
			Ignore:    []string{".", "_", "bazel-", "node_modules"},
			Track:     []string{"*/**/*.jar"},
			Classpath: DefaultClasspath,
		},
		Watch: WatchConfig{
			DebounceMs: DefaultDebounceMs,
		},
		Log: LogConfig{
			Format: "text",
		},
	}
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Workspace.Manifest != "" {
		c.Workspace.Manifest = other.Workspace.Manifest
	}
	if len(other.Workspace.Ignore) > 0 {
		c.Workspace.Ignore = append(c.Workspace.Ignore, other.Workspace.Ignore...)
	}
	if len(other.Workspace.Track) > 0 {
		c.Workspace.Track = other.Workspace.Track
	}
	if other.Workspace.Classpath != "" {
		c.Workspace.Classpath = other.Workspace.Classpath
	}

	// Repositories accumulate; a later layer may shadow one by name.
	for _, repo := range other.Repositories {
		c.putRepository(repo)
	}

	if other.Watch.DebounceMs > 0 {
		c.Watch.DebounceMs = other.Watch.DebounceMs
	}

	if other.Log.Verbosity != nil {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

func (c *Config) putRepository(repo RepositoryConfig) {
	for i, existing := range c.Repositories {
		if existing.Name == repo.Name {
			c.Repositories[i] = repo
			return
		}
	}
	c.Repositories = append(c.Repositories, repo)
}

// Debounce returns the watch debounce window.
func (c *Config) Debounce() time.Duration {
	if c.Watch.DebounceMs <= 0 {
		return DefaultDebounceMs * time.Millisecond
	}
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Workspace.Manifest == "" {
		return fmt.Errorf("workspace.manifest must not be empty")
	}
	for _, pattern := range c.Workspace.Track {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("workspace.track: invalid pattern %q", pattern)
		}
	}
	seen := make(map[string]bool, len(c.Repositories))
	for i, repo := range c.Repositories {
		if repo.Name == "" {
			return fmt.Errorf("repositories[%d]: name is required", i)
		}
		if seen[repo.Name] {
			return fmt.Errorf("repositories[%d]: duplicate name %q", i, repo.Name)
		}
		seen[repo.Name] = true
		if repo.Path == "" {
			return fmt.Errorf("repository %q: path is required", repo.Name)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}
