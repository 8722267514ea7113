package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate keeps the developer's global config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{
		"WSBIND_MANIFEST", "WSBIND_IGNORE", "WSBIND_TRACK",
		"WSBIND_WATCH_DEBOUNCE_MS", "WSBIND_VERBOSITY", "WSBIND_LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Workspace.Manifest != "bundle.yaml" {
		t.Errorf("manifest should be 'bundle.yaml', got %q", cfg.Workspace.Manifest)
	}
	if cfg.Workspace.Classpath != DefaultClasspath {
		t.Errorf("classpath should be %q, got %q", DefaultClasspath, cfg.Workspace.Classpath)
	}
	if cfg.Debounce() != 500*time.Millisecond {
		t.Errorf("debounce should be 500ms, got %v", cfg.Debounce())
	}
	if cfg.Log.Verbosity != nil {
		t.Error("verbosity should be unset by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	three := 3
	other := &Config{
		Workspace: WorkspaceConfig{
			Manifest: "wsbind.yaml",
			Ignore:   []string{"out"},
			Track:    []string{"*/build/*.jar"},
		},
		Repositories: []RepositoryConfig{{Name: "central", Kind: "static", Path: "repo/index.yaml"}},
		Watch:        WatchConfig{DebounceMs: 250},
		Log:          LogConfig{Verbosity: &three, Format: "json"},
	}

	base.Merge(other)

	if base.Workspace.Manifest != "wsbind.yaml" {
		t.Errorf("manifest = %q, want wsbind.yaml", base.Workspace.Manifest)
	}
	if got := base.Workspace.Ignore; got[len(got)-1] != "out" || len(got) != len(NewConfig().Workspace.Ignore)+1 {
		t.Errorf("ignore should be appended, got %v", got)
	}
	if len(base.Workspace.Track) != 1 || base.Workspace.Track[0] != "*/build/*.jar" {
		t.Errorf("track should be replaced, got %v", base.Workspace.Track)
	}
	if len(base.Repositories) != 1 {
		t.Errorf("expected 1 repository, got %d", len(base.Repositories))
	}
	if base.Debounce() != 250*time.Millisecond {
		t.Errorf("debounce = %v, want 250ms", base.Debounce())
	}
	if base.Log.Verbosity == nil || *base.Log.Verbosity != 3 || base.Log.Format != "json" {
		t.Errorf("log = %+v, want verbosity 3 json", base.Log)
	}

	// Nil merge is a no-op.
	base.Merge(nil)
}

func TestMergeRepositoryShadowing(t *testing.T) {
	base := NewConfig()
	base.Merge(&Config{Repositories: []RepositoryConfig{
		{Name: "central", Kind: "static", Path: "global.yaml"},
		{Name: "libs", Kind: "dir", Path: "libs"},
	}})
	base.Merge(&Config{Repositories: []RepositoryConfig{
		{Name: "central", Kind: "static", Path: "project.yaml"},
	}})

	if len(base.Repositories) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(base.Repositories))
	}
	if base.Repositories[0].Path != "project.yaml" {
		t.Errorf("later layer should shadow by name, got %q", base.Repositories[0].Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty manifest", func(c *Config) { c.Workspace.Manifest = "" }, "manifest"},
		{"bad pattern", func(c *Config) { c.Workspace.Track = []string{"[a-"} }, "invalid pattern"},
		{"unnamed repository", func(c *Config) {
			c.Repositories = []RepositoryConfig{{Kind: "static", Path: "x.yaml"}}
		}, "name is required"},
		{"duplicate repository", func(c *Config) {
			c.Repositories = []RepositoryConfig{
				{Name: "a", Path: "x.yaml"},
				{Name: "a", Path: "y.yaml"},
			}
		}, "duplicate"},
		{"repository without path", func(c *Config) {
			c.Repositories = []RepositoryConfig{{Name: "a", Kind: "dir"}}
		}, "path is required"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, configPath, `
[workspace]
manifest = "bnd.yaml"
ignore = ["generated"]
classpath = ""

[[repositories]]
name = "central"
kind = "static"
path = "cache/index.yaml"

[[repositories]]
name = "libs"
kind = "dir"
path = "libs"

[watch]
debounce_ms = 100

[log]
verbosity = 2
format = "json"
`)

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		t.Fatalf("loadConfigFile() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}
	if cfg.Workspace.Manifest != "bnd.yaml" {
		t.Errorf("manifest = %q, want bnd.yaml", cfg.Workspace.Manifest)
	}
	if len(cfg.Repositories) != 2 || cfg.Repositories[1].Kind != "dir" {
		t.Errorf("repositories = %+v", cfg.Repositories)
	}
	if cfg.Watch.DebounceMs != 100 {
		t.Errorf("debounce_ms = %d, want 100", cfg.Watch.DebounceMs)
	}
	if cfg.Log.Verbosity == nil || *cfg.Log.Verbosity != 2 {
		t.Errorf("verbosity = %v, want 2", cfg.Log.Verbosity)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	if cfg, err := loadConfigFile(filepath.Join(dir, "missing.toml")); cfg != nil || err != nil {
		t.Errorf("missing file = %v, %v; want nil, nil", cfg, err)
	}

	malformed := filepath.Join(dir, "bad.toml")
	writeFile(t, malformed, "[workspace\nmanifest = 1")
	if _, err := loadConfigFile(malformed); err == nil {
		t.Error("expected error for malformed TOML")
	}

	unknown := filepath.Join(dir, "unknown.toml")
	writeFile(t, unknown, "[workspace]\nmanifests = \"x\"\n")
	if _, err := loadConfigFile(unknown); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	isolate(t)
	cfg := NewConfig()

	t.Setenv("WSBIND_MANIFEST", "project.yaml")
	t.Setenv("WSBIND_TRACK", "*/out/*.jar, */lib/*.jar")
	t.Setenv("WSBIND_WATCH_DEBOUNCE_MS", "50")
	t.Setenv("WSBIND_VERBOSITY", "4")
	t.Setenv("WSBIND_LOG_FORMAT", "json")

	applyEnvironmentVariables(cfg)

	if cfg.Workspace.Manifest != "project.yaml" {
		t.Errorf("manifest = %q", cfg.Workspace.Manifest)
	}
	if len(cfg.Workspace.Track) != 2 || cfg.Workspace.Track[1] != "*/lib/*.jar" {
		t.Errorf("track = %v", cfg.Workspace.Track)
	}
	if cfg.Watch.DebounceMs != 50 {
		t.Errorf("debounce = %d, want 50", cfg.Watch.DebounceMs)
	}
	if cfg.Log.Verbosity == nil || *cfg.Log.Verbosity != 4 {
		t.Errorf("verbosity = %v, want 4", cfg.Log.Verbosity)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("format = %q, want json", cfg.Log.Format)
	}
}

func TestApplyEnvironmentVariablesIgnoresGarbage(t *testing.T) {
	isolate(t)
	cfg := NewConfig()
	t.Setenv("WSBIND_WATCH_DEBOUNCE_MS", "soon")
	t.Setenv("WSBIND_VERBOSITY", "loud")

	applyEnvironmentVariables(cfg)

	if cfg.Watch.DebounceMs != DefaultDebounceMs {
		t.Errorf("debounce = %d, want default", cfg.Watch.DebounceMs)
	}
	if cfg.Log.Verbosity != nil {
		t.Errorf("verbosity = %v, want unset", *cfg.Log.Verbosity)
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a", []string{"a"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		result := splitAndTrim(tt.input)
		if len(result) != len(tt.expected) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, result, tt.expected)
			continue
		}
		for i, v := range result {
			if v != tt.expected[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.expected[i])
			}
		}
	}
}

func TestLoadFromProjectSearch(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(root, ConfigFileName), `
[workspace]
manifest = "found.yaml"
`)
	sub := filepath.Join(root, "app", "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(sub)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Workspace.Manifest != "found.yaml" {
		t.Errorf("manifest = %q, want found.yaml", cfg.Workspace.Manifest)
	}
	if got := FindRoot(sub); got != root {
		t.Errorf("FindRoot() = %q, want %q", got, root)
	}
}

func TestLoadFromPrefersConfigDir(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigDirName, "config.toml"), "[workspace]\nmanifest = \"dir.yaml\"\n")
	writeFile(t, filepath.Join(root, ConfigFileName), "[workspace]\nmanifest = \"file.yaml\"\n")

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workspace.Manifest != "dir.yaml" {
		t.Errorf("manifest = %q, want dir.yaml", cfg.Workspace.Manifest)
	}
}

func TestLoadFromGlobalLayer(t *testing.T) {
	isolate(t)
	writeFile(t, GetGlobalConfigPath(), "[watch]\ndebounce_ms = 900\n")
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), "[workspace]\nmanifest = \"p.yaml\"\n")

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.DebounceMs != 900 {
		t.Errorf("global layer not applied, debounce = %d", cfg.Watch.DebounceMs)
	}
	if cfg.Workspace.Manifest != "p.yaml" {
		t.Errorf("project layer not applied, manifest = %q", cfg.Workspace.Manifest)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), "[log]\nformat = \"xml\"\n")

	if _, err := LoadFrom(root); err == nil {
		t.Error("expected validation error")
	}
}

func TestWorkspaceRootDetection(t *testing.T) {
	for _, marker := range []string{".git", ".hg", ConfigDirName} {
		t.Run(marker, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.MkdirAll(filepath.Join(dir, marker), 0o755); err != nil {
				t.Fatal(err)
			}
			if !isWorkspaceRoot(dir) {
				t.Errorf("directory with %s should be workspace root", marker)
			}
		})
	}
	if isWorkspaceRoot(t.TempDir()) {
		t.Error("empty directory should not be workspace root")
	}
}
