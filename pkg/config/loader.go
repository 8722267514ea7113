package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "wsbind.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".wsbind"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "wsbind"

// Load loads configuration from all layers, searching for project config
// from the current directory upwards.
//
// CLI flags are applied separately after Load() returns.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
// Unreadable files are skipped; malformed ones are errors.
func LoadFrom(dir string) (*Config, error) {
	cfg := NewConfig()

	// Layer 2: Global user config
	if path := GetGlobalConfigPath(); path != "" {
		global, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(global)
	}

	// Layer 3: Project config
	project, err := loadProjectConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Merge(project)

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) (*Config, error) {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(path)
			if err != nil || cfg != nil {
				return cfg, err
			}
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return nil, nil
}

// FindRoot returns the nearest directory at or above dir holding a config
// file or a root marker, or dir itself when none is found.
func FindRoot(dir string) string {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if _, err := os.Stat(path); err == nil {
				return current
			}
		}
		if isWorkspaceRoot(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// isWorkspaceRoot checks if the directory is a workspace root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", ".hg", ConfigDirName}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. A missing file
// yields nil without error.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to parse %s: unknown key %q", path, undecoded[0].String())
	}
	return &cfg, nil
}

// applyEnvironmentVariables applies WSBIND_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if v := os.Getenv("WSBIND_MANIFEST"); v != "" {
		cfg.Workspace.Manifest = v
	}
	if v := os.Getenv("WSBIND_IGNORE"); v != "" {
		cfg.Workspace.Ignore = append(cfg.Workspace.Ignore, splitAndTrim(v)...)
	}
	if v := os.Getenv("WSBIND_TRACK"); v != "" {
		cfg.Workspace.Track = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("WSBIND_CLASSPATH"); ok {
		cfg.Workspace.Classpath = strings.TrimSpace(v)
	}
	if n, ok := intEnv("WSBIND_WATCH_DEBOUNCE_MS"); ok && n > 0 {
		cfg.Watch.DebounceMs = n
	}
	if n, ok := intEnv("WSBIND_VERBOSITY"); ok {
		cfg.Log.Verbosity = &n
	}
	if v := os.Getenv("WSBIND_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func intEnv(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
