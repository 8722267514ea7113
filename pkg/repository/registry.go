package repository

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/wsbind/pkg/config"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// Factory opens a repository described by cfg, relative to the workspace
// root.
type Factory func(root string, cfg config.RepositoryConfig) (resolve.Repository, error)

// factories maps repository kinds to their factory functions.
var factories = map[string]Factory{
	"static": openStatic,
	"dir":    openDir,
}

// DefaultKind is used when a repository config names no kind.
const DefaultKind = "static"

// Open opens one configured repository.
func Open(root string, cfg config.RepositoryConfig) (resolve.Repository, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = DefaultKind
	}
	factory, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("repository %s: unknown kind %q (available: %v)", cfg.Name, kind, Available())
	}
	return factory(root, cfg)
}

// OpenAll opens every configured repository in order.
func OpenAll(root string, cfgs []config.RepositoryConfig) ([]resolve.Repository, error) {
	repos := make([]resolve.Repository, 0, len(cfgs))
	for _, cfg := range cfgs {
		repo, err := Open(root, cfg)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// Available returns the registered kinds, sorted.
func Available() []string {
	return slices.Sorted(maps.Keys(factories))
}

// IsAvailable checks if a repository kind is registered.
func IsAvailable(kind string) bool {
	_, ok := factories[kind]
	return ok
}

// Register registers a repository factory.
// This allows external packages to add new kinds.
func Register(kind string, factory Factory) {
	factories[kind] = factory
}

func openStatic(root string, cfg config.RepositoryConfig) (resolve.Repository, error) {
	file := cfg.Path
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	return LoadStatic(cfg.Name, file, filepath.Dir(cfg.Path))
}

func openDir(root string, cfg config.RepositoryConfig) (resolve.Repository, error) {
	dir := cfg.Path
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.Name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository %s: %s is not a directory", cfg.Name, dir)
	}
	return ScanDir(cfg.Name, os.DirFS(dir), DefaultDirPattern, filepath.ToSlash(cfg.Path))
}
