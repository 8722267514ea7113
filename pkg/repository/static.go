package repository

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/version"
)

// Static serves bundles listed in a YAML index:
//
//	bundles:
//	  - name: com.acme.util
//	    version: 1.2.0
//	    path: cache/com.acme.util-1.2.0.jar
type Static struct {
	catalog
}

type staticIndex struct {
	Bundles []staticBundle `yaml:"bundles"`
}

type staticBundle struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Path    string `yaml:"path"`
}

// ParseStatic decodes a static index. Relative bundle paths are joined to
// base.
func ParseStatic(name string, data []byte, base string) (*Static, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("repository %s: index is empty", name)
	}
	var idx staticIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("repository %s: decode index: %w", name, err)
	}

	s := &Static{catalog: newCatalog(name)}
	for i, b := range idx.Bundles {
		if b.Name == "" || b.Path == "" {
			return nil, fmt.Errorf("repository %s: bundles[%d]: name and path are required", name, i)
		}
		v, err := version.Parse(b.Version)
		if err != nil {
			return nil, fmt.Errorf("repository %s: bundle %s: %w", name, b.Name, err)
		}
		p := filepath.ToSlash(b.Path)
		if !path.IsAbs(p) && base != "" {
			p = path.Join(filepath.ToSlash(base), p)
		}
		if !s.add(s, b.Name, v, p) {
			log.Component("repository").Warn("duplicate bundle path ignored", "repository", name, "path", p)
		}
	}
	return s, nil
}

// LoadStatic reads a static index from file. Bundle paths are resolved
// against base.
func LoadStatic(name, file, base string) (*Static, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("repository %s: read %s: %w", name, file, err)
	}
	return ParseStatic(name, data, base)
}
