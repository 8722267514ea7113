// Package repository provides prebuilt bundle sources that sit beside the
// workspace index: a static YAML bundle index and a scanned directory of
// bundle files. Bundles from either never carry a source path, so they can
// never take part in a dependency cycle.
package repository

import (
	"path"
	"slices"
	"strings"

	"github.com/albertocavalcante/wsbind/pkg/resolve"
	"github.com/albertocavalcante/wsbind/pkg/version"
)

// catalog is an immutable name-keyed set of prebuilt locations.
type catalog struct {
	name   string
	byName map[string][]*resolve.Location
	paths  map[string]bool
}

func newCatalog(name string) catalog {
	return catalog{
		name:   name,
		byName: make(map[string][]*resolve.Location),
		paths:  make(map[string]bool),
	}
}

// add records a bundle, ignoring a path already seen.
func (c *catalog) add(repo resolve.Repository, name string, v version.Version, p string) bool {
	loc := resolve.NewLocation(repo, name, v, p, "")
	if c.paths[loc.Path] {
		return false
	}
	c.paths[loc.Path] = true
	c.byName[name] = append(c.byName[name], loc)
	return true
}

// Name implements resolve.Repository.
func (c *catalog) Name() string {
	return c.name
}

// Candidates implements resolve.Repository.
func (c *catalog) Candidates(name string) []*resolve.Location {
	return slices.Clone(c.byName[name])
}

// Len returns the number of bundles.
func (c *catalog) Len() int {
	return len(c.paths)
}

// Names returns every symbolic name, sorted.
func (c *catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseFileName splits a bundle file name such as "com.acme.util-1.2.0.jar"
// into its symbolic name and version. The version starts at the first '-'
// followed by a digit whose remainder parses as a version.
func ParseFileName(file string) (string, version.Version, bool) {
	base := path.Base(file)
	base = strings.TrimSuffix(base, path.Ext(base))
	for i := 0; i < len(base)-1; i++ {
		if base[i] != '-' || !isDigit(base[i+1]) || i == 0 {
			continue
		}
		v, err := version.Parse(base[i+1:])
		if err != nil {
			continue
		}
		return base[:i], v, true
	}
	return "", version.Version{}, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
