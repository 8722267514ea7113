// Package incremental tracks the files that feed bundle resolution (project
// manifests and built artifacts) so unchanged projects can be skipped.
package incremental

// Entry is the last observed state of one tracked file.
type Entry struct {
	Path    string `json:"path"`     // workspace-relative, slash-separated
	Hash    string `json:"hash"`     // xxHash64 hex; empty after a fast scan
	ModTime int64  `json:"mtime_ns"` // UnixNano
	Size    int64  `json:"size"`
}

// unchanged reports whether e and other look identical without hashing.
func (e *Entry) unchanged(other *Entry) bool {
	return e.ModTime == other.ModTime && e.Size == other.Size
}
