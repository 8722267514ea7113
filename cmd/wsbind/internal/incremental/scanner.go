package incremental

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// Scanner builds an Index by walking the workspace.
type Scanner struct {
	root    string
	matcher *Matcher
}

// NewScanner creates a scanner for root.
func NewScanner(root string, matcher *Matcher) *Scanner {
	return &Scanner{root: root, matcher: matcher}
}

// Scan walks the workspace and hashes every tracked file.
func (s *Scanner) Scan(ctx context.Context) (*Index, error) {
	idx, err := s.ScanFast(ctx)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range idx.Entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := HashFile(filepath.Join(s.root, filepath.FromSlash(e.Path)))
			if err != nil {
				return err
			}
			e.Hash = hash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

// ScanFast walks the workspace recording only mtime and size.
func (s *Scanner) ScanFast(ctx context.Context) (*Index, error) {
	idx := NewIndex()

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			return err
		}

		if d.IsDir() {
			if p != s.root && s.matcher.IgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !s.matcher.Tracked(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		idx.Add(&Entry{
			Path:    rel,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// HashFile computes xxHash64 of file contents, returns hex string.
func HashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes xxHash64 of data, returns hex string.
func HashBytes(data []byte) string {
	h := xxhash.New()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
