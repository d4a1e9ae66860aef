// Package assets scans the model library for geometry and texture inputs.
//
// Scans are read-only and deterministic: whatever order the parallel walk
// visits entries in, results are returned sorted by slash-separated path
// relative to the scan root.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
)

// Default name patterns, matched against the lowercased base name.
var (
	GeometryPatterns = []string{"*.{gltf,glb}"}
	TexturePatterns  = []string{"*.{png,jpg,jpeg,tga,bmp,tif,tiff,webp}"}
	ArtifactPatterns = []string{"*.fbx"}
)

// ErrNotFound matches any [NotFoundError] with errors.Is.
var ErrNotFound = errors.New("asset root not found")

// NotFoundError reports a scan root that does not exist.
type NotFoundError struct {
	Root string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("asset root not found: %s", e.Root)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) true for every NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Query selects the files a scan returns.
type Query struct {
	// Patterns are doublestar patterns such as "*.{gltf,glb}". A file matches
	// when its lowercased base name matches any pattern.
	Patterns []string
	// Exclude lists directories pruned from the walk.
	Exclude []string
	// Sniff, when non-empty, keeps only files whose detected MIME type starts
	// with one of these prefixes (e.g. "image/").
	Sniff []string
	// Flat restricts the scan to the root directory itself.
	Flat bool
}

// Scan walks root and returns the files matching q, sorted by relative path.
// A missing root yields a *NotFoundError.
func Scan(ctx context.Context, root string, q Query) ([]*SourceFile, error) {
	for _, p := range q.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	fi, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Root: root, Err: err}
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &NotFoundError{Root: root, Err: fmt.Errorf("%s is not a directory", root)}
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(q.Exclude))
	for _, ex := range q.Exclude {
		if abs, err := filepath.Abs(ex); err == nil {
			excluded[abs] = true
		}
	}

	var (
		mu    sync.Mutex
		files []*SourceFile
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, rootAbs, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}

		if d.IsDir() {
			if p == rootAbs {
				return nil
			}
			if q.Flat || excluded[filepath.Clean(p)] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !matchName(q.Patterns, d.Name()) {
			return nil
		}
		if len(q.Sniff) > 0 && !sniff(p, q.Sniff) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootAbs, p)
		if err != nil {
			return err
		}

		mu.Lock()
		files = append(files, &SourceFile{Path: p, Rel: filepath.ToSlash(rel), Size: info.Size()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

func matchName(patterns []string, name string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, lower); ok {
			return true
		}
	}
	return false
}

func sniff(path string, prefixes []string) bool {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(m.String(), p) {
			return true
		}
	}
	return false
}
