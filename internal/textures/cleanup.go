package textures

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// CleanupResult reports what RemoveEmptyDirs did.
type CleanupResult struct {
	Removed  []string
	Failures map[string]error
}

// RemoveEmptyDirs removes every directory under root that no longer contains
// any file, deepest first. root itself, the keep directories and their
// ancestors are never removed. Removal failures are collected, not returned.
func RemoveEmptyDirs(root string, keep ...string) (CleanupResult, error) {
	res := CleanupResult{Failures: make(map[string]error)}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return res, err
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		if abs, err := filepath.Abs(k); err == nil {
			kept[abs] = true
		}
	}

	var (
		mu   sync.Mutex
		dirs []string
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == rootAbs {
			return nil
		}
		if kept[filepath.Clean(p)] {
			return filepath.SkipDir
		}
		mu.Lock()
		dirs = append(dirs, filepath.Clean(p))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return res, err
	}

	// Deepest first so parents see their children already gone.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			res.Failures[dir] = err
			continue
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			res.Failures[dir] = err
			continue
		}
		res.Removed = append(res.Removed, dir)
	}
	return res, nil
}

func depth(p string) int {
	return strings.Count(p, string(filepath.Separator))
}
