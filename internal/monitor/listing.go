// Package monitor lists and watches the batch output folder: artifacts,
// worker logs and archived logs, with per-kind counts and total size.
package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/backmassage/meshbatch/internal/worker"
)

// Kind classifies a file in the batch folder by extension.
type Kind int

const (
	Other Kind = iota
	Artifact
	Log
	Archive
)

func (k Kind) String() string {
	switch k {
	case Artifact:
		return "artifact"
	case Log:
		return "log"
	case Archive:
		return "archive"
	}
	return "other"
}

// KindOf classifies name.
func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".fbx":
		return Artifact
	case ".log":
		return Log
	case ".zst":
		return Archive
	}
	return Other
}

// Entry is one regular file in the listed folder.
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
	Kind     Kind
	// Errors is the number of error lines in a plain log; zero otherwise.
	Errors int
}

// Listing is a snapshot of a folder.
type Listing struct {
	Dir       string
	Entries   []Entry
	Artifacts int
	Logs      int
	ErrorLogs int // Logs with at least one error line.
	Archives  int
	TotalSize int64
}

// Total is the number of files listed.
func (l Listing) Total() int { return len(l.Entries) }

// List reads dir (not recursively) and returns its files sorted by name.
// A missing dir yields an empty listing and an error wrapping os.ErrNotExist.
func List(dir string) (Listing, error) {
	ls := Listing{Dir: dir}
	des, err := os.ReadDir(dir)
	if err != nil {
		return ls, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		e, err := stat(filepath.Join(dir, de.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return ls, err
		}
		ls.add(e)
	}
	sort.Slice(ls.Entries, func(i, j int) bool { return ls.Entries[i].Name < ls.Entries[j].Name })
	return ls, nil
}

func (l *Listing) add(e Entry) {
	l.Entries = append(l.Entries, e)
	l.TotalSize += e.Size
	switch e.Kind {
	case Artifact:
		l.Artifacts++
	case Log:
		l.Logs++
		if e.Errors > 0 {
			l.ErrorLogs++
		}
	case Archive:
		l.Archives++
	}
}

func stat(path string) (Entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Name:     fi.Name(),
		Size:     fi.Size(),
		Modified: fi.ModTime(),
		Kind:     KindOf(fi.Name()),
	}
	if e.Kind == Log && e.Size > 0 {
		if sum, err := worker.ScanLog(path); err == nil {
			e.Errors = sum.Errors
		}
	}
	return e, nil
}
