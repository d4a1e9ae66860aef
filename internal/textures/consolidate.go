// Package textures flattens a nested texture tree into a single directory,
// deduplicating by content hash.
//
// Every source file yields exactly one tagged [Outcome]; a failure on one
// file is recorded and never stops the pass.
package textures

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/logging"
)

// Kind tags what happened to one source file.
type Kind int

const (
	Moved            Kind = iota // No file of that name at the destination.
	SkippedDuplicate             // Identical content already present; source deleted.
	RenamedConflict              // Different content under that name; moved with a numeric suffix.
	Errored                      // An I/O step failed; the source is left in place.
)

func (k Kind) String() string {
	switch k {
	case Moved:
		return "moved"
	case SkippedDuplicate:
		return "skipped-duplicate"
	case RenamedConflict:
		return "renamed-conflict"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of consolidating one source file.
type Outcome struct {
	Source string
	Target string // Final path for Moved/RenamedConflict, the matching file for SkippedDuplicate.
	Kind   Kind
	Err    error
}

// Result accumulates outcomes for one consolidation pass.
type Result struct {
	Moved    int
	Skipped  int
	Renamed  int
	Errored  int
	Outcomes []Outcome
}

// Total is the number of files handled.
func (r *Result) Total() int { return len(r.Outcomes) }

func (r *Result) add(o Outcome) {
	switch o.Kind {
	case Moved:
		r.Moved++
	case SkippedDuplicate:
		r.Skipped++
	case RenamedConflict:
		r.Renamed++
	case Errored:
		r.Errored++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Consolidator moves texture files into one flat directory.
type Consolidator struct {
	dst string
	log *logging.Logger

	// known caches SourceFile records (and so their hashes) for destination
	// paths seen during this pass.
	known map[string]*assets.SourceFile
}

// NewConsolidator returns a Consolidator targeting dst. A nil log discards output.
func NewConsolidator(dst string, log *logging.Logger) *Consolidator {
	if log == nil {
		log = logging.Nop()
	}
	return &Consolidator{dst: dst, log: log, known: make(map[string]*assets.SourceFile)}
}

// Consolidate processes files in order. The returned error is non-nil only
// when the destination cannot be created or ctx is cancelled; per-file
// failures are counted in the Result instead.
func (c *Consolidator) Consolidate(ctx context.Context, files []*assets.SourceFile) (Result, error) {
	var res Result
	if err := os.MkdirAll(c.dst, 0o755); err != nil {
		return res, fmt.Errorf("create texture directory: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		o := c.consolidateOne(f)
		switch o.Kind {
		case Errored:
			c.log.Warn("Texture %s: %v", f.Rel, o.Err)
		case RenamedConflict:
			c.log.Debug("Texture %s: name conflict, stored as %s", f.Rel, filepath.Base(o.Target))
		case SkippedDuplicate:
			c.log.Debug("Texture %s: duplicate of %s", f.Rel, filepath.Base(o.Target))
		}
		res.add(o)
	}
	return res, nil
}

func (c *Consolidator) consolidateOne(src *assets.SourceFile) Outcome {
	name := filepath.Base(src.Path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 0; ; n++ {
		candidate := filepath.Join(c.dst, name)
		if n > 0 {
			candidate = filepath.Join(c.dst, fmt.Sprintf("%s_%d%s", stem, n, ext))
		}

		existing, err := c.lookup(candidate)
		if err != nil {
			return Outcome{Source: src.Path, Kind: Errored, Err: err}
		}
		if existing == nil {
			if err := moveFile(src.Path, candidate); err != nil {
				return Outcome{Source: src.Path, Kind: Errored, Err: err}
			}
			c.known[candidate] = &assets.SourceFile{Path: candidate, Rel: filepath.Base(candidate), Size: src.Size}
			if n == 0 {
				return Outcome{Source: src.Path, Target: candidate, Kind: Moved}
			}
			return Outcome{Source: src.Path, Target: candidate, Kind: RenamedConflict}
		}

		if samePath(src.Path, candidate) {
			// Already in place (source tree overlaps the destination).
			return Outcome{Source: src.Path, Target: candidate, Kind: SkippedDuplicate}
		}
		same, err := assets.SameContent(src, existing)
		if err != nil {
			return Outcome{Source: src.Path, Kind: Errored, Err: err}
		}
		if same {
			if err := os.Remove(src.Path); err != nil {
				return Outcome{Source: src.Path, Kind: Errored, Err: err}
			}
			return Outcome{Source: src.Path, Target: candidate, Kind: SkippedDuplicate}
		}
	}
}

// lookup returns the cached or freshly stat'ed record for a destination path,
// or nil if nothing exists there.
func (c *Consolidator) lookup(path string) (*assets.SourceFile, error) {
	if f, ok := c.known[path]; ok {
		if _, err := os.Lstat(path); err == nil {
			return f, nil
		}
		delete(c.known, path)
	}
	f, err := assets.NewSourceFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	c.known[path] = f
	return f, nil
}

func samePath(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
