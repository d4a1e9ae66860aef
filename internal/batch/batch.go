// Package batch splits the ordered geometry list into fixed-size batches and
// names the files each batch produces.
package batch

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/backmassage/meshbatch/internal/assets"
)

// ErrInvalidArgument is returned by [Partition] for a non-positive batch size.
var ErrInvalidArgument = errors.New("batch size must be positive")

// ArtifactExt is the extension of every batch and merge artifact.
const ArtifactExt = ".fbx"

// Batch is a contiguous run of geometry files handled by one worker.
type Batch struct {
	Index int // 1-based.
	Files []*assets.SourceFile
}

// Name is the zero-padded batch name, e.g. "batch_0001".
func (b Batch) Name() string {
	return Name(b.Index)
}

// Name formats the batch name for a 1-based index.
func Name(index int) string {
	return fmt.Sprintf("batch_%04d", index)
}

// ArtifactPath is the batch's output file inside dir.
func (b Batch) ArtifactPath(dir string) string {
	return filepath.Join(dir, b.Name()+ArtifactExt)
}

// LogPaths returns the stdout and stderr capture files inside dir.
func (b Batch) LogPaths(dir string) (stdout, stderr string) {
	return LogPaths(dir, b.Name())
}

// LogPaths returns "<name>.stdout.log" and "<name>.stderr.log" inside dir.
func LogPaths(dir, name string) (stdout, stderr string) {
	return filepath.Join(dir, name+".stdout.log"), filepath.Join(dir, name+".stderr.log")
}

// Partition splits files into consecutive batches of size files each. Only the
// last batch may be smaller. Order is preserved, so concatenating the batches
// yields files again. An empty input yields no batches.
func Partition(files []*assets.SourceFile, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidArgument, size)
	}
	batches := make([]Batch, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		batches = append(batches, Batch{
			Index: len(batches) + 1,
			Files: files[start:end:end],
		})
	}
	return batches, nil
}
