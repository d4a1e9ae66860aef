// Package worker describes external worker invocations and launches them as
// killable process trees.
//
// A batch invocation and the merge invocation share one [Invocation] type;
// only the argument builder differs. The positional contract after the
// configured prefix is:
//
//	batch: <in1|in2|...> <textureDir> <output> <decimateRatio> <normalMapResolution>
//	       <bakeCageExtrusion> <bakeMaxRayDistance> <enableDecimation>
//	       <enableNormalBaking> <removeHighPolyAfterBake>
//	merge: <batchOutputDir> <finalArtifact>
package worker

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/batch"
	"github.com/backmassage/meshbatch/internal/config"
)

// InputSeparator joins a batch's input paths into one argument.
const InputSeparator = "|"

// MergeName names the merge invocation and its log files.
const MergeName = "merge"

// Invocation is everything needed to start one worker process.
type Invocation struct {
	Name       string // Unique within one scheduler run, e.g. "batch_0003".
	Executable string
	Args       []string
	Dir        string
	StdoutPath string
	StderrPath string
	Outputs    []string // Files that must exist after a zero exit.
}

// String renders the command line for logs, quoting arguments with spaces.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	for _, a := range append([]string{inv.Executable}, inv.Args...) {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// BatchInvocation builds the worker call for one batch. ratio is the
// effective decimate ratio (flag or config default).
func BatchInvocation(cfg config.Config, b batch.Batch, ratio float64) (Invocation, error) {
	if len(b.Files) == 0 {
		return Invocation{}, fmt.Errorf("%s: empty batch", b.Name())
	}
	prefix, err := cfg.BatchArgs()
	if err != nil {
		return Invocation{}, err
	}
	outDir := cfg.BatchOutputDir()
	output := b.ArtifactPath(outDir)
	stdout, stderr := b.LogPaths(outDir)
	o := cfg.Optimization

	args := make([]string, 0, len(prefix)+10)
	args = append(args, prefix...)
	args = append(args,
		strings.Join(assets.Paths(b.Files), InputSeparator),
		cfg.TextureDir(),
		output,
		formatFloat(ratio),
		strconv.Itoa(o.NormalMapResolution),
		formatFloat(o.BakeCageExtrusion),
		formatFloat(o.BakeMaxRayDistance),
		strconv.FormatBool(o.EnableDecimation),
		strconv.FormatBool(o.EnableNormalBaking),
		strconv.FormatBool(cfg.Options.RemoveHighPolyAfterBake),
	)

	return Invocation{
		Name:       b.Name(),
		Executable: cfg.Paths.BlenderExecutable,
		Args:       args,
		Dir:        cfg.Paths.ProjectRoot,
		StdoutPath: stdout,
		StderrPath: stderr,
		Outputs:    []string{output},
	}, nil
}

// MergeInvocation builds the single call that merges every batch artifact
// into the final artifact.
func MergeInvocation(cfg config.Config) (Invocation, error) {
	prefix, err := cfg.MergeArgs()
	if err != nil {
		return Invocation{}, err
	}
	final := cfg.FinalArtifactPath()
	stdout, stderr := batch.LogPaths(filepath.Dir(final), MergeName)

	args := make([]string, 0, len(prefix)+2)
	args = append(args, prefix...)
	args = append(args, cfg.BatchOutputDir(), final)

	return Invocation{
		Name:       MergeName,
		Executable: cfg.Paths.BlenderExecutable,
		Args:       args,
		Dir:        cfg.Paths.ProjectRoot,
		StdoutPath: stdout,
		StderrPath: stderr,
		Outputs:    []string{final},
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
