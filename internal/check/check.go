// Package check provides system diagnostics (the check command) and
// pre-pipeline dependency validation (CheckDeps) for the worker executable
// and the project layout.
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/config"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrWorkerNotFound     = errors.New("worker executable not found")
	ErrProjectRootMissing = errors.New("project root does not exist")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// versionTimeout bounds the "<worker> --version" probe.
const versionTimeout = 15 * time.Second

// Report summarizes a RunCheck pass.
type Report struct {
	Worker        string // Resolved executable path; empty if not found.
	WorkerVersion string
	GeometryFiles int
	TextureFiles  int
	Artifacts     int
	Problems      int
	Warnings      int
}

// OK reports whether the pipeline could run.
func (r Report) OK() bool { return r.Problems == 0 }

// RunCheck prints the availability of the worker executable and the state of
// every configured folder. It is informational: every check runs even when
// an earlier one fails.
func RunCheck(ctx context.Context, cfg config.Config, log Logger) Report {
	var r Report
	log.Info("=== System Check ===")

	if err := cfg.Validate(); err != nil {
		log.Error("%v", err)
		r.Problems++
	} else {
		log.Success("Config valid")
	}

	checkWorker(ctx, cfg, log, &r)
	checkProjectRoot(cfg, log, &r)
	checkGeometry(ctx, cfg, log, &r)
	checkTextures(ctx, cfg, log, &r)
	checkArtifacts(ctx, cfg, log, &r)
	checkParallelism(cfg, log, &r)

	if r.OK() {
		log.Success("Ready (%d warning(s))", r.Warnings)
	} else {
		log.Error("%d problem(s), %d warning(s)", r.Problems, r.Warnings)
	}
	return r
}

// CheckDeps is the pre-pipeline validation: the project root must exist and
// the worker executable must resolve. Returns a wrapped sentinel error.
func CheckDeps(cfg config.Config) error {
	if fi, err := os.Stat(cfg.Paths.ProjectRoot); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrProjectRootMissing, cfg.Paths.ProjectRoot)
	}
	_, err := CheckWorker(cfg.Paths.BlenderExecutable)
	return err
}

// CheckWorker resolves exe on PATH (or as a path) and returns the resolved
// location.
func CheckWorker(exe string) (string, error) {
	path, err := exec.LookPath(exe)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWorkerNotFound, exe)
	}
	return path, nil
}

// WorkerVersion runs "<exe> --version" and returns the first non-empty line.
func WorkerVersion(ctx context.Context, exe string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, exe, "--version").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("empty version output")
}

func checkWorker(ctx context.Context, cfg config.Config, log Logger, r *Report) {
	path, err := CheckWorker(cfg.Paths.BlenderExecutable)
	if err != nil {
		log.Error("%v", err)
		r.Problems++
		return
	}
	r.Worker = path
	v, err := WorkerVersion(ctx, path)
	if err != nil {
		log.Warn("Worker found at %s but --version failed: %v", path, err)
		r.Warnings++
		return
	}
	r.WorkerVersion = v
	log.Success("Worker: %s (%s)", v, path)
}

func checkProjectRoot(cfg config.Config, log Logger, r *Report) {
	fi, err := os.Stat(cfg.Paths.ProjectRoot)
	if err != nil || !fi.IsDir() {
		log.Error("Project root not found: %s", cfg.Paths.ProjectRoot)
		r.Problems++
		return
	}
	log.Success("Project root: %s", cfg.Paths.ProjectRoot)
}

func checkGeometry(ctx context.Context, cfg config.Config, log Logger, r *Report) {
	dir := cfg.GeometryDir()
	files, err := assets.Scan(ctx, dir, assets.Query{
		Patterns: assets.GeometryPatterns,
		Exclude:  []string{cfg.TextureDir()},
	})
	switch {
	case errors.Is(err, assets.ErrNotFound):
		log.Error("Geometry folder not found: %s", dir)
		r.Problems++
	case err != nil:
		log.Error("Geometry scan failed: %v", err)
		r.Problems++
	case len(files) == 0:
		log.Warn("No glTF/GLB files in %s", dir)
		r.Warnings++
	default:
		r.GeometryFiles = len(files)
		log.Success("Geometry: %d file(s) in %s", len(files), dir)
	}
}

func checkTextures(ctx context.Context, cfg config.Config, log Logger, r *Report) {
	files, err := assets.Scan(ctx, cfg.TextureSourceDir(), assets.Query{Patterns: assets.TexturePatterns})
	if err != nil {
		log.Warn("Texture scan: %v", err)
		r.Warnings++
		return
	}
	r.TextureFiles = len(files)
	log.Info("Textures: %d file(s) under %s", len(files), cfg.TextureSourceDir())
}

func checkArtifacts(ctx context.Context, cfg config.Config, log Logger, r *Report) {
	dir := cfg.BatchOutputDir()
	files, err := assets.Scan(ctx, dir, assets.Query{Patterns: assets.ArtifactPatterns, Flat: true})
	if errors.Is(err, assets.ErrNotFound) {
		log.Info("Batch folder does not exist yet: %s", dir)
		return
	}
	if err != nil {
		log.Warn("Batch folder: %v", err)
		r.Warnings++
		return
	}
	r.Artifacts = len(files)
	log.Info("Batch artifacts: %d in %s", len(files), dir)
}

func checkParallelism(cfg config.Config, log Logger, r *Report) {
	n := cfg.Processing.MaxParallelBlenderInstances
	if cpus := runtime.NumCPU(); n > 2*cpus {
		log.Warn("maxParallelBlenderInstances=%d exceeds twice the CPU count (%d)", n, cpus)
		r.Warnings++
		return
	}
	log.Info("Parallel workers: %d", n)
}
