package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/meshbatch/internal/config"
)

type recordingLogger struct {
	lines map[string][]string
}

func newRecorder() *recordingLogger { return &recordingLogger{lines: map[string][]string{}} }

func (r *recordingLogger) add(level, format string, args ...interface{}) {
	r.lines[level] = append(r.lines[level], fmt.Sprintf(format, args...))
}
func (r *recordingLogger) Info(f string, a ...interface{})    { r.add("info", f, a...) }
func (r *recordingLogger) Success(f string, a ...interface{}) { r.add("success", f, a...) }
func (r *recordingLogger) Warn(f string, a ...interface{})    { r.add("warn", f, a...) }
func (r *recordingLogger) Error(f string, a ...interface{})   { r.add("error", f, a...) }
func (r *recordingLogger) Debug(f string, a ...interface{})   { r.add("debug", f, a...) }

// fakeWorker writes an executable shell script that prints a version line.
func fakeWorker(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script worker")
	}
	path := filepath.Join(dir, "blender")
	script := "#!/bin/sh\necho\necho 'Blender 4.1.0'\necho '  build hash: 1234'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func project(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ProjectRoot = root
	cfg.Paths.BlenderExecutable = fakeWorker(t, t.TempDir())
	cfg.Processing.MaxParallelBlenderInstances = 1

	lib := cfg.GeometryDir()
	require.NoError(t, os.MkdirAll(filepath.Join(lib, "tile_1"), 0o755))
	for _, name := range []string{"tile_1/a.gltf", "tile_1/b.glb", "tile_1/a.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(lib, filepath.FromSlash(name)), []byte("x"), 0o644))
	}
	return cfg
}

func TestCheckWorker_NotFound(t *testing.T) {
	_, err := CheckWorker(filepath.Join(t.TempDir(), "no-blender"))
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestCheckWorker_Found(t *testing.T) {
	exe := fakeWorker(t, t.TempDir())
	path, err := CheckWorker(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, path)
}

func TestCheckDeps(t *testing.T) {
	cfg := project(t)
	assert.NoError(t, CheckDeps(cfg))

	missingRoot := cfg
	missingRoot.Paths.ProjectRoot = filepath.Join(t.TempDir(), "gone")
	assert.ErrorIs(t, CheckDeps(missingRoot), ErrProjectRootMissing)

	missingWorker := cfg
	missingWorker.Paths.BlenderExecutable = "definitely-not-a-real-blender"
	assert.ErrorIs(t, CheckDeps(missingWorker), ErrWorkerNotFound)
}

func TestWorkerVersion_FirstNonEmptyLine(t *testing.T) {
	v, err := WorkerVersion(context.Background(), fakeWorker(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "Blender 4.1.0", v)
}

func TestRunCheck_Ready(t *testing.T) {
	cfg := project(t)
	log := newRecorder()

	r := RunCheck(context.Background(), cfg, log)
	assert.True(t, r.OK(), "errors: %v", log.lines["error"])
	assert.Equal(t, "Blender 4.1.0", r.WorkerVersion)
	assert.Equal(t, 2, r.GeometryFiles)
	assert.Equal(t, 1, r.TextureFiles)
	assert.Zero(t, r.Artifacts)
}

func TestRunCheck_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ProjectRoot = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.BlenderExecutable = "definitely-not-a-real-blender"
	log := newRecorder()

	r := RunCheck(context.Background(), cfg, log)
	assert.False(t, r.OK())
	// Worker, project root and geometry folder.
	assert.Equal(t, 3, r.Problems)
	assert.Len(t, log.lines["error"], 4)
}
