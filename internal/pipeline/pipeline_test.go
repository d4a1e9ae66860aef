package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/meshbatch/internal/config"
	"github.com/backmassage/meshbatch/internal/logging"
	"github.com/backmassage/meshbatch/internal/worker"
	"github.com/backmassage/meshbatch/internal/worker/workertest"
)

// newProject lays out a project with n geometry files spread over tile
// folders, each with a texture, and returns its config.
func newProject(t *testing.T, n int) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ProjectRoot = t.TempDir()
	cfg.Processing.ProcessCheckIntervalMs = 1
	cfg.Processing.MaxParallelBlenderInstances = 3

	lib := cfg.GeometryDir()
	for i := 0; i < n; i++ {
		dir := filepath.Join(lib, fmt.Sprintf("tile_%02d", i))
		touch(t, dir, fmt.Sprintf("mesh_%02d.gltf", i), "{}")
		touch(t, dir, fmt.Sprintf("mesh_%02d_diffuse.png", i), fmt.Sprintf("png-%d", i))
	}
	return cfg
}

func newOrchestrator(cfg config.Config, fake *workertest.Launcher) *Orchestrator {
	return New(cfg, logging.Nop(),
		WithLauncher(fake),
		WithExecutableCheck(func(exe string) (string, error) { return exe, nil }),
	)
}

func opts(cfg config.Config, batchSize int) Options {
	o := DefaultOptions(cfg)
	o.FilesPerBatch = batchSize
	return o
}

func TestRun_AllStagesSucceed(t *testing.T) {
	cfg := newProject(t, 12)
	fake := &workertest.Launcher{}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 5))
	require.NoError(t, err)

	assert.Equal(t, Success, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 12, run.GeometryFiles)
	assert.Equal(t, 3, run.Batches)
	assert.Equal(t, cfg.FinalArtifactPath(), run.Artifact)
	assert.FileExists(t, run.Artifact)
	assert.Equal(t, []string{"batch_0001", "batch_0002", "batch_0003", "merge"}, fake.Launched())

	tex, ok := run.Stage(StageConsolidate)
	require.True(t, ok)
	assert.Equal(t, StageSucceeded, tex.Status)
	assert.Equal(t, 12, tex.Moved)
	assert.FileExists(t, filepath.Join(cfg.TextureDir(), "mesh_07_diffuse.png"))

	d, _ := run.Stage(StageDispatch)
	assert.Equal(t, 3, d.Completed)
	assert.Equal(t, 3, d.Produced)

	// Every geometry file went to exactly one batch, in order.
	invs := fake.Invocations()
	assert.Equal(t, cfg.TextureDir(), invs[0].Args[len(invs[0].Args)-9])
	assert.Equal(t, "0.5", invs[0].Args[len(invs[0].Args)-7])
}

func TestRun_PartialSuccessStillMerges(t *testing.T) {
	cfg := newProject(t, 5)
	fake := &workertest.Launcher{Script: func(inv worker.Invocation) workertest.Behavior {
		if inv.Name == "batch_0003" {
			return workertest.Behavior{Polls: 2, ExitCode: 2}
		}
		return workertest.Behavior{Polls: 1}
	}}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 1))
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, run.Status)
	d, _ := run.Stage(StageDispatch)
	assert.Equal(t, StagePartial, d.Status)
	assert.Equal(t, 4, d.Completed)
	assert.Equal(t, 1, d.Failed)
	require.NotEmpty(t, d.Warnings)
	assert.Contains(t, d.Warnings[0], "batch_0003")

	launched := fake.Launched()
	assert.Equal(t, "merge", launched[len(launched)-1])
	assert.FileExists(t, run.Artifact)
}

func TestRun_ZeroArtifactsNeverMerges(t *testing.T) {
	cfg := newProject(t, 4)
	fake := &workertest.Launcher{Script: func(worker.Invocation) workertest.Behavior {
		return workertest.Behavior{Polls: 1, ExitCode: 1}
	}}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoArtifacts)
	k, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindWorkerFailure, k)

	assert.Equal(t, Failed, run.Status)
	assert.NotContains(t, fake.Launched(), worker.MergeName)
	_, reached := run.Stage(StageMerge)
	assert.False(t, reached)
}

func TestRun_LeftoverArtifactOfFailedBatchIsNotMerged(t *testing.T) {
	cfg := newProject(t, 2)
	stale := touch(t, cfg.BatchOutputDir(), "batch_0002.fbx", "from an earlier run")
	fake := &workertest.Launcher{Script: func(inv worker.Invocation) workertest.Behavior {
		if inv.Name == "batch_0002" {
			return workertest.Behavior{Polls: 1, ExitCode: 1}
		}
		return workertest.Behavior{Polls: 1}
	}}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 1))
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, run.Status)
	d, _ := run.Stage(StageDispatch)
	assert.Equal(t, 1, d.Produced)
	assert.NoFileExists(t, stale)
	assert.Equal(t, "merge", fake.Launched()[len(fake.Launched())-1])
}

func TestRun_NoGeometry(t *testing.T) {
	cfg := newProject(t, 0)
	require.NoError(t, os.MkdirAll(cfg.GeometryDir(), 0o755))
	fake := &workertest.Launcher{}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), DefaultOptions(cfg))
	assert.ErrorIs(t, err, ErrNoGeometry)
	k, _ := KindOf(err)
	assert.Equal(t, KindInputAbsent, k)
	assert.Equal(t, Failed, run.Status)
	assert.Empty(t, fake.Launched())
}

func TestRun_MissingExecutable(t *testing.T) {
	cfg := newProject(t, 2)
	cfg.Paths.BlenderExecutable = filepath.Join(t.TempDir(), "no-blender")
	fake := &workertest.Launcher{}

	run, err := New(cfg, nil, WithLauncher(fake)).Run(context.Background(), DefaultOptions(cfg))
	assert.ErrorIs(t, err, ErrMissingExecutable)
	k, _ := KindOf(err)
	assert.Equal(t, KindConfiguration, k)
	assert.Equal(t, Failed, run.Status)
	assert.Empty(t, fake.Launched())
	require.Len(t, run.Stages, 1)
	assert.Equal(t, StageFailed, run.Stages[0].Status)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := newProject(t, 1)
	cfg.Processing.MaxParallelBlenderInstances = 0

	_, err := newOrchestrator(cfg, &workertest.Launcher{}).Run(context.Background(), DefaultOptions(cfg))
	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestRun_OnlyMergeDominates(t *testing.T) {
	cfg := newProject(t, 3)
	touch(t, cfg.BatchOutputDir(), "batch_0001.fbx", "old")
	fake := &workertest.Launcher{}

	// SkipMerge is contradicted by OnlyMerge; OnlyMerge wins.
	o := Options{OnlyMerge: true, SkipMerge: true, FilesPerBatch: 10, DecimateRatio: 0.5}
	run, err := newOrchestrator(cfg, fake).Run(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, []string{worker.MergeName}, fake.Launched())
	c, _ := run.Stage(StageConsolidate)
	d, _ := run.Stage(StageDispatch)
	assert.Equal(t, StageSkipped, c.Status)
	assert.Equal(t, StageSkipped, d.Status)
	// Textures were left alone.
	assert.FileExists(t, filepath.Join(cfg.GeometryDir(), "tile_00", "mesh_00_diffuse.png"))
}

func TestRun_OnlyMergeWithoutArtifacts(t *testing.T) {
	cfg := newProject(t, 3)
	fake := &workertest.Launcher{}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), Options{OnlyMerge: true, FilesPerBatch: 10})
	assert.ErrorIs(t, err, ErrNoArtifacts)
	assert.Empty(t, fake.Launched())
	m, _ := run.Stage(StageMerge)
	assert.Equal(t, StageFailed, m.Status)
}

func TestRun_CleanOutputOnlyWhenDispatchRuns(t *testing.T) {
	cfg := newProject(t, 2)
	cfg.Options.CleanOutputFolders = true
	stale := touch(t, cfg.BatchOutputDir(), "batch_0099.fbx", "stale")

	o := opts(cfg, 10)
	o.SkipDispatch = true
	_, err := newOrchestrator(cfg, &workertest.Launcher{}).Run(context.Background(), o)
	require.NoError(t, err)
	assert.FileExists(t, stale)

	_, err = newOrchestrator(cfg, &workertest.Launcher{}).Run(context.Background(), opts(cfg, 10))
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(cfg.BatchOutputDir(), "batch_0001.fbx"))
}

func TestRun_ProcessStopsBeforeMerge(t *testing.T) {
	cfg := newProject(t, 4)
	fake := &workertest.Launcher{}
	o := opts(cfg, 2)
	o.SkipMerge = true

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch_0001", "batch_0002"}, fake.Launched())
	m, _ := run.Stage(StageMerge)
	assert.Equal(t, StageSkipped, m.Status)
	assert.Empty(t, run.Artifact)
}

func TestRun_MergeFailure(t *testing.T) {
	cfg := newProject(t, 2)
	fake := &workertest.Launcher{Script: func(inv worker.Invocation) workertest.Behavior {
		if inv.Name == worker.MergeName {
			return workertest.Behavior{Polls: 1, ExitCode: 3, Stderr: "Error: could not export\n"}
		}
		return workertest.Behavior{Polls: 1}
	}}

	run, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 1))
	assert.ErrorIs(t, err, ErrMergeFailed)
	assert.Contains(t, err.Error(), "Error: could not export")
	k, _ := KindOf(err)
	assert.Equal(t, KindMergeFailure, k)
	assert.Equal(t, Failed, run.Status)
	assert.Empty(t, run.Artifact)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := newProject(t, 6)
	fake := &workertest.Launcher{Script: func(worker.Invocation) workertest.Behavior {
		return workertest.Behavior{Hang: true}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		assert.Eventually(t, func() bool { return fake.Running() == 3 }, 5*time.Second, time.Millisecond)
		cancel()
	}()

	run, err := newOrchestrator(cfg, fake).Run(ctx, opts(cfg, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Cancelled, run.Status)
	assert.Len(t, fake.Terminated(), 3)
	assert.Zero(t, fake.Running())
	assert.NotContains(t, fake.Launched(), worker.MergeName)
	d, _ := run.Stage(StageDispatch)
	assert.Equal(t, StageCancelled, d.Status)
}

func TestRun_PrunesLogsOfSuccessfulBatches(t *testing.T) {
	cfg := newProject(t, 2)
	cfg.Options.SaveBatchLogs = false
	fake := &workertest.Launcher{Script: func(inv worker.Invocation) workertest.Behavior {
		if inv.Name == "batch_0002" {
			return workertest.Behavior{Polls: 1, ExitCode: 1, Stderr: "Traceback\n"}
		}
		return workertest.Behavior{Polls: 1}
	}}

	_, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 1))
	require.NoError(t, err)

	dir := cfg.BatchOutputDir()
	assert.NoFileExists(t, filepath.Join(dir, "batch_0001.stdout.log"))
	assert.NoFileExists(t, filepath.Join(dir, "batch_0001.stderr.log"))
	assert.FileExists(t, filepath.Join(dir, "batch_0002.stderr.log"))
}

func TestRun_ArchivesLogs(t *testing.T) {
	cfg := newProject(t, 1)
	cfg.Options.ArchiveBatchLogs = true
	fake := &workertest.Launcher{Script: func(worker.Invocation) workertest.Behavior {
		return workertest.Behavior{Polls: 1, Stderr: "Warning: no UVs\n"}
	}}

	_, err := newOrchestrator(cfg, fake).Run(context.Background(), opts(cfg, 1))
	require.NoError(t, err)

	base := filepath.Join(cfg.BatchOutputDir(), "batch_0001.stderr.log")
	assert.NoFileExists(t, base)
	got, err := ReadArchivedLog(base + ArchiveExt)
	require.NoError(t, err)
	assert.Equal(t, "Warning: no UVs\n", string(got))
}

func TestRun_WritesMetricsFile(t *testing.T) {
	cfg := newProject(t, 2)
	cfg.Options.MetricsFile = "metrics/meshbatch.prom"

	_, err := newOrchestrator(cfg, &workertest.Launcher{}).Run(context.Background(), opts(cfg, 1))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(cfg.Paths.ProjectRoot, "metrics", "meshbatch.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `meshbatch_run_status{status="success"} 1`)
	assert.Contains(t, string(b), `meshbatch_units_completed_total{pool="batch"} 2`)
}

func TestOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{"defaults untouched", Options{}, Options{}},
		{"only merge sets skips", Options{OnlyMerge: true}, Options{OnlyMerge: true, SkipConsolidate: true, SkipDispatch: true}},
		{"only merge beats skip merge", Options{OnlyMerge: true, SkipMerge: true}, Options{OnlyMerge: true, SkipConsolidate: true, SkipDispatch: true}},
		{"skips alone", Options{SkipDispatch: true}, Options{SkipDispatch: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
			assert.Equal(t, tt.want, tt.in.Normalize().Normalize())
		})
	}
}

func TestArchiveLog_RoundTrip(t *testing.T) {
	path := touch(t, t.TempDir(), "merge.stdout.log", "line 1\nline 2\n")
	require.NoError(t, ArchiveLog(path))
	assert.NoFileExists(t, path)

	got, err := ReadArchivedLog(path + ArchiveExt)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(got))
}

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
