package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/batch"
	"github.com/backmassage/meshbatch/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Paths.ProjectRoot = "/proj"
	cfg.Paths.BlenderExecutable = "/opt/blender/blender"
	return cfg
}

func TestBatchInvocation_ArgumentContract(t *testing.T) {
	cfg := testConfig()
	b := batch.Batch{Index: 3, Files: []*assets.SourceFile{
		{Path: "/proj/gltf_export/modelLib/a.gltf"},
		{Path: "/proj/gltf_export/modelLib/b.glb"},
	}}

	inv, err := BatchInvocation(cfg, b, 0.25)
	require.NoError(t, err)

	batchDir := filepath.Join("/proj", "gltf_export", "batch_fbx")
	out := filepath.Join(batchDir, "batch_0003.fbx")
	assert.Equal(t, "batch_0003", inv.Name)
	assert.Equal(t, "/opt/blender/blender", inv.Executable)
	assert.Equal(t, "/proj", inv.Dir)
	assert.Equal(t, []string{
		"-b", "--python", "merge_gltf_batch_optimized.py", "--",
		"/proj/gltf_export/modelLib/a.gltf|/proj/gltf_export/modelLib/b.glb",
		filepath.Join("/proj", "gltf_export", "modelLib", "texture"),
		out,
		"0.25", "2048", "0.1", "1",
		"true", "true", "true",
	}, inv.Args)
	assert.Equal(t, []string{out}, inv.Outputs)
	assert.Equal(t, filepath.Join(batchDir, "batch_0003.stdout.log"), inv.StdoutPath)
	assert.Equal(t, filepath.Join(batchDir, "batch_0003.stderr.log"), inv.StderrPath)
}

func TestBatchInvocation_Toggles(t *testing.T) {
	cfg := testConfig()
	cfg.Optimization.EnableNormalBaking = false
	cfg.Options.RemoveHighPolyAfterBake = false
	b := batch.Batch{Index: 1, Files: []*assets.SourceFile{{Path: "x.gltf"}}}

	inv, err := BatchInvocation(cfg, b, 1)
	require.NoError(t, err)
	n := len(inv.Args)
	assert.Equal(t, []string{"1", "2048", "0.1", "1", "true", "false", "false"}, inv.Args[n-7:])
}

func TestBatchInvocation_EmptyBatch(t *testing.T) {
	_, err := BatchInvocation(testConfig(), batch.Batch{Index: 1}, 0.5)
	assert.Error(t, err)
}

func TestMergeInvocation(t *testing.T) {
	cfg := testConfig()
	cfg.Scripts.MergeArgs = `-b --python "scripts/merge final.py" --`

	inv, err := MergeInvocation(cfg)
	require.NoError(t, err)

	merged := filepath.Join("/proj", "gltf_export", "merged")
	assert.Equal(t, MergeName, inv.Name)
	assert.Equal(t, []string{
		"-b", "--python", "scripts/merge final.py", "--",
		filepath.Join("/proj", "gltf_export", "batch_fbx"),
		filepath.Join(merged, "merged.fbx"),
	}, inv.Args)
	assert.Equal(t, filepath.Join(merged, "merge.stdout.log"), inv.StdoutPath)
	assert.Equal(t, filepath.Join(merged, "merge.stderr.log"), inv.StderrPath)
	assert.Equal(t, []string{filepath.Join(merged, "merged.fbx")}, inv.Outputs)
}

func TestInvocation_String(t *testing.T) {
	inv := Invocation{Executable: "blender", Args: []string{"-b", "--python", "my script.py", ""}}
	assert.Equal(t, `blender -b --python "my script.py" ""`, inv.String())
}

func TestScanLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_0001.stderr.log")
	body := "Importing a.gltf\n" +
		"Warning: texture not found\n" +
		"Traceback (most recent call last):\n" +
		"RuntimeError: export failed\n" +
		"Export done\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := ScanLog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, "Traceback (most recent call last):", s.FirstError)

	missing, err := ScanLog(filepath.Join(t.TempDir(), "absent.log"))
	require.NoError(t, err)
	assert.Zero(t, missing)
}

func TestLineClassification(t *testing.T) {
	tests := []struct {
		line    string
		isError bool
		isWarn  bool
	}{
		{"ERROR: could not open file", true, false},
		{"Export failed", true, false},
		{"warning: skipped 3 meshes", false, true},
		{"Texture not found, using default", false, true},
		{"Error: texture not found", true, false},
		{"Processing batch", false, false},
		{"terrorize", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.isError, IsErrorLine(tt.line))
			assert.Equal(t, tt.isWarn, IsWarningLine(tt.line))
		})
	}
}

func TestExecLauncher_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	_, err := ExecLauncher{}.Launch(context.Background(), Invocation{
		Name:       "batch_0001",
		Executable: filepath.Join(dir, "no-such-blender"),
		StdoutPath: filepath.Join(dir, "out.log"),
		StderrPath: filepath.Join(dir, "err.log"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutableNotFound)
	var le *LaunchError
	assert.ErrorAs(t, err, &le)
}

func TestExecLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExecLauncher{}.Launch(ctx, Invocation{Name: "x", Executable: "true"})
	assert.ErrorIs(t, err, context.Canceled)
}
