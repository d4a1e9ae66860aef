package textures

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/logging"
)

func TestConsolidate_MovesNewFiles(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "tile_1"), "rock.png", "A")
	write(t, filepath.Join(src, "tile_2"), "grass.png", "B")

	res := run(t, src, dst)
	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 0, res.Skipped+res.Renamed+res.Errored)
	assert.Equal(t, "A", read(t, filepath.Join(dst, "rock.png")))
	assert.Equal(t, "B", read(t, filepath.Join(dst, "grass.png")))
	assert.NoFileExists(t, filepath.Join(src, "tile_1", "rock.png"))
}

func TestConsolidate_IdenticalCollisionDeletesSource(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	srcFile := write(t, filepath.Join(src, "tile_1"), "rock.png", "hash-A")
	write(t, dst, "rock.png", "hash-A")
	before := countFiles(t, src) + countFiles(t, dst)

	res := run(t, src, dst)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Moved+res.Renamed+res.Errored)
	assert.NoFileExists(t, srcFile)
	assert.Equal(t, before-1, countFiles(t, src)+countFiles(t, dst))
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, SkippedDuplicate, res.Outcomes[0].Kind)
}

func TestConsolidate_ConflictRenamesPastTakenSuffixes(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "tile_9"), "rock.png", "hash-B")
	write(t, dst, "rock.png", "hash-A")
	write(t, dst, "rock_1.png", "hash-C")

	res := run(t, src, dst)
	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, 0, res.Moved+res.Skipped+res.Errored)
	assert.Equal(t, "hash-B", read(t, filepath.Join(dst, "rock_2.png")))
	assert.Equal(t, "hash-A", read(t, filepath.Join(dst, "rock.png")))
	assert.Equal(t, "hash-C", read(t, filepath.Join(dst, "rock_1.png")))
	assert.Equal(t, filepath.Join(dst, "rock_2.png"), res.Outcomes[0].Target)
}

func TestConsolidate_SuffixedDuplicateIsSkipped(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "a"), "rock.png", "hash-B")
	write(t, dst, "rock.png", "hash-A")
	write(t, dst, "rock_1.png", "hash-B")

	res := run(t, src, dst)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Renamed)
	assert.NoFileExists(t, filepath.Join(dst, "rock_2.png"))
}

func TestConsolidate_SameNameWithinOnePass(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "a"), "rock.png", "one")
	write(t, filepath.Join(src, "b"), "rock.png", "two")
	write(t, filepath.Join(src, "c"), "rock.png", "one")

	res := run(t, src, dst)
	assert.Equal(t, 1, res.Moved)
	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "one", read(t, filepath.Join(dst, "rock.png")))
	assert.Equal(t, "two", read(t, filepath.Join(dst, "rock_1.png")))
}

func TestConsolidate_Idempotent(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "a"), "rock.png", "1")
	write(t, filepath.Join(src, "b"), "rock.png", "2")
	write(t, filepath.Join(src, "b"), "sand.png", "3")
	first := run(t, src, dst)
	require.Equal(t, 3, first.Total())

	second := run(t, src, dst)
	assert.Equal(t, 0, second.Moved)
	assert.Equal(t, 0, second.Renamed)

	// Feeding the destination back into itself changes nothing.
	files, err := assets.Scan(context.Background(), dst, assets.Query{Patterns: assets.TexturePatterns})
	require.NoError(t, err)
	self, err := NewConsolidator(dst, nil).Consolidate(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 0, self.Moved)
	assert.Equal(t, 0, self.Renamed)
	assert.Equal(t, 3, self.Skipped)
	assert.Equal(t, 3, countFiles(t, dst))
}

func TestConsolidate_PerFileErrorDoesNotAbort(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "a"), "gone.png", "x")
	write(t, filepath.Join(src, "b"), "kept.png", "y")

	files, err := assets.Scan(context.Background(), src, assets.Query{Patterns: assets.TexturePatterns})
	require.NoError(t, err)
	require.NoError(t, os.Remove(files[0].Path))

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := NewConsolidator(dst, logging.NewFromCore(core)).Consolidate(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, 1, res.Moved)
	assert.FileExists(t, filepath.Join(dst, "kept.png"))
	assert.Equal(t, 1, logs.Len())
	assert.Error(t, res.Outcomes[0].Err)
}

func TestConsolidate_Cancelled(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, src, "rock.png", "x")
	files, err := assets.Scan(context.Background(), src, assets.Query{Patterns: assets.TexturePatterns})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewConsolidator(dst, nil).Consolidate(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Total())
	assert.FileExists(t, filepath.Join(src, "rock.png"))
}

// Random trees of colliding names must never end with two different contents
// behind one name, and must account for every source file exactly once.
func TestConsolidate_NoSilentOverwrite(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		src, dst := t.TempDir(), t.TempDir()
		contents := map[string]bool{}
		for i := 0; i < 30; i++ {
			body := fmt.Sprintf("content-%d", rng.Intn(6))
			contents[body] = true
			write(t, filepath.Join(src, fmt.Sprintf("d%d", rng.Intn(5)), fmt.Sprintf("e%d", i)),
				fmt.Sprintf("tex%d.png", rng.Intn(3)), body)
		}

		res := run(t, src, dst)
		require.Equal(t, 30, res.Total())
		assert.Equal(t, 30, res.Moved+res.Skipped+res.Renamed)

		seen := map[string]string{}
		entries, err := os.ReadDir(dst)
		require.NoError(t, err)
		for _, e := range entries {
			body := read(t, filepath.Join(dst, e.Name()))
			seen[e.Name()] = body
			assert.True(t, contents[body])
		}
		assert.Equal(t, res.Moved+res.Renamed, len(seen))
	}
}

func TestRemoveEmptyDirs(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "texture")
	write(t, dst, "rock.png", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tile_1", "deep", "deeper"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tile_2"), 0o755))
	write(t, filepath.Join(root, "tile_3"), "model.gltf", "x")

	res, err := RemoveEmptyDirs(root, dst)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Len(t, res.Removed, 4)
	assert.NoDirExists(t, filepath.Join(root, "tile_1"))
	assert.NoDirExists(t, filepath.Join(root, "tile_2"))
	assert.DirExists(t, filepath.Join(root, "tile_3"))
	assert.DirExists(t, dst)
	assert.DirExists(t, root)
}

func TestRemoveEmptyDirs_KeepsEmptyDestination(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "nested", "texture")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	res, err := RemoveEmptyDirs(root, dst)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.DirExists(t, dst)
}

func run(t *testing.T, src, dst string) Result {
	t.Helper()
	files, err := assets.Scan(context.Background(), src, assets.Query{
		Patterns: assets.TexturePatterns,
		Exclude:  []string{dst},
	})
	require.NoError(t, err)
	res, err := NewConsolidator(dst, nil).Consolidate(context.Background(), files)
	require.NoError(t, err)
	return res
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	}))
	return n
}
