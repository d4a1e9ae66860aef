// Package config holds the pipeline configuration: defaults, file and
// environment loading, quality presets, CLI flag binding, and validation.
// Key names use the camelCase of the config.json document.
package config

import (
	"path/filepath"
	"sort"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config is the immutable pipeline configuration. It is built once by
// [Load] (or [Default]), validated, and then passed by value to every stage.
// Nothing in the pipeline mutates it after validation.
type Config struct {
	Paths        Paths        `json:"paths" yaml:"paths" toml:"paths"`
	Folders      Folders      `json:"folders" yaml:"folders" toml:"folders"`
	Scripts      Scripts      `json:"scripts" yaml:"scripts" toml:"scripts"`
	Output       Output       `json:"output" yaml:"output" toml:"output"`
	Processing   Processing   `json:"processing" yaml:"processing" toml:"processing"`
	Optimization Optimization `json:"optimization" yaml:"optimization" toml:"optimization"`
	Options      Options      `json:"options" yaml:"options" toml:"options"`
	Quality      Quality      `json:"quality" yaml:"quality" toml:"quality" ignored:"true"`
}

// Paths locates the project and the worker executable.
type Paths struct {
	ProjectRoot       string `json:"projectRoot" yaml:"projectRoot" toml:"projectRoot" split_words:"true"`
	BlenderExecutable string `json:"blenderExecutable" yaml:"blenderExecutable" toml:"blenderExecutable" split_words:"true"`
}

// Folders are stage directories, relative to Paths.ProjectRoot unless absolute.
type Folders struct {
	GltfExport       string `json:"gltfExport" yaml:"gltfExport" toml:"gltfExport" split_words:"true"`
	ModelLib         string `json:"modelLib" yaml:"modelLib" toml:"modelLib" split_words:"true"`
	ModelLibTextures string `json:"modelLibTextures" yaml:"modelLibTextures" toml:"modelLibTextures" split_words:"true"`
	BatchFbxOutput   string `json:"batchFbxOutput" yaml:"batchFbxOutput" toml:"batchFbxOutput" split_words:"true"`
	MergedOutput     string `json:"mergedOutput" yaml:"mergedOutput" toml:"mergedOutput" split_words:"true"`
}

// Scripts holds the worker argument prefixes, as shell-word strings. They are
// prepended to the positional argument contract of each invocation.
type Scripts struct {
	BatchArgs string `json:"batchArgs" yaml:"batchArgs" toml:"batchArgs" split_words:"true"`
	MergeArgs string `json:"mergeArgs" yaml:"mergeArgs" toml:"mergeArgs" split_words:"true"`
}

// Output names the final artifact.
type Output struct {
	MergedFbxName string `json:"mergedFbxName" yaml:"mergedFbxName" toml:"mergedFbxName" split_words:"true"`
}

// Processing controls the process pool and batch shape.
type Processing struct {
	MaxParallelBlenderInstances int     `json:"maxParallelBlenderInstances" yaml:"maxParallelBlenderInstances" toml:"maxParallelBlenderInstances" split_words:"true"`
	ProcessCheckIntervalMs      int     `json:"processCheckIntervalMs" yaml:"processCheckIntervalMs" toml:"processCheckIntervalMs" split_words:"true"`
	DefaultFilesPerBatch        int     `json:"defaultFilesPerBatch" yaml:"defaultFilesPerBatch" toml:"defaultFilesPerBatch" split_words:"true"`
	DefaultDecimateRatio        float64 `json:"defaultDecimateRatio" yaml:"defaultDecimateRatio" toml:"defaultDecimateRatio" split_words:"true"`
	CleanupSubfolders           bool    `json:"cleanupSubfolders" yaml:"cleanupSubfolders" toml:"cleanupSubfolders" split_words:"true"`
	TerminateGraceMs            int     `json:"terminateGraceMs" yaml:"terminateGraceMs" toml:"terminateGraceMs" split_words:"true"`
	MaxBatchDurationSec         int     `json:"maxBatchDurationSec" yaml:"maxBatchDurationSec" toml:"maxBatchDurationSec" split_words:"true"`
}

// Optimization is forwarded verbatim to the batch worker.
type Optimization struct {
	EnableDecimation    bool    `json:"enableDecimation" yaml:"enableDecimation" toml:"enableDecimation" split_words:"true"`
	EnableNormalBaking  bool    `json:"enableNormalBaking" yaml:"enableNormalBaking" toml:"enableNormalBaking" split_words:"true"`
	NormalMapResolution int     `json:"normalMapResolution" yaml:"normalMapResolution" toml:"normalMapResolution" split_words:"true"`
	BakeCageExtrusion   float64 `json:"bakeCageExtrusion" yaml:"bakeCageExtrusion" toml:"bakeCageExtrusion" split_words:"true"`
	BakeMaxRayDistance  float64 `json:"bakeMaxRayDistance" yaml:"bakeMaxRayDistance" toml:"bakeMaxRayDistance" split_words:"true"`
}

// Options are behavior toggles.
type Options struct {
	CleanOutputFolders      bool   `json:"cleanOutputFolders" yaml:"cleanOutputFolders" toml:"cleanOutputFolders" split_words:"true"`
	VerboseLogging          bool   `json:"verboseLogging" yaml:"verboseLogging" toml:"verboseLogging" split_words:"true"`
	SaveBatchLogs           bool   `json:"saveBatchLogs" yaml:"saveBatchLogs" toml:"saveBatchLogs" split_words:"true"`
	RemoveHighPolyAfterBake bool   `json:"removeHighPolyAfterBake" yaml:"removeHighPolyAfterBake" toml:"removeHighPolyAfterBake" split_words:"true"`
	ArchiveBatchLogs        bool   `json:"archiveBatchLogs" yaml:"archiveBatchLogs" toml:"archiveBatchLogs" split_words:"true"`
	VerifyTextureContent    bool   `json:"verifyTextureContent" yaml:"verifyTextureContent" toml:"verifyTextureContent" split_words:"true"`
	MetricsFile             string `json:"metricsFile" yaml:"metricsFile" toml:"metricsFile" split_words:"true"`
}

// Quality holds the named presets selectable with --preset.
type Quality struct {
	Presets map[string]Preset `json:"presets" yaml:"presets" toml:"presets"`
}

// Preset bundles the three knobs a quality level changes.
type Preset struct {
	DecimateRatio       float64 `json:"decimateRatio" yaml:"decimateRatio" toml:"decimateRatio"`
	FilesPerBatch       int     `json:"filesPerBatch" yaml:"filesPerBatch" toml:"filesPerBatch"`
	NormalMapResolution int     `json:"normalMapResolution" yaml:"normalMapResolution" toml:"normalMapResolution"`
}

// Default returns a Config with every field set to its built-in default.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectRoot:       ".",
			BlenderExecutable: "blender",
		},
		Folders: Folders{
			GltfExport:       "gltf_export",
			ModelLib:         "gltf_export/modelLib",
			ModelLibTextures: "gltf_export/modelLib/texture",
			BatchFbxOutput:   "gltf_export/batch_fbx",
			MergedOutput:     "gltf_export/merged",
		},
		Scripts: Scripts{
			BatchArgs: "-b --python merge_gltf_batch_optimized.py --",
			MergeArgs: "-b --python merge_final_fbx.py --",
		},
		Output: Output{
			MergedFbxName: "merged.fbx",
		},
		Processing: Processing{
			MaxParallelBlenderInstances: 32,
			ProcessCheckIntervalMs:      200,
			DefaultFilesPerBatch:        10,
			DefaultDecimateRatio:        0.5,
			CleanupSubfolders:           true,
			TerminateGraceMs:            5000,
			MaxBatchDurationSec:         0,
		},
		Optimization: Optimization{
			EnableDecimation:    true,
			EnableNormalBaking:  true,
			NormalMapResolution: 2048,
			BakeCageExtrusion:   0.1,
			BakeMaxRayDistance:  1.0,
		},
		Options: Options{
			CleanOutputFolders:      false,
			VerboseLogging:          true,
			SaveBatchLogs:           true,
			RemoveHighPolyAfterBake: true,
		},
		Quality: Quality{Presets: DefaultPresets()},
	}
}

// DefaultPresets returns the built-in quality ladder.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"ultra_high": {DecimateRatio: 0.9, FilesPerBatch: 5, NormalMapResolution: 4096},
		"high":       {DecimateRatio: 0.7, FilesPerBatch: 10, NormalMapResolution: 2048},
		"medium":     {DecimateRatio: 0.5, FilesPerBatch: 15, NormalMapResolution: 2048},
		"low":        {DecimateRatio: 0.3, FilesPerBatch: 20, NormalMapResolution: 1024},
		"very_low":   {DecimateRatio: 0.1, FilesPerBatch: 50, NormalMapResolution: 512},
	}
}

// PresetNames returns the configured preset names in sorted order.
func (c Config) PresetNames() []string {
	names := make([]string, 0, len(c.Quality.Presets))
	for name := range c.Quality.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithPreset returns a copy of c with the named preset applied to the
// processing defaults and normal-map resolution. The receiver is unchanged.
func (c Config) WithPreset(name string) (Config, error) {
	p, ok := c.Quality.Presets[name]
	if !ok {
		return c, &FieldError{Field: "quality.presets", Message: "unknown preset " + quote(name)}
	}
	c.Processing.DefaultDecimateRatio = p.DecimateRatio
	c.Processing.DefaultFilesPerBatch = p.FilesPerBatch
	c.Optimization.NormalMapResolution = p.NormalMapResolution
	return c, nil
}

// Resolve joins a folder setting to the project root and returns an
// absolute path. Absolute folders are returned cleaned.
func (c Config) Resolve(folder string) string {
	if filepath.IsAbs(folder) {
		return filepath.Clean(folder)
	}
	p := filepath.Join(c.Paths.ProjectRoot, filepath.FromSlash(folder))
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// GeometryDir is the directory scanned for glTF/GLB inputs.
func (c Config) GeometryDir() string { return c.Resolve(c.Folders.ModelLib) }

// TextureSourceDir is the nested tree textures are flattened out of.
func (c Config) TextureSourceDir() string { return c.Resolve(c.Folders.ModelLib) }

// TextureDir is the flat texture destination handed to the workers.
func (c Config) TextureDir() string { return c.Resolve(c.Folders.ModelLibTextures) }

// BatchOutputDir holds per-batch artifacts and logs.
func (c Config) BatchOutputDir() string { return c.Resolve(c.Folders.BatchFbxOutput) }

// MergedOutputDir holds the final artifact.
func (c Config) MergedOutputDir() string { return c.Resolve(c.Folders.MergedOutput) }

// FinalArtifactPath is the merged output file.
func (c Config) FinalArtifactPath() string {
	return filepath.Join(c.MergedOutputDir(), c.Output.MergedFbxName)
}
