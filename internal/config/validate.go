package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Range limits shared by the validator and the CLI flag checks.
const (
	MinFilesPerBatch = 1
	MaxFilesPerBatch = 100
	MinDecimateRatio = 0.0
	MaxDecimateRatio = 1.0
)

// FieldError is one invalid configuration field.
type FieldError struct {
	Field   string // Dotted document path, e.g. "processing.defaultFilesPerBatch".
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the full list of problems found by [Config.Validate].
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return "invalid config: " + v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("invalid config (%d errors): %s", len(v), strings.Join(msgs, "; "))
}

// Fields returns the dotted paths of every invalid field, in check order.
func (v ValidationErrors) Fields() []string {
	out := make([]string, len(v))
	for i, e := range v {
		out[i] = e.Field
	}
	return out
}

// Validate checks every field and returns all violations at once as
// [ValidationErrors], or nil. It is pure: it reads only the Config value and
// never touches the filesystem. Executable presence is checked separately by
// the check package because it depends on the host.
func (c Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Paths.ProjectRoot) == "" {
		add("paths.projectRoot", "must not be empty")
	}
	if strings.TrimSpace(c.Paths.BlenderExecutable) == "" {
		add("paths.blenderExecutable", "must not be empty")
	}

	folders := []struct {
		field string
		value string
	}{
		{"folders.modelLib", c.Folders.ModelLib},
		{"folders.modelLibTextures", c.Folders.ModelLibTextures},
		{"folders.batchFbxOutput", c.Folders.BatchFbxOutput},
		{"folders.mergedOutput", c.Folders.MergedOutput},
	}
	for _, f := range folders {
		if strings.TrimSpace(f.value) == "" {
			add(f.field, "must not be empty")
		}
	}
	if c.Folders.BatchFbxOutput != "" && c.Resolve(c.Folders.BatchFbxOutput) == c.Resolve(c.Folders.MergedOutput) {
		add("folders.mergedOutput", "must differ from folders.batchFbxOutput")
	}

	if _, err := c.BatchArgs(); err != nil {
		add("scripts.batchArgs", "%v", err)
	}
	if _, err := c.MergeArgs(); err != nil {
		add("scripts.mergeArgs", "%v", err)
	}

	name := c.Output.MergedFbxName
	if strings.TrimSpace(name) == "" {
		add("output.mergedFbxName", "must not be empty")
	} else if strings.ContainsAny(name, `/\`) {
		add("output.mergedFbxName", "must be a file name, not a path")
	}

	p := c.Processing
	if p.MaxParallelBlenderInstances < 1 {
		add("processing.maxParallelBlenderInstances", "must be at least 1 (got %d)", p.MaxParallelBlenderInstances)
	}
	if p.ProcessCheckIntervalMs < 1 {
		add("processing.processCheckIntervalMs", "must be at least 1 (got %d)", p.ProcessCheckIntervalMs)
	}
	if p.DefaultFilesPerBatch < MinFilesPerBatch || p.DefaultFilesPerBatch > MaxFilesPerBatch {
		add("processing.defaultFilesPerBatch", "must be in [%d, %d] (got %d)", MinFilesPerBatch, MaxFilesPerBatch, p.DefaultFilesPerBatch)
	}
	if p.DefaultDecimateRatio < MinDecimateRatio || p.DefaultDecimateRatio > MaxDecimateRatio {
		add("processing.defaultDecimateRatio", "must be in [0, 1] (got %s)", formatFloat(p.DefaultDecimateRatio))
	}
	if p.TerminateGraceMs < 0 {
		add("processing.terminateGraceMs", "must not be negative (got %d)", p.TerminateGraceMs)
	}
	if p.MaxBatchDurationSec < 0 {
		add("processing.maxBatchDurationSec", "must not be negative (got %d)", p.MaxBatchDurationSec)
	}

	o := c.Optimization
	if o.NormalMapResolution <= 0 || o.NormalMapResolution&(o.NormalMapResolution-1) != 0 {
		add("optimization.normalMapResolution", "must be a positive power of two (got %d)", o.NormalMapResolution)
	}
	if o.BakeCageExtrusion < 0 {
		add("optimization.bakeCageExtrusion", "must not be negative (got %s)", formatFloat(o.BakeCageExtrusion))
	}
	if o.BakeMaxRayDistance < 0 {
		add("optimization.bakeMaxRayDistance", "must not be negative (got %s)", formatFloat(o.BakeMaxRayDistance))
	}

	for _, n := range c.PresetNames() {
		pr := c.Quality.Presets[n]
		field := "quality.presets." + n
		if pr.FilesPerBatch < MinFilesPerBatch || pr.FilesPerBatch > MaxFilesPerBatch {
			add(field+".filesPerBatch", "must be in [%d, %d] (got %d)", MinFilesPerBatch, MaxFilesPerBatch, pr.FilesPerBatch)
		}
		if pr.DecimateRatio < MinDecimateRatio || pr.DecimateRatio > MaxDecimateRatio {
			add(field+".decimateRatio", "must be in [0, 1] (got %s)", formatFloat(pr.DecimateRatio))
		}
		if pr.NormalMapResolution <= 0 {
			add(field+".normalMapResolution", "must be positive (got %d)", pr.NormalMapResolution)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quote(s string) string {
	return strconv.Quote(s)
}
