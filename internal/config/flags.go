package config

// This file binds the run/process command flags. Flags that override a
// config default are only applied when the user actually passed them, so the
// document (or preset) value holds otherwise.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "config.json"

// Flags holds the values parsed from the command line.
type Flags struct {
	ConfigPath      string
	FilesPerBatch   int
	DecimateRatio   float64
	Preset          string
	SkipDispatch    bool
	SkipConsolidate bool
	OnlyMerge       bool
	Verbose         bool
	LogFile         string
	ColorMode       ColorMode

	fs *pflag.FlagSet
}

// BindGlobalFlags registers the flags shared by every command: --config,
// --verbose, --log and --color.
func BindGlobalFlags(fs *pflag.FlagSet, f *Flags) {
	f.ColorMode = ColorAuto
	fs.StringVarP(&f.ConfigPath, "config", "c", DefaultConfigPath, "Pipeline config file (.json, .yaml, .toml)")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Verbose output (overrides options.verboseLogging)")
	fs.StringVarP(&f.LogFile, "log", "l", "", "Append logs to file")
	fs.Var(&colorModeValue{&f.ColorMode}, "color", "Color output: auto | always | never")
}

// BindRunFlags registers the batch shaping and stage skip flags.
func BindRunFlags(fs *pflag.FlagSet, f *Flags) {
	f.fs = fs
	fs.IntVarP(&f.FilesPerBatch, "files-per-batch", "b", 0,
		fmt.Sprintf("Geometry files per worker invocation (%d-%d; default from config)", MinFilesPerBatch, MaxFilesPerBatch))
	fs.Float64VarP(&f.DecimateRatio, "decimate-ratio", "r", 0, "Fraction of polygons to keep (0.0-1.0; default from config)")
	fs.StringVarP(&f.Preset, "preset", "p", "", "Quality preset (ultra_high, high, medium, low, very_low)")
	fs.BoolVar(&f.SkipDispatch, "skip-dispatch", false, "Reuse existing batch artifacts instead of running batch workers")
	fs.BoolVar(&f.SkipConsolidate, "skip-consolidate", false, "Skip texture consolidation")
	fs.BoolVar(&f.OnlyMerge, "only-merge", false, "Run only the final merge (implies both skips)")
}

// Check validates flag ranges for flags the user explicitly set.
func (f *Flags) Check() error {
	if f.changed("files-per-batch") && (f.FilesPerBatch < MinFilesPerBatch || f.FilesPerBatch > MaxFilesPerBatch) {
		return fmt.Errorf("--files-per-batch must be in [%d, %d] (got %d)", MinFilesPerBatch, MaxFilesPerBatch, f.FilesPerBatch)
	}
	if f.changed("decimate-ratio") && (f.DecimateRatio < MinDecimateRatio || f.DecimateRatio > MaxDecimateRatio) {
		return fmt.Errorf("--decimate-ratio must be in [0, 1] (got %s)", formatFloat(f.DecimateRatio))
	}
	return nil
}

// Apply returns cfg with the preset (if any) and verbosity applied.
func (f *Flags) Apply(cfg Config) (Config, error) {
	if f.Preset != "" {
		var err error
		if cfg, err = cfg.WithPreset(f.Preset); err != nil {
			return cfg, err
		}
	}
	if f.Verbose {
		cfg.Options.VerboseLogging = true
	}
	return cfg, nil
}

// BatchSize returns the explicit --files-per-batch value or the config default.
func (f *Flags) BatchSize(cfg Config) int {
	if f.changed("files-per-batch") {
		return f.FilesPerBatch
	}
	return cfg.Processing.DefaultFilesPerBatch
}

// Ratio returns the explicit --decimate-ratio value or the config default.
func (f *Flags) Ratio(cfg Config) float64 {
	if f.changed("decimate-ratio") {
		return f.DecimateRatio
	}
	return cfg.Processing.DefaultDecimateRatio
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// pflag.Value adapter so ColorMode can be used with fs.Var.

type colorModeValue struct{ p *ColorMode }

func (c *colorModeValue) String() string { return string(*c.p) }
func (c *colorModeValue) Type() string   { return "mode" }
func (c *colorModeValue) Set(s string) error {
	switch strings.ToLower(s) {
	case "auto":
		*c.p = ColorAuto
	case "always":
		*c.p = ColorAlways
	case "never":
		*c.p = ColorNever
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", s)
	}
	return nil
}
