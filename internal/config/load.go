package config

// This file implements loading the configuration document and environment
// overrides. The document format is chosen by file extension; fields absent
// from the document keep their Default() values.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// MESHBATCH_PROCESSING_MAX_PARALLEL_BLENDER_INSTANCES=8.
const EnvPrefix = "MESHBATCH"

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config format (use .json, .yaml, .yml or .toml)")

// Load reads the document at path on top of [Default], applies environment
// overrides, and resolves path fields with [Config.ResolvePaths]. The result
// is not validated; call [Config.Validate] before use.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("config path %q: %w", path, err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(resolved, data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filepath.Base(resolved), err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv returns [Default] with environment overrides applied and paths
// resolved, for when there is no config document.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays MESHBATCH_* environment variables onto cfg. Variables
// that are not set leave the corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "json":
		data, err = sonic.ConfigStd.MarshalIndent(cfg, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "toml":
		data, err = toml.Marshal(cfg)
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func decode(path string, data []byte, cfg *Config) error {
	switch format(path) {
	case "json":
		return sonic.ConfigStd.Unmarshal(data, cfg)
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	case "toml":
		return toml.Unmarshal(data, cfg)
	}
	return ErrUnsupportedFormat
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	}
	return ""
}

// ResolvePaths expands "~" and makes the project root absolute. Workers run
// with the project root as working directory while the orchestrator keeps
// its own, so every path handed across must mean the same file to both. An
// executable given as a relative path (one containing a separator) is
// resolved against the project root; a bare name is left for PATH lookup.
func (c *Config) ResolvePaths() error {
	root, err := homedir.Expand(c.Paths.ProjectRoot)
	if err != nil {
		return fmt.Errorf("paths.projectRoot: %w", err)
	}
	if root, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("paths.projectRoot: %w", err)
	}
	exe, err := homedir.Expand(c.Paths.BlenderExecutable)
	if err != nil {
		return fmt.Errorf("paths.blenderExecutable: %w", err)
	}
	if exe != "" && !filepath.IsAbs(exe) && strings.ContainsAny(exe, `/`+string(filepath.Separator)) {
		exe = filepath.Join(root, exe)
	}
	c.Paths.ProjectRoot = root
	c.Paths.BlenderExecutable = exe
	return nil
}

// BatchArgs splits Scripts.BatchArgs into the argument prefix for batch workers.
func (c Config) BatchArgs() ([]string, error) {
	return splitArgs(c.Scripts.BatchArgs)
}

// MergeArgs splits Scripts.MergeArgs into the argument prefix for the merge worker.
func (c Config) MergeArgs() ([]string, error) {
	return splitArgs(c.Scripts.MergeArgs)
}

func splitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	args, err := p.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("cannot split %q: %w", s, err)
	}
	return args, nil
}
