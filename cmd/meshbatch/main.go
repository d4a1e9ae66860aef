// Command meshbatch drives the glTF to FBX batch pipeline: it consolidates
// textures, runs one worker process per batch of geometry files in a bounded
// pool, and merges the batch artifacts into one final artifact.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/meshbatch/internal/config"
	"github.com/backmassage/meshbatch/internal/logging"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.1.0"
	commit  = "unknown"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFatal     = 1
	exitPartial   = 2
	exitCancelled = 130
)

// exitCode is returned by a command that has already reported its outcome
// and only needs the process to exit with a specific status.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Close()
	}
	var code exitCode
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(os.Stderr, "meshbatch: %v\n", err)
		return exitFatal
	}
}

// app carries the global flags and the per-invocation config and logger.
type app struct {
	global config.Flags
	cfg    config.Config
	log    *logging.Logger
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "meshbatch",
		Short:         "Batch glTF geometry through parallel worker processes and merge the results",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindGlobalFlags(root.PersistentFlags(), &a.global)

	root.AddCommand(
		newRunCmd(a, false),
		newRunCmd(a, true),
		newCheckCmd(a),
		newStatusCmd(a),
		newConfigCmd(),
	)
	return root, a
}

// setup loads the config document, applies run flags (when given) and
// builds the logger. A missing default config file is not an error: the
// built-in defaults plus environment overrides are used instead.
func (a *app) setup(cmd *cobra.Command, rf *config.Flags) error {
	cfg, err := config.Load(a.global.ConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return err
		}
		if cfg, err = config.FromEnv(); err != nil {
			return err
		}
	}

	f := &a.global
	if rf != nil {
		if err := rf.Check(); err != nil {
			return err
		}
		rf.Verbose = a.global.Verbose
		f = rf
	}
	if cfg, err = f.Apply(cfg); err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Verbose: cfg.Options.VerboseLogging,
		Color:   a.global.ColorMode,
		File:    a.global.LogFile,
	})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	a.cfg, a.log = cfg, log
	return nil
}
