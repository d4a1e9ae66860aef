package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/backmassage/meshbatch/internal/check"
	"github.com/backmassage/meshbatch/internal/display"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report the worker executable and the state of every project folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, nil); err != nil {
				return err
			}
			display.PrintBanner(os.Stdout, version)
			if r := check.RunCheck(cmd.Context(), a.cfg, a.log); !r.OK() {
				return exitCode(exitFatal)
			}
			return nil
		},
	}
}
