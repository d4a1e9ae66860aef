package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/backmassage/meshbatch/internal/display"
	"github.com/backmassage/meshbatch/internal/monitor"
	"github.com/backmassage/meshbatch/internal/term"
)

const timeLayout = "2006-01-02 15:04:05"

func newStatusCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List batch artifacts and logs; --watch streams changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, nil); err != nil {
				return err
			}
			dir := a.cfg.BatchOutputDir()
			ls, err := monitor.List(dir)
			if err != nil {
				return err
			}
			printListing(os.Stdout, ls)
			if !watch {
				return nil
			}

			a.log.Info("Watching %s (Ctrl-C to stop)", dir)
			return monitor.Watch(cmd.Context(), dir, func(ev monitor.Event) {
				if ev.Op == monitor.Removed {
					a.log.Info("%-8s %s", ev.Op, ev.Entry.Name)
					return
				}
				a.log.Info("%-8s %s (%s, %s)", ev.Op, ev.Entry.Name, ev.Entry.Kind, display.FormatBytes(ev.Entry.Size))
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and report files as they appear")
	return cmd
}

func printListing(w io.Writer, ls monitor.Listing) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED\tKIND")
	for _, e := range ls.Entries {
		kind := e.Kind.String()
		switch {
		case e.Errors > 0:
			kind = term.Paint(term.Red, fmt.Sprintf("log (%d errors)", e.Errors))
		case e.Kind == monitor.Artifact:
			kind = term.Paint(term.Green, kind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, display.FormatBytes(e.Size), e.Modified.Format(timeLayout), kind)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s: %d files, %d artifacts, %d logs (%d with errors), %d archived, %s\n",
		ls.Dir, ls.Total(), ls.Artifacts, ls.Logs, ls.ErrorLogs, ls.Archives, display.FormatBytes(ls.TotalSize))
}
