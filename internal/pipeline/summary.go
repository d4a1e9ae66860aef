package pipeline

import (
	"github.com/backmassage/meshbatch/internal/display"
	"github.com/backmassage/meshbatch/internal/logging"
)

// LogSummary prints the end-of-run report: one line per stage, its
// warnings, and the terminal status.
func LogSummary(log *logging.Logger, run *Run) {
	log.Info("=== Summary (run %s) ===", run.ID)
	for _, st := range run.Stages {
		line := display.StageLine(string(st.Stage), st.Status.String(), st.Elapsed)
		switch st.Stage {
		case StageConsolidate:
			if st.Status != StageSkipped {
				line += display.Counts("moved", st.Moved, "duplicates", st.Skipped, "renamed", st.Renamed, "errors", st.Errored)
			}
		case StageDispatch, StageMerge:
			if st.Status != StageSkipped {
				line += display.Counts("completed", st.Completed, "failed", st.Failed, "artifacts", st.Produced)
			}
		}
		log.Info("%s", line)
		for _, w := range st.Warnings {
			log.Warn("  %s", w)
		}
	}

	switch run.Status {
	case Success:
		log.Success("Done in %s: %s", display.FormatDuration(run.Elapsed), artifactLabel(run))
	case PartialSuccess:
		log.Warn("Finished with failures in %s: %s", display.FormatDuration(run.Elapsed), artifactLabel(run))
	case Cancelled:
		log.Warn("Cancelled after %s", display.FormatDuration(run.Elapsed))
	case Failed:
		log.Error("Failed after %s: %v", display.FormatDuration(run.Elapsed), run.Err)
	}
}

func artifactLabel(run *Run) string {
	if run.Artifact != "" {
		return run.Artifact
	}
	return "no merge"
}
