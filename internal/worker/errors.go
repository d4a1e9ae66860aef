package worker

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Sentinel errors carried by failed units.
var (
	ErrExecutableNotFound = errors.New("worker executable not found")
	ErrMissingOutput      = errors.New("worker exited 0 but a declared output is missing")
	ErrTimedOut           = errors.New("worker exceeded the maximum duration")
	ErrTerminated         = errors.New("worker terminated")
)

// LaunchError reports that an invocation could not be started.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %s: %v", e.Name, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// ExitError reports a non-zero worker exit.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s exited with code %d", e.Name, e.Code) }

// Patterns used to classify worker log lines. Workers print free-form text,
// so these are heuristics for the failure summary only; the exit code is what
// decides success.
var (
	reErrorLine   = regexp.MustCompile(`(?i)\b(error|failed|exception|traceback)\b`)
	reWarningLine = regexp.MustCompile(`(?i)\b(warning|warn|not found|skipped)\b`)
)

// LogSummary counts classified lines in one worker log.
type LogSummary struct {
	Errors     int
	Warnings   int
	FirstError string
}

// IsErrorLine reports whether a worker log line looks like an error.
func IsErrorLine(line string) bool { return reErrorLine.MatchString(line) }

// IsWarningLine reports whether a worker log line looks like a warning.
func IsWarningLine(line string) bool {
	return !IsErrorLine(line) && reWarningLine.MatchString(line)
}

// ScanLog classifies every line of the log at path. A missing log yields an
// empty summary.
func ScanLog(path string) (LogSummary, error) {
	var s LogSummary
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case IsErrorLine(line):
			s.Errors++
			if s.FirstError == "" {
				s.FirstError = line
			}
		case IsWarningLine(line):
			s.Warnings++
		}
	}
	return s, sc.Err()
}
