// Package term resolves whether ANSI colors should be used on the console.
//
// The result is stored once at startup by [Configure] because both logging
// (level colors) and display (banner, summary) need it.
package term

import (
	"os"
	"strings"

	"github.com/backmassage/meshbatch/internal/config"
)

var enabled bool

// Configure resolves the color mode and records the result. Call once during
// startup (from [logging.New]).
func Configure(mode config.ColorMode) {
	enabled = resolve(mode)
}

// Enabled reports whether ANSI colors are currently active.
func Enabled() bool { return enabled }

// Paint wraps s in the given SGR code when colors are enabled.
func Paint(code, s string) string {
	if !enabled || s == "" {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// SGR codes used by the display package.
const (
	Bold    = "1"
	Red     = "1;91"
	Green   = "1;92"
	Yellow  = "1;93"
	Magenta = "1;95"
	Cyan    = "1;96"
)

// resolve determines whether colors should be enabled based on the configured
// mode, TTY detection, and the NO_COLOR env var (https://no-color.org).
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
