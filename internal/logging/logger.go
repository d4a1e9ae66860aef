// Package logging provides the leveled console/file logger used by every
// stage. It keeps a printf-style API (Info, Success, Warn, Error, Debug) on
// top of a zap core so that stage code can attach structured fields with
// [Logger.With].
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/backmassage/meshbatch/internal/config"
	"github.com/backmassage/meshbatch/internal/term"
)

// Options selects verbosity, color and the optional file sink.
type Options struct {
	Verbose bool
	Color   config.ColorMode
	File    string // Appended to when non-empty.
}

// Logger is a leveled logger. The zero value is not usable; construct with
// [New], [NewFromCore] or [Nop].
type Logger struct {
	sugar *zap.SugaredLogger
	file  *os.File
}

// New builds a console logger (stdout for info/warn, stderr for errors) and,
// if opts.File is set, an append-only plain-text file sink.
func New(opts Options) (*Logger, error) {
	term.Configure(opts.Color)

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	enabled := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level })
	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l < zapcore.ErrorLevel })
	errs := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l >= zapcore.ErrorLevel })

	console := zapcore.NewConsoleEncoder(encoderConfig(term.Enabled()))
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stdout), below),
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), errs),
	}

	l := &Logger{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		plain := zapcore.NewConsoleEncoder(encoderConfig(false))
		cores = append(cores, zapcore.NewCore(plain, zapcore.AddSync(f), enabled))
	}

	l.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// NewFromCore wraps an existing zap core, e.g. zaptest/observer in tests.
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{sugar: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	level := zapcore.CapitalLevelEncoder
	if color {
		level = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		MessageKey:       "M",
		StacktraceKey:    zapcore.OmitKey,
		CallerKey:        zapcore.OmitKey,
		FunctionKey:      zapcore.OmitKey,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      level,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
}

// Close flushes buffered entries and closes the log file if one was opened.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// With returns a child logger that adds the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Success logs at INFO level, tagged result=ok.
func (l *Logger) Success(format string, args ...interface{}) {
	l.sugar.With("result", "ok").Infof(format, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs at ERROR level (stderr).
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Debug logs at DEBUG level; dropped unless the logger was built verbose.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}
