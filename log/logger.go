/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides the structured logger used by the admission engine.
// It is a thin layer over logf with configurable output, format and file rotation.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a single key-value pair of a log entry.
type Field = logf.Field

// LogFunc logs a message at a bound level.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes buffered entries and stops the logger.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error   = logf.Error
	String  = logf.String
	Strings = logf.Strings
	Int     = logf.Int
	Int64   = logf.Int64
	Uint64  = logf.Uint64
	Bool    = logf.Bool
	Time    = logf.Time
	Any     = logf.Any
)

// FieldLogger writes entries in a structured format.
type FieldLogger interface {
	With(...Field) FieldLogger
	WithLevel(level Level) FieldLogger
	AtLevel(Level, func(LogFunc))

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Infof(string, ...interface{})
}

// LogfAdapter adapts logf.Logger to FieldLogger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates a logger writing to the configured output.
// The returned CloseFunc must be called to flush the entries.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	w := openOutput(cfg)
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, w),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(toLogfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.Node != "" {
		logger = logger.With(logf.String("node", cfg.Node))
	}
	if cfg.AddCaller {
		// The adapter adds one frame.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{logger}, CloseFunc(closeFunc)
}

// With returns a logger with additional fields.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// WithLevel returns a logger with an additional level check. Only raising the level has an effect.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{l.Logger.WithLevel(toLogfLevel(level))}
}

// AtLevel calls fn only if the level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(LogFunc)) {
	l.Logger.AtLevel(toLogfLevel(level), fn)
}

// Debug logs at "debug" level.
func (l *LogfAdapter) Debug(msg string, fs ...Field) { l.Logger.Debug(msg, fs...) }

// Info logs at "info" level.
func (l *LogfAdapter) Info(msg string, fs ...Field) { l.Logger.Info(msg, fs...) }

// Warn logs at "warn" level.
func (l *LogfAdapter) Warn(msg string, fs ...Field) { l.Logger.Warn(msg, fs...) }

// Error logs at "error" level.
func (l *LogfAdapter) Error(msg string, fs ...Field) { l.Logger.Error(msg, fs...) }

// Infof logs a formatted message at "info" level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) {
	l.AtLevel(LevelInfo, func(logFunc LogFunc) {
		logFunc(fmt.Sprintf(format, args...))
	})
}

func toLogfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func openOutput(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputStderr:
		return os.Stderr
	case OutputFile:
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, cfg.Node),
			MaxSize:    int(cfg.File.Rotation.MaxSize / (1024 * 1024)),
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		}
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:    &noColor,
			EncodeTime: logf.RFC3339NanoTimeEncoder,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		FieldKeyTime: "time",
	}))
}

// expandFilePath substitutes {{pid}} and {{node}} placeholders.
func expandFilePath(path, node string) string {
	return strings.NewReplacer("{{pid}}", strconv.Itoa(os.Getpid()), "{{node}}", node).Replace(path)
}
