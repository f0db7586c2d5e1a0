/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides the structured logger of the gateway.
// It wraps github.com/ssgreg/logf, writes JSON or text entries to stdout, stderr or a rotated file,
// and is configured by Config.
package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed key-value pair attached to an entry.
type Field = logf.Field

// CloseFunc flushes buffered entries. It must be called before the process exits.
type CloseFunc func()

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Int      = logf.Int
	Int64    = logf.Int64
	Float64  = logf.Float64
	Duration = logf.Duration
	Bool     = logf.Bool
)

// DurationIn returns the "duration" field holding val expressed in whole units.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", val.Nanoseconds()/unit.Nanoseconds())
}

// FieldLogger writes structured entries.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)
}

// LogfAdapter implements FieldLogger over logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates a logger writing to the output from cfg.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	switch cfg.Output {
	case OutputFile:
		rotated := &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(cfg.File.Rotation.MaxSize / (1024 * 1024)),
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		}
		logger, closeLogger := NewLoggerWithWriter(cfg, rotated)
		return logger, func() {
			closeLogger()
			_ = rotated.Close()
		}
	case OutputStderr:
		return NewLoggerWithWriter(cfg, os.Stderr)
	default:
		return NewLoggerWithWriter(cfg, os.Stdout)
	}
}

// NewLoggerWithWriter creates a logger writing entries to w asynchronously.
// Every entry carries the "pid" field.
func NewLoggerWithWriter(cfg *Config, w io.Writer) (FieldLogger, CloseFunc) {
	channel, closeChannel := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg.Format, w),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(logfLevel(cfg.Level), channel).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // skip LogfAdapter frame
	}
	return &LogfAdapter{logger}, CloseFunc(closeChannel)
}

func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

func (l *LogfAdapter) Debug(s string, fields ...Field) {
	l.Logger.Debug(s, fields...)
}

func (l *LogfAdapter) Info(s string, fields ...Field) {
	l.Logger.Info(s, fields...)
}

func (l *LogfAdapter) Warn(s string, fields ...Field) {
	l.Logger.Warn(s, fields...)
}

func (l *LogfAdapter) Error(s string, fields ...Field) {
	l.Logger.Error(s, fields...)
}

func logfLevel(level Level) logf.Level {
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

func newAppender(format Format, w io.Writer) logf.Appender {
	if format == FormatText {
		return logftext.NewAppender(w, logftext.EncoderConfig{EncodeTime: logf.RFC3339NanoTimeEncoder})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		FieldKeyTime: "time",
	}))
}

// expandFilePath substitutes {{pid}} and {{starttime}} in a log file path,
// so several gateway processes on one host do not share a file.
func expandFilePath(path string, startedAt time.Time) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", startedAt.Format("200601021504"),
	).Replace(path)
}
