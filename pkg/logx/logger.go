package logx

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func init() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"
}

// root is the shared, swappable zerolog logger behind a family of Loggers.
type root struct {
	zl atomic.Pointer[zerolog.Logger]
}

func newRoot(zl zerolog.Logger) *root {
	r := &root{}
	r.zl.Store(&zl)
	return r
}

func (r *root) get() *zerolog.Logger { return r.zl.Load() }

// Logger is a structured logger value. Loggers derived with With share
// their root, so a Service.Apply reaches all of them. The zero value
// discards everything.
type Logger struct {
	r      *root
	fields []Field
}

// Nop returns a logger that never writes. Unlike the zero value it does
// not report IsZero.
func Nop() Logger { return Logger{r: newRoot(zerolog.Nop())} }

// NewConsole returns a standalone human-readable logger on stdout, for CLI
// commands that run without the logging service.
func NewConsole(level string) Logger {
	return Logger{r: newRoot(build(consoleWriter(os.Stdout), level))}
}

// NewJSON returns a standalone logger writing JSON lines to w.
func NewJSON(w io.Writer, level string) Logger {
	return Logger{r: newRoot(build(w, level))}
}

func build(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

func (l Logger) IsZero() bool { return l.r == nil && len(l.fields) == 0 }

// Enabled reports whether a line at level would be written.
func (l Logger) Enabled(level Level) bool {
	if l.r == nil {
		return false
	}
	return level >= l.r.get().GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	return Logger{r: l.r, fields: append(merged, fields...)}
}

func (l Logger) Trace(msg string, fields ...Field) { l.write(LevelTrace, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

// write is only called from the level methods above, so the caller is
// always two frames up.
func (l Logger) write(level Level, msg string, fields []Field) {
	if l.r == nil {
		return
	}
	e := l.r.get().WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	apply(e, l.fields)
	apply(e, fields)
	e.Msg(msg)
}

func apply(e *zerolog.Event, fields []Field) {
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
}

var levels = map[string]Level{
	"TRACE":   LevelTrace,
	"DEBUG":   LevelDebug,
	"INFO":    LevelInfo,
	"WARN":    LevelWarn,
	"WARNING": LevelWarn,
	"ERROR":   LevelError,
}

// parseLevel maps a config level; unknown or empty means info.
func parseLevel(s string) Level {
	if lvl, ok := levels[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return LevelInfo
}

// ValidLevel reports whether s names a level. Empty is valid (info).
func ValidLevel(s string) bool {
	s = strings.TrimSpace(s)
	_, ok := levels[strings.ToUpper(s)]
	return ok || s == ""
}
