// Package logger writes one JSON object per line. Fields sit at the top
// level next to time, level, msg and caller. Slog adapts a Logger to
// log/slog so the application layer shares the same output.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else is info.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i)
		}
	}
	return LevelInfo
}

// Reserved keys. A field with one of these names is prefixed with "field.".
const (
	keyTime   = "time"
	keyLevel  = "level"
	keyMsg    = "msg"
	keyCaller = "caller"
)

// Field is a key-value pair attached to a line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field  { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Err renders err as its message under "error".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration renders d in time.Duration notation.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// RequestIDKey is the field carrying the HTTP request id.
const RequestIDKey = "request_id"

func UserID(id string) Field        { return String("user_id", id) }
func Role(role string) Field        { return String("role", role) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func StatusCode(code int) Field     { return Int("status", code) }
func Route(pattern string) Field    { return String("route", pattern) }

// Options configures a Logger.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// DefaultOptions logs info and above to stdout with callers.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// Logger is safe for concurrent use. Loggers derived with With share the
// writer and its lock.
type Logger struct {
	out       *syncWriter
	level     Level
	addCaller bool
	fields    []Field
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(p)
}

// New creates a Logger.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		out:       &syncWriter{w: opts.Output},
		level:     opts.Level,
		addCaller: opts.AddCaller,
	}
}

// Default creates a logger with DefaultOptions.
func Default() *Logger {
	return New(DefaultOptions())
}

// With returns a Logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	clone := *l
	clone.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &clone
}

// WithRequestID returns a logger tagged with the request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	caller := ""
	if l.addCaller {
		// log <- Info/Warn/... <- call site
		if _, file, line, ok := runtime.Caller(2); ok {
			caller = shortCaller(file, line)
		}
	}
	l.write(level, msg, caller, fields)
}

func shortCaller(file string, line int) string {
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) write(level Level, msg, caller string, fields []Field) {
	if level < l.level {
		return
	}

	line := make(map[string]any, 4+len(l.fields)+len(fields))
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			key := f.Key
			switch key {
			case keyTime, keyLevel, keyMsg, keyCaller:
				key = "field." + key
			}
			line[key] = f.Value
		}
	}
	line[keyTime] = time.Now().UTC().Format(time.RFC3339Nano)
	line[keyLevel] = level.String()
	line[keyMsg] = msg
	if caller != "" {
		line[keyCaller] = caller
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(line); err != nil {
		buf.Reset()
		fmt.Fprintf(&buf, `{"time":%q,"level":%q,"msg":%q,"log_error":%q}`+"\n",
			line[keyTime], level.String(), msg, err.Error())
	}
	l.out.write(buf.Bytes())
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a Default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
