package logger

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Slog returns a *slog.Logger that writes through l.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&slogHandler{logger: l})
}

type slogHandler struct {
	logger *Logger
	group  string
}

func toLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	}
	return LevelDebug
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toLevel(level) >= h.logger.level
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]Field, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.field(a))
		return true
	})
	caller := ""
	if h.logger.addCaller && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		caller = shortCaller(frame.File, frame.Line)
	}
	h.logger.write(toLevel(r.Level), r.Message, caller, fields)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]Field, 0, len(attrs))
	for _, a := range attrs {
		fields = append(fields, h.field(a))
	}
	return &slogHandler{logger: h.logger.With(fields...), group: h.group}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &slogHandler{logger: h.logger, group: group}
}

func (h *slogHandler) field(a slog.Attr) Field {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return Duration(key, v.Duration())
	case slog.KindTime:
		return Field{Key: key, Value: v.Time().Format(time.RFC3339Nano)}
	case slog.KindGroup:
		m := make(map[string]any, len(v.Group()))
		for _, ga := range v.Group() {
			m[ga.Key] = ga.Value.Resolve().Any()
		}
		return Field{Key: key, Value: m}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return Field{Key: key, Value: err.Error()}
		}
		if s, ok := v.Any().(interface{ String() string }); ok {
			return Field{Key: key, Value: s.String()}
		}
	}
	return Field{Key: key, Value: v.Any()}
}
