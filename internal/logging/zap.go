package logging

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
)

// ZapLogger adapts zap's sugared logger to Logger. The context is accepted
// for interface parity and otherwise ignored. Credential keys are redacted
// and slog.LogValuer values are resolved, so both backends log a value the
// same way.
type ZapLogger struct {
	l *zap.SugaredLogger
}

func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l.Sugar()}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, args ...any) {
	z.l.Debugw(msg, zapArgs(args)...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, args ...any) {
	z.l.Infow(msg, zapArgs(args)...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, args ...any) {
	z.l.Warnw(msg, zapArgs(args)...)
}

func (z *ZapLogger) Error(_ context.Context, msg string, args ...any) {
	z.l.Errorw(msg, zapArgs(args)...)
}

func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{l: z.l.With(zapArgs(args)...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error { return z.l.Sync() }

// zapArgs rewrites key/value pairs. Anything that is not a string key with a
// value after it (a zap.Field, a dangling key) is passed through for zap to
// handle.
func zapArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			out = append(out, args[i])
			continue
		}
		out = append(out, key, zapValue(key, args[i+1]))
		i++
	}
	return out
}

func zapValue(key string, v any) any {
	if Sensitive(key) {
		return Redacted
	}
	switch x := v.(type) {
	case slog.LogValuer:
		return fromSlog(x.LogValue())
	case slog.Value:
		return fromSlog(x)
	}
	return v
}

func fromSlog(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		m := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			if Sensitive(a.Key) {
				m[a.Key] = Redacted
				continue
			}
			m[a.Key] = fromSlog(a.Value)
		}
		return m
	case slog.KindDuration:
		return v.Duration().String()
	}
	return v.Any()
}
