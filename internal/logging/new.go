package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the backend, encoding, level and sink of the process logger.
type Options struct {
	Backend    string    // "slog" (default) or "zap"
	Format     string    // "json" (default) or "text"
	Level      string    // debug, info, warn, error
	File       string    // empty means stdout
	Output     io.Writer // overrides File and stdout when set
	MaxSizeMB  int
	MaxBackups int
}

// New builds the process logger. The returned close func flushes and
// releases the sink and must be called on shutdown.
func New(opts Options) (Logger, func() error, error) {
	w, closeSink := sink(opts)

	switch strings.ToLower(opts.Backend) {
	case "", "slog":
		var level slog.Level
		if err := level.UnmarshalText([]byte(orDefault(opts.Level, "info"))); err != nil {
			_ = closeSink()
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		hopts := &slog.HandlerOptions{Level: level, ReplaceAttr: RedactAttr}
		var h slog.Handler
		if strings.EqualFold(opts.Format, "text") {
			h = slog.NewTextHandler(w, hopts)
		} else {
			h = slog.NewJSONHandler(w, hopts)
		}
		return NewSlogLogger(slog.New(h)), closeSink, nil

	case "zap":
		level, err := zapcore.ParseLevel(orDefault(opts.Level, "info"))
		if err != nil {
			_ = closeSink()
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if strings.EqualFold(opts.Format, "text") {
			enc = zapcore.NewConsoleEncoder(encCfg)
		} else {
			enc = zapcore.NewJSONEncoder(encCfg)
		}
		zl := NewZapLogger(zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)))
		return zl, func() error {
			_ = zl.Sync()
			return closeSink()
		}, nil
	}

	_ = closeSink()
	return nil, nil, fmt.Errorf("unknown log backend %q", opts.Backend)
}

func sink(opts Options) (io.Writer, func() error) {
	if opts.Output != nil {
		return opts.Output, func() error { return nil }
	}
	if opts.File == "" {
		return os.Stdout, func() error { return nil }
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefaultInt(opts.MaxSizeMB, 100),
		MaxBackups: orDefaultInt(opts.MaxBackups, 5),
		Compress:   true,
	}
	return lj, lj.Close
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
