// Package applog wires the process logger: a zap core with slog as the
// front end, so packages can log through log/slog or the helpers here.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level, encoding and destination.
type Config struct {
	Level   string
	Format  string // text | json
	Service string // stamped on every entry when set
	Output  io.Writer
}

var (
	mu      sync.Mutex
	current *zap.Logger
)

// Init replaces the process logger. It may be called again once the real
// configuration is known; the previous core is flushed first.
func Init(cfg Config) {
	level := ParseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	logger := zap.New(zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), level),
		zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}

	mu.Lock()
	prev := current
	current = logger
	mu.Unlock()
	if prev != nil {
		_ = prev.Sync()
	}

	zap.ReplaceGlobals(logger)
	slog.SetDefault(slog.New(slogzap.Option{
		Level:  slogLevel(level),
		Logger: logger,
	}.NewZapHandler()))

	// stray log.Printf calls from dependencies end up in the same stream
	log.SetOutput(out)
	log.SetFlags(0)
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(format, "json") {
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

// ParseLevel accepts zap level names in any case; anything else is info.
func ParseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func slogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Sync flushes buffered entries.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		_ = current.Sync()
	}
}

// With returns an slog logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

func Warnf(format string, args ...any) { slog.Warn(fmt.Sprintf(format, args...)) }

// Fatalf logs at error level, flushes and exits with status 1.
func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	Sync()
	os.Exit(1)
}
