// Package logging builds the process logger: a zap core exposed through
// the standard library's *slog.Logger so that library packages depend on
// log/slog only.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoder of the process logger.
type Config struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string `env:"LEVEL" envDefault:"info" yaml:"level" json:"level"`

	// Dev switches to the human readable console encoder.
	Dev bool `env:"DEV" envDefault:"false" yaml:"dev" json:"dev"`
}

// levelFromString parses a level name case-insensitively.
func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Core returns the zap core for cfg writing to w. Production cores encode
// JSON with ISO8601 timestamps; development cores use the console
// encoder.
func Core(cfg Config, w io.Writer) zapcore.Core {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), lvl)
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl)
}

// FromCore wraps an existing zap core as a *slog.Logger named name.
func FromCore(core zapcore.Core, name string) *slog.Logger {
	return slog.New(zapslog.NewHandler(core,
		zapslog.WithName(name),
		zapslog.WithCaller(true),
		zapslog.AddStacktraceAt(slog.LevelError),
	))
}

// New builds the process logger writing to stdout. The returned sync
// function flushes buffered entries and should be deferred by main.
func New(cfg Config, name string) (*slog.Logger, func() error) {
	core := Core(cfg, os.Stdout)
	return FromCore(core, name), core.Sync
}

// OrDefault returns l, or slog.Default() when l is nil. Constructors
// call it on optional Logger fields so a zero config still logs.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
