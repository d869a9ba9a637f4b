// Package log builds the zap loggers shared by netmesh components and carries
// request scoped fields through a context.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

// Encodings accepted by New.
const (
	ConsoleEncoding = "console"
	JSONEncoding    = "json"
)

// New creates the root logger with a level that can be changed at runtime.
func New(name string, level zap.AtomicLevel, encoding string) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	switch encoding {
	case "", ConsoleEncoding:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case JSONEncoding:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log encoding %q", encoding)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(logWriter), level)
	return zap.New(core).Named(name), nil
}

// ParseLevel parses a textual level such as "info" or "DEBUG".
func ParseLevel(text string) (zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(text)); err != nil {
		return lvl, fmt.Errorf("parse log level %q: %w", text, err)
	}
	return lvl, nil
}

// Module returns a named child of logger that logs at its own level,
// independently of the level of the parent.
func Module(logger *zap.Logger, name string, level zap.AtomicLevel) *zap.Logger {
	return logger.Named(name).WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &coreWithLevel{Core: core, lvl: level}
	}))
}

type coreWithLevel struct {
	zapcore.Core
	lvl zap.AtomicLevel
}

func (c *coreWithLevel) Enabled(level zapcore.Level) bool {
	return c.lvl.Enabled(level)
}

func (c *coreWithLevel) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.lvl.Enabled(e.Level) {
		return ce
	}
	return ce.AddCore(e, c.Core)
}

func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{Core: c.Core.With(fields), lvl: c.lvl}
}
