package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how verbosely a logger writes.
type Options struct {
	Level string
	// File is appended to in addition to stderr when set.
	File string
}

func NewLogger(name string) (*zap.Logger, error) {
	logger, _, err := Build(name, Options{})
	return logger, err
}

// Build returns the logger together with its level handle so the level can
// be changed at runtime (config reload).
func Build(name string, opts Options) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	atom := zap.NewAtomicLevelAt(level)

	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	if file := strings.TrimSpace(opts.File); file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	if name != "" {
		logger = logger.Named(name)
	}
	return logger, atom, nil
}

// ParseLevel accepts zap level names and the java.util.logging names older
// config files were written with.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "fine", "finer", "finest", "all":
		return zapcore.DebugLevel, nil
	case "info", "config", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error", "severe", "off":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (use: debug|info|warn|error)", level)
	}
}
