// Package logging builds the zap loggers used by the HapTalk binaries.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where a logger writes.
type Options struct {
	// Path is the JSON log file. Empty disables the file sink.
	Path string
	// Console tees human-readable output to stderr.
	Console bool
	// Debug lowers the level from info to debug.
	Debug bool

	Component string
	Profile   string
}

// New creates a zap logger per opts. Component, profile and PID are included
// as initial fields when set.
func New(opts Options) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level))
	}
	if opts.Console {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	fields := []zap.Field{zap.Int("pid", os.Getpid())}
	if opts.Component != "" {
		fields = append(fields, zap.String("component", opts.Component))
	}
	if opts.Profile != "" {
		fields = append(fields, zap.String("profile", opts.Profile))
	}
	return zap.New(zapcore.NewTee(cores...), zap.Fields(fields...)), nil
}
