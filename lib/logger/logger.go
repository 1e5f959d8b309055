// Package logger builds the zap loggers used by the services. Logs go to the console and, when a file is given, to a
// size rotated log file.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config sets the level ("debug", "info", "warn" or "error"), the encoding ("console" or "json") and the optional
// rotated log file.
type Config struct {
	Level      string `json:"level" mapstructure:"level"`
	Encoding   string `json:"encoding" mapstructure:"encoding"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    int    `json:"maxSize" mapstructure:"maxSize"` // megabytes
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
	MaxAge     int    `json:"maxAge" mapstructure:"maxAge"` // days
}

// New returns a sugared logger for the given configuration.
func New(c Config) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("logger: bad level %q: %w", c.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch c.Encoding {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logger: unknown encoding %q", c.Encoding)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))}
	if c.File != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zap.NewAtomicLevelAt(level)))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar(), nil
}

// Nop returns a logger that discards everything, the default of library components.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
