package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger. json switches the console encoder to
// json, debug lowers the level to debug.
func New(json bool, debug bool) (*zap.Logger, error) {
	cfg := config(json, debug)
	return cfg.Build()
}

// config keeps logs on stderr: stdout carries command output such as summary reports.
func config(json bool, debug bool) zap.Config {
	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}

	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "step",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			// Tick intervals and settle delays read better as "2.5s".
			EncodeDuration: zapcore.StringDurationEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	// Sampling would drop repeated per-tick debug lines.
	if !debug {
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	return cfg
}
