package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		json         bool
		debug        bool
		wantEncoding string
		wantLevel    zapcore.Level
		wantSampling bool
	}{
		{name: "console info", wantEncoding: "console", wantLevel: zapcore.InfoLevel, wantSampling: true},
		{name: "json info", json: true, wantEncoding: "json", wantLevel: zapcore.InfoLevel, wantSampling: true},
		{name: "debug keeps every line", debug: true, wantEncoding: "console", wantLevel: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config(tt.json, tt.debug)

			if cfg.Encoding != tt.wantEncoding {
				t.Fatalf("expected encoding %q, got %q", tt.wantEncoding, cfg.Encoding)
			}
			if cfg.Level.Level() != tt.wantLevel {
				t.Fatalf("expected level %s, got %s", tt.wantLevel, cfg.Level.Level())
			}
			if (cfg.Sampling != nil) != tt.wantSampling {
				t.Fatalf("expected sampling %v, got %+v", tt.wantSampling, cfg.Sampling)
			}
			if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stderr" {
				t.Fatalf("expected logs on stderr, got %v", cfg.OutputPaths)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	logger, err := New(true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}
