package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/capture"
	"github.com/spigell/emotion-tracker/internal/device"
	"github.com/spigell/emotion-tracker/internal/feedback"
	"github.com/spigell/emotion-tracker/internal/inference"
	"github.com/spigell/emotion-tracker/internal/inference/gemini"
	"github.com/spigell/emotion-tracker/internal/inference/service"
	"github.com/spigell/emotion-tracker/internal/secrets"
	"github.com/spigell/emotion-tracker/internal/store"
)

const geminiAPIKeyEnv = "GEMINI_API_KEY"

func newSummaryStore(config StoreConfig, logger *zap.Logger) (store.Store, error) {
	if config.Dir == "" {
		logger.Warn("store.dir is not set, summaries are kept in memory only")
		return store.NewMemory(), nil
	}
	fs, err := store.NewFile(config.Dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func newFeedbackStore(config FeedbackConfig, logger *zap.Logger) (feedback.Store, error) {
	if config.Dir == "" {
		logger.Warn("feedback.dir is not set, emotion summaries will not be synced to feedback records")
		return feedback.NewMemory(), nil
	}
	fs, err := feedback.NewFile(config.Dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func newAnalyzer(ctx context.Context, config InferenceConfig, logger *zap.Logger) (inference.Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", "http":
		client, err := service.New(config.HTTP.URL, config.HTTP.Timeout, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "gemini":
		gc := config.Gemini
		if gc == nil {
			gc = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  gc.APIKeyFile,
			Env:   geminiAPIKeyEnv,
			Value: gc.APIKey,
		})
		if err != nil {
			return nil, err
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, gc.Model)
		if err != nil {
			return nil, err
		}
		return gemini.NewAnalyzer(generator, logger, gc.Labels, gc.MaxLogLength), nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", config.Provider)
	}
}

func newProvider(config DeviceConfig) (device.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Source)) {
	case "", "pattern":
		return device.PatternProvider{}, nil
	case "directory":
		if strings.TrimSpace(config.Path) == "" {
			return nil, fmt.Errorf("capture.device.path is required for the directory source")
		}
		return device.DirectoryProvider{Path: config.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported capture source %q", config.Source)
	}
}

func captureOptions(config CaptureConfig) capture.Options {
	return capture.Options{
		Interval:        config.Interval,
		TickTimeout:     config.TickTimeout,
		CheckpointEvery: config.CheckpointEvery,
		Disabled:        config.Disabled,
		Constraints: device.Constraints{
			Facing: config.Device.Facing,
			Width:  config.Device.Width,
			Height: config.Device.Height,
		},
		Encoder: device.Encoder{
			Width:   config.Device.Width,
			Height:  config.Device.Height,
			Quality: config.Device.JPEGQuality,
		},
	}
}
