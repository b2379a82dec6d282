package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/capture"
	"github.com/spigell/emotion-tracker/internal/lifecycle"
	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/metrics"
	"github.com/spigell/emotion-tracker/internal/server"
	"github.com/spigell/emotion-tracker/internal/syncer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture pipeline for one interview session",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("start", "s", false, "start capturing immediately instead of waiting for a session start signal")
	runCmd.Flags().StringP("listen", "l", "", "control server address (default :8085)")
	runCmd.Flags().String("presence-file", "", "poll this file as the session presence indicator")

	viper.BindPFlag("capture.auto-start", runCmd.Flags().Lookup("start"))
	viper.BindPFlag("listen", runCmd.Flags().Lookup("listen"))
	viper.BindPFlag("sync.presence-file", runCmd.Flags().Lookup("presence-file"))
}

// run is the main command for the cli.
func run(_ *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the emotion-tracker",
		zap.String("version", version),
		zap.String("interview_id", config.InterviewID),
	)

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	m := metrics.New()

	summaries, err := newSummaryStore(config.Store, logger)
	if err != nil {
		logger.Fatal("creating summary store", zap.Error(err))
	}

	records, err := newFeedbackStore(config.Feedback, logger)
	if err != nil {
		logger.Fatal("creating feedback store", zap.Error(err))
	}

	analyzer, err := newAnalyzer(ctx, config.Inference, logger)
	if err != nil {
		logger.Fatal("creating inference client", zap.Error(err),
			zap.String("hint", "set EMOTION_SERVICE_URL or inference.http.url, or switch inference.provider to gemini"),
		)
	}

	provider, err := newProvider(config.Capture.Device)
	if err != nil {
		logger.Fatal("creating capture device", zap.Error(err))
	}

	controller := capture.New(config.InterviewID, capture.Deps{
		Provider: provider,
		Analyzer: analyzer,
		Store:    summaries,
		Logger:   logger,
		Metrics:  m,
	}, captureOptions(config.Capture))

	coordinator := syncer.New(summaries, records, config.Sync.SettleDelay, logger, m)
	hooks := lifecycle.NewHooks(config.InterviewID, controller, coordinator, logger)

	var wg sync.WaitGroup

	srv := server.New(ctx, server.Config{
		InterviewID: config.InterviewID,
		Lifecycle:   hooks,
		Capture:     controller,
		Summaries:   summaries,
		Metrics:     m,
		Logger:      logger,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, config.Listen); err != nil {
			logger.Error("control server stopped", zap.Error(err))
		}
	}()

	if config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveMetrics(ctx, config.MetricsAddr, m, logger)
		}()
	}

	if config.Sync.PresenceFile != "" {
		poller := lifecycle.NewPoller(lifecycle.FileExists(config.Sync.PresenceFile), config.Sync.PollInterval, hooks, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("presence poller stopped", zap.Error(err))
			}
		}()
	}

	if config.Capture.AutoStart {
		hooks.OnStart(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", "signal received"))

	wg.Wait()

	// A sync interrupted by the signal must release its guard first.
	coordinator.Wait()

	// The controller has already released the device on cancellation. Ending
	// the session here makes sure the last checkpoint reaches the feedback record.
	if controller.LastStatus().State != capture.Idle {
		hooks.OnEnd(context.WithoutCancel(ctx))
		coordinator.Wait()
	}

	logger.Info("exiting", zap.Int("samples", controller.LastStatus().Samples))
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func redacted(config *Config) Config {
	out := *config
	if out.Inference.Gemini != nil {
		gc := *out.Inference.Gemini
		if gc.APIKey != "" {
			gc.APIKey = "***"
		}
		out.Inference.Gemini = &gc
	}
	return out
}
