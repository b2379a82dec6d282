package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/logger"
	"github.com/spigell/emotion-tracker/internal/syncer"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge the persisted emotion summary into the interview feedback record",
	Run: func(cmd *cobra.Command, _ []string) {
		syncSummary(cmd)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	syncCmd.Flags().Bool("settle", false, "wait the configured settle delay before reading the summary")
}

func syncSummary(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	summaries, err := newSummaryStore(config.Store, logger)
	if err != nil {
		logger.Fatal("creating summary store", zap.Error(err))
	}

	records, err := newFeedbackStore(config.Feedback, logger)
	if err != nil {
		logger.Fatal("creating feedback store", zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Merge the emotion summary of %s into its feedback record?", config.InterviewID),
			Items: []string{PromptYes, PromptNo},
		}

		_, answer, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if answer != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	settle := config.Sync.SettleDelay
	if wait, _ := cmd.Flags().GetBool("settle"); !wait {
		settle = 0
	}

	coordinator := syncer.New(summaries, records, settle, logger, nil)

	err = coordinator.Sync(ctx, config.InterviewID)
	switch {
	case err == nil:
		logger.Info("emotion summary synced")
	case errors.Is(err, syncer.ErrNoRecord), errors.Is(err, syncer.ErrNoSummary), errors.Is(err, syncer.ErrEmptySummary):
		logger.Info("nothing to sync", zap.String("reason", err.Error()))
	default:
		logger.Fatal("syncing emotion summary", zap.Error(err))
	}
}
