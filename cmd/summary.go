package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/emotion-tracker/internal/emotion"
	"github.com/spigell/emotion-tracker/internal/logger"
)

const topEmotions = 5

type summaryReport struct {
	InterviewID      string               `json:"interviewId" yaml:"interviewId"`
	ConfidenceRating string               `json:"confidenceRating" yaml:"confidenceRating"`
	TopEmotions      []emotion.LabelCount `json:"topEmotions" yaml:"topEmotions"`
	Summary          emotion.Summary      `json:"summary" yaml:"summary"`
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the persisted emotion summary of an interview",
	Run: func(cmd *cobra.Command, _ []string) {
		summary(cmd)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
}

func summary(cmd *cobra.Command) {
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

	stored, err := summaries.Get(emotion.SessionKey(config.InterviewID))
	if err != nil {
		logger.Fatal("reading summary", zap.Error(err))
	}
	if stored == nil {
		logger.Info("exiting", zap.String("reason", "no summary persisted for interview"))
		return
	}

	report := summaryReport{
		InterviewID:      config.InterviewID,
		ConfidenceRating: emotion.ConfidenceRating(stored.AvgConfidence),
		TopEmotions:      stored.TopDominant(topEmotions),
		Summary:          *stored,
	}

	format, _ := cmd.Flags().GetString("output")
	if err := writeReport(cmd.OutOrStdout(), format, report); err != nil {
		logger.Fatal("printing summary", zap.Error(err))
	}
}

func writeReport(w io.Writer, format string, report summaryReport) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
