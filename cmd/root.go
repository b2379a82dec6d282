package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "emotion-tracker"
)

type Config struct {
	InterviewID string          `mapstructure:"interview-id"`
	Listen      string          `mapstructure:"listen"`
	MetricsAddr string          `mapstructure:"metrics-addr"`
	Capture     CaptureConfig   `mapstructure:"capture"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Store       StoreConfig     `mapstructure:"store"`
	Feedback    FeedbackConfig  `mapstructure:"feedback"`
	Sync        SyncConfig      `mapstructure:"sync"`
}

type CaptureConfig struct {
	Disabled        bool          `mapstructure:"disabled"`
	Interval        time.Duration `mapstructure:"interval"`
	TickTimeout     time.Duration `mapstructure:"tick-timeout"`
	CheckpointEvery int           `mapstructure:"checkpoint-every"`
	AutoStart       bool          `mapstructure:"auto-start"`
	Device          DeviceConfig  `mapstructure:"device"`
}

type DeviceConfig struct {
	Source      string `mapstructure:"source"`
	Path        string `mapstructure:"path"`
	Facing      string `mapstructure:"facing"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	JPEGQuality int    `mapstructure:"jpeg-quality"`
}

type InferenceConfig struct {
	Provider string        `mapstructure:"provider"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type HTTPConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKey       string   `mapstructure:"api-key"`
	APIKeyFile   string   `mapstructure:"api-key-file"`
	Model        string   `mapstructure:"model"`
	Labels       []string `mapstructure:"labels"`
	MaxLogLength int      `mapstructure:"max-log-length"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type FeedbackConfig struct {
	Dir string `mapstructure:"dir"`
}

type SyncConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle-delay"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	PresenceFile string        `mapstructure:"presence-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "emotion-tracker samples a candidate's facial expressions during an interview and attaches the summary to the interview feedback",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"interview-id":                  "EMOTION_INTERVIEW_ID",
		"inference.http.url":            "EMOTION_SERVICE_URL",
		"inference.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is emotion-tracker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("interview", "i", "", "interview identifier, the session key of the summary")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("interview-id", rootCmd.PersistentFlags().Lookup("interview"))
}

func setDefaults() {
	viper.SetDefault("listen", ":8085")
	viper.SetDefault("capture.interval", "2s")
	viper.SetDefault("capture.checkpoint-every", 3)
	viper.SetDefault("capture.device.source", "pattern")
	viper.SetDefault("capture.device.facing", "user")
	viper.SetDefault("capture.device.width", 640)
	viper.SetDefault("capture.device.height", 480)
	viper.SetDefault("capture.device.jpeg-quality", 60)
	viper.SetDefault("inference.provider", "http")
	viper.SetDefault("inference.http.timeout", "10s")
	viper.SetDefault("sync.settle-delay", "2.5s")
	viper.SetDefault("sync.poll-interval", "500ms")
}

func initConfig() {
	// .env is optional and only fills variables that are not set yet.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("loading .env: %v", err)
		}
	}

	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults and the environment are enough to run without a file.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.InterviewID == "" {
		return config, errors.New("interview-id is required (flag --interview or EMOTION_INTERVIEW_ID)")
	}

	return config, nil
}
