package cmd

import (
	"log"
	"time"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/ai/gemini"
	"github.com/spigell/job-buddy/internal/ai/openai"
	"github.com/spigell/job-buddy/internal/logger"
	"github.com/spigell/job-buddy/internal/pipeline"
)

const (
	app = "job-buddy"

	defaultHistoryFile = "runs_log.jsonl"
)

type Config struct {
	HistoryFile  string           `mapstructure:"history-file"`
	OpenAI       OpenAIConfig     `mapstructure:"openai"`
	Gemini       GeminiConfig     `mapstructure:"gemini"`
	HeadHunter   HeadHunterConfig `mapstructure:"headhunter"`
	Retry        ai.RetryPolicy   `mapstructure:"retry"`
	Models       pipeline.Models  `mapstructure:"models"`
	Pricing      ai.PriceTable    `mapstructure:"pricing"`
	MaxLogLength int              `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKeyFile        string        `mapstructure:"api-key-file"`
	BaseURL           string        `mapstructure:"base-url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests-per-minute"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type HeadHunterConfig struct {
	TokenFile string `mapstructure:"token-file"`
}

func defaultConfig() *Config {
	return &Config{
		HistoryFile: defaultHistoryFile,
		OpenAI: OpenAIConfig{
			BaseURL: openai.DefaultBaseURL,
			Timeout: openai.DefaultTimeout,
		},
		Gemini:       GeminiConfig{Model: gemini.DefaultModel},
		Retry:        ai.DefaultRetryPolicy(),
		Models:       pipeline.DefaultModels(),
		MaxLogLength: 200,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HistoryFile, validation.Required),
		validation.Field(&c.Models),
		validation.Field(&c.MaxLogLength, validation.Min(0)),
		validation.Field(&c.OpenAI),
	)
}

func (c OpenAIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
	)
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-buddy tailors your résumé and cover letter to a job description and keeps a log of every run",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"history-file":          "JOB_BUDDY_HISTORY_FILE",
		"openai.api-key-file":   "OPENAI_API_KEY_FILE",
		"openai.base-url":       "OPENAI_BASE_URL",
		"gemini.api-key-file":   "GEMINI_API_KEY_FILE",
		"headhunter.token-file": "HH_TOKEN_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-buddy.yaml in current directory)")
	rootCmd.PersistentFlags().String("history-file", "", "path of the run log (default is runs_log.jsonl)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("history-file", rootCmd.PersistentFlags().Lookup("history-file"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every setting has a default, so only an explicitly requested config must exist.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	config := defaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if config.HistoryFile == "" {
		config.HistoryFile = defaultHistoryFile
	}
	config.Pricing = ai.DefaultPrices().Merge(config.Pricing)

	if err := config.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid config"), "check "+app+".yaml and the environment")
	}
	return config, nil
}

// setup builds the logger and the validated config every command starts with.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err), zap.Strings("hint", errors.GetAllHints(err)))
	}

	logger.Debug("starting with config",
		zap.String("config_file", viper.ConfigFileUsed()),
		zap.String("history_file", config.HistoryFile),
		zap.String("openai_base_url", config.OpenAI.BaseURL),
		zap.String("gemini_model", config.Gemini.Model),
		zap.Int("max_retries", config.Retry.MaxRetries),
	)

	return logger, config
}
