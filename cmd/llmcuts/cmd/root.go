package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eternnoir/llmcuts/pkg/config"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

var (
	cfgFile string

	// appConfig is loaded once per invocation by loadAppConfig
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "llmcuts",
	Short: "Find clip-worthy cuts in long videos with Whisper and an LLM",
	Long: `llmcuts turns long-form video into a list of suggested clips.

It extracts the audio with FFmpeg, transcribes it with the OpenAI Whisper API
or a local whisper CLI, asks an LLM for the topics in the talk and then for
timestamped cuts, and caches every step by the content hash of the video.
Cuts can be exported as individual clips.

Features:
- Content-hash cache: renamed or copied videos are never reprocessed
- Hosted or local transcription with model fallback and chunking
- Two-phase LLM analysis (topics, then cuts) with model fallback
- Manual cut lists in "HH:MM:SS - HH:MM:SS - title - description" form
- Clip export with quality presets
- Watch folders for hands-off processing`,
	SilenceUsage:      true,
	PersistentPreRunE: loadAppConfig,
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.llmcuts.yaml or ./.llmcuts.yaml)")
	flags.String("api-key", "", "OpenAI API key")
	flags.String("base-url", "", "OpenAI-compatible API base URL")
	flags.String("model", "", "default chat model (e.g. gpt-4o)")
	flags.String("cache-dir", "", "cache directory")
	flags.String("prompts-dir", "", "prompt template directory")
	flags.Bool("verbose", false, "verbose output (same as --log-level debug)")

	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("log-output", "stderr", "log output (stdout, stderr, file path)")
	flags.Bool("log-no-color", false, "disable colored log output")
	flags.Bool("log-caller", false, "include caller information in logs")

	bind := map[string]string{
		"openai.api_key":    "api-key",
		"openai.base_url":   "base-url",
		"llm.default_model": "model",
		"cache.dir":         "cache-dir",
		"prompts.dir":       "prompts-dir",
		"logging.level":     "log-level",
		"logging.format":    "log-format",
		"logging.output":    "log-output",
		"logging.no_color":  "log-no-color",
		"logging.caller":    "log-caller",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// loadAppConfig reads .env, the config file, environment and flags, then
// initializes the logger
func loadAppConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	loader := config.NewLoaderWithViper(viper.GetViper(), cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("Loaded configuration file")
	}

	appConfig = cfg
	return nil
}

// buildComponents constructs the pipeline stack from the loaded config
func buildComponents() (*pipeline.Components, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return pipeline.Build(appConfig)
}
