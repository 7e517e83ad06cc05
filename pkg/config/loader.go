package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key when read from the environment
// (openai.api_key -> LLMCUTS_OPENAI_API_KEY).
const EnvPrefix = "LLMCUTS"

// legacyEnv maps config keys to the bare variable names older setups export.
var legacyEnv = map[string]string{
	"openai.api_key":              "OPENAI_API_KEY",
	"openai.base_url":             "OPENAI_BASE_URL",
	"llm.default_model":           "DEFAULT_MODEL",
	"llm.max_completion_tokens":   "MAX_COMPLETION_TOKENS",
	"llm.reasoning_effort":        "REASONING_EFFORT",
	"llm.prefer_reasoning_models": "PREFER_REASONING_MODELS",
	"cuts.min_duration":           "MIN_CUT_DURATION",
	"cuts.max_cuts":               "MAX_CUTS",
}

var validBackends = map[string]bool{"auto": true, "api": true, "local": true}

var validQualities = map[string]bool{"original": true, "high": true, "medium": true, "low": true}

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a loader backed by a private viper instance.
func NewLoader(configPath string) *Loader {
	return NewLoaderWithViper(viper.New(), configPath)
}

// NewLoaderWithViper lets the CLI share the viper instance its flags are
// bound to.
func NewLoaderWithViper(v *viper.Viper, configPath string) *Loader {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".llmcuts")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()
	if err := l.bindLegacyEnv(); err != nil {
		return nil, err
	}

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(l.configPath == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the config file being used
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// Save writes cfg as YAML. An empty path means $HOME/.llmcuts.yaml.
func Save(cfg *Config, path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".llmcuts.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("openai", cfg.OpenAI)
	v.Set("transcribe", cfg.Transcribe)
	v.Set("llm", cfg.LLM)
	v.Set("cuts", cfg.Cuts)
	v.Set("cache", cfg.Cache)
	v.Set("prompts", cfg.Prompts)
	v.Set("export", cfg.Export)
	v.Set("watch", cfg.Watch)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateSampleConfig writes the defaults with a placeholder API key.
func CreateSampleConfig(path string) error {
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "your-api-key-here"
	return Save(cfg, path)
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()
	v := l.viper

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.timeout", d.OpenAI.Timeout)
	v.SetDefault("openai.retries", d.OpenAI.Retries)
	v.SetDefault("openai.retry_backoff", d.OpenAI.RetryBackoff)

	v.SetDefault("transcribe.backend", d.Transcribe.Backend)
	v.SetDefault("transcribe.models", d.Transcribe.Models)
	v.SetDefault("transcribe.language", "")
	v.SetDefault("transcribe.local_command", d.Transcribe.LocalCommand)
	v.SetDefault("transcribe.local_model", "")
	v.SetDefault("transcribe.local_device", d.Transcribe.LocalDevice)
	v.SetDefault("transcribe.max_upload_mb", d.Transcribe.MaxUploadMB)
	v.SetDefault("transcribe.chunk_minutes", d.Transcribe.ChunkMinutes)
	v.SetDefault("transcribe.overlap_seconds", d.Transcribe.OverlapSeconds)
	v.SetDefault("transcribe.workers", d.Transcribe.Workers)

	v.SetDefault("llm.default_model", d.LLM.DefaultModel)
	v.SetDefault("llm.reasoning_model", d.LLM.ReasoningModel)
	v.SetDefault("llm.fallback_models", d.LLM.FallbackModels)
	v.SetDefault("llm.prefer_reasoning_models", d.LLM.PreferReasoningModels)
	v.SetDefault("llm.max_completion_tokens", d.LLM.MaxCompletionTokens)
	v.SetDefault("llm.reasoning_effort", d.LLM.ReasoningEffort)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.debug_dir", "")

	v.SetDefault("cuts.min_duration", d.Cuts.MinDuration)
	v.SetDefault("cuts.max_cuts", d.Cuts.MaxCuts)
	v.SetDefault("cuts.keywords", d.Cuts.Keywords)

	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.keep_audio", d.Cache.KeepAudio)
	v.SetDefault("prompts.dir", d.Prompts.Dir)
	v.SetDefault("export.output_dir", d.Export.OutputDir)
	v.SetDefault("export.quality", d.Export.Quality)

	v.SetDefault("watch.patterns", d.Watch.Patterns)
	v.SetDefault("watch.recursive", d.Watch.Recursive)
	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("watch.stability_wait", d.Watch.StabilityWait)
	v.SetDefault("watch.processing_timeout", d.Watch.ProcessingTimeout)
	v.SetDefault("watch.export", d.Watch.Export)
	v.SetDefault("watch.move_to_dir", "")
	v.SetDefault("watch.history_db", d.Watch.HistoryDB)
	v.SetDefault("watch.process_existing", d.Watch.ProcessExisting)
	v.SetDefault("watch.retry_failed", d.Watch.RetryFailed)
	v.SetDefault("watch.max_workers", d.Watch.MaxWorkers)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.timestamp", d.Logging.Timestamp)
	v.SetDefault("logging.caller", d.Logging.Caller)
	v.SetDefault("logging.no_color", d.Logging.NoColor)
}

func (l *Loader) bindLegacyEnv() error {
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := l.viper.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks value ranges that would otherwise fail deep in a run.
func Validate(cfg *Config) error {
	if !validBackends[cfg.Transcribe.Backend] {
		return fmt.Errorf("transcribe.backend must be one of auto, api, local (got %q)", cfg.Transcribe.Backend)
	}
	if len(cfg.Transcribe.Models) == 0 {
		return fmt.Errorf("transcribe.models must list at least one model")
	}
	if cfg.Transcribe.ChunkMinutes <= 0 {
		return fmt.Errorf("transcribe.chunk_minutes must be positive")
	}
	if cfg.Transcribe.OverlapSeconds < 0 {
		return fmt.Errorf("transcribe.overlap_seconds cannot be negative")
	}
	if cfg.Transcribe.Workers <= 0 {
		return fmt.Errorf("transcribe.workers must be positive")
	}
	if cfg.LLM.DefaultModel == "" && len(cfg.LLM.FallbackModels) == 0 {
		return fmt.Errorf("llm.default_model or llm.fallback_models is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.Cuts.MinDuration < 0 {
		return fmt.Errorf("cuts.min_duration cannot be negative")
	}
	if cfg.Cuts.MaxCuts <= 0 {
		return fmt.Errorf("cuts.max_cuts must be positive")
	}
	if !validQualities[cfg.Export.Quality] {
		return fmt.Errorf("export.quality must be one of original, high, medium, low (got %q)", cfg.Export.Quality)
	}
	if cfg.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if cfg.Watch.MaxWorkers <= 0 {
		return fmt.Errorf("watch.max_workers must be positive")
	}
	return nil
}
