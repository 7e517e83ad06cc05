package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/logger"
)

// Config represents the application configuration
type Config struct {
	// Hosted API access shared by transcription and chat
	OpenAI OpenAIConfig `yaml:"openai" mapstructure:"openai"`

	// Speech-to-text settings
	Transcribe TranscribeConfig `yaml:"transcribe" mapstructure:"transcribe"`

	// Topic and cut analysis settings
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Cut validation settings
	Cuts CutsConfig `yaml:"cuts" mapstructure:"cuts"`

	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Prompts PromptsConfig `yaml:"prompts" mapstructure:"prompts"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`

	// Logging Configuration
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// OpenAIConfig contains API credentials and transport settings
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Attempts per model before moving to the next one
	Retries      int           `yaml:"retries" mapstructure:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// TranscribeConfig contains transcription settings
type TranscribeConfig struct {
	// auto, api, local
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Hosted models tried in order
	Models   []string `yaml:"models" mapstructure:"models"`
	Language string   `yaml:"language" mapstructure:"language"`

	// Local whisper CLI
	LocalCommand string `yaml:"local_command" mapstructure:"local_command"`
	LocalModel   string `yaml:"local_model" mapstructure:"local_model"`
	LocalDevice  string `yaml:"local_device" mapstructure:"local_device"`

	// Chunking for the hosted upload limit
	MaxUploadMB    int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	ChunkMinutes   int `yaml:"chunk_minutes" mapstructure:"chunk_minutes"`
	OverlapSeconds int `yaml:"overlap_seconds" mapstructure:"overlap_seconds"`
	Workers        int `yaml:"workers" mapstructure:"workers"`
}

// LLMConfig contains chat model selection
type LLMConfig struct {
	DefaultModel          string   `yaml:"default_model" mapstructure:"default_model"`
	ReasoningModel        string   `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	FallbackModels        []string `yaml:"fallback_models" mapstructure:"fallback_models"`
	PreferReasoningModels bool     `yaml:"prefer_reasoning_models" mapstructure:"prefer_reasoning_models"`
	MaxCompletionTokens   int      `yaml:"max_completion_tokens" mapstructure:"max_completion_tokens"`
	ReasoningEffort       string   `yaml:"reasoning_effort" mapstructure:"reasoning_effort"`
	Temperature           float32  `yaml:"temperature" mapstructure:"temperature"`
	// Failed requests are dumped here when set
	DebugDir string `yaml:"debug_dir" mapstructure:"debug_dir"`
}

// CutsConfig contains cut post-processing settings
type CutsConfig struct {
	// Seconds; shorter cuts are merged unless they carry a keyword
	MinDuration float64  `yaml:"min_duration" mapstructure:"min_duration"`
	MaxCuts     int      `yaml:"max_cuts" mapstructure:"max_cuts"`
	Keywords    []string `yaml:"keywords" mapstructure:"keywords"`
}

// CacheConfig contains the on-disk cache location
type CacheConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Keep extracted audio between runs
	KeepAudio bool `yaml:"keep_audio" mapstructure:"keep_audio"`
}

// PromptsConfig contains the prompt template directory
type PromptsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ExportConfig contains clip export settings
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	// original, high, medium, low
	Quality string `yaml:"quality" mapstructure:"quality"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	// File patterns to watch (e.g., "*.mp4", "*.mov")
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`

	Recursive bool `yaml:"recursive" mapstructure:"recursive"`

	// Polling interval for checking new files
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Time a file size must stay unchanged before processing
	StabilityWait time.Duration `yaml:"stability_wait" mapstructure:"stability_wait"`

	// Maximum time allowed for processing a single file
	ProcessingTimeout time.Duration `yaml:"processing_timeout" mapstructure:"processing_timeout"`

	// Export clips for every analyzed video
	Export bool `yaml:"export" mapstructure:"export"`

	// Directory to move processed videos to (optional)
	MoveToDir string `yaml:"move_to_dir" mapstructure:"move_to_dir"`

	// Path to the BoltDB history database
	HistoryDB string `yaml:"history_db" mapstructure:"history_db"`

	ProcessExisting bool `yaml:"process_existing" mapstructure:"process_existing"`
	RetryFailed     bool `yaml:"retry_failed" mapstructure:"retry_failed"`
	MaxWorkers      int  `yaml:"max_workers" mapstructure:"max_workers"`
}

// DefaultCacheDir returns the per-user cache location.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "llmcuts")
	}
	return filepath.Join(os.TempDir(), "llmcuts")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Timeout:      10 * time.Minute,
			Retries:      3,
			RetryBackoff: time.Second,
		},
		Transcribe: TranscribeConfig{
			Backend:        "auto",
			Models:         []string{"whisper-1"},
			LocalCommand:   "whisper",
			LocalDevice:    "auto",
			MaxUploadMB:    25,
			ChunkMinutes:   10,
			OverlapSeconds: 5,
			Workers:        3,
		},
		LLM: LLMConfig{
			DefaultModel:          "gpt-4o",
			ReasoningModel:        "o4-mini",
			FallbackModels:        []string{"gpt-4o", "gpt-4o-mini"},
			PreferReasoningModels: true,
			MaxCompletionTokens:   8192,
			ReasoningEffort:       "high",
			Temperature:           0.3,
		},
		Cuts: CutsConfig{
			MinDuration: 30,
			MaxCuts:     50,
			Keywords:    append([]string(nil), cuts.DefaultKeywords...),
		},
		Cache: CacheConfig{
			Dir:       DefaultCacheDir(),
			KeepAudio: true,
		},
		Prompts: PromptsConfig{
			Dir: "prompts",
		},
		Export: ExportConfig{
			OutputDir: "clips",
			Quality:   "original",
		},
		Watch: WatchConfig{
			Patterns:          []string{"*.mp4", "*.mov", "*.mkv", "*.webm", "*.m4v"},
			Interval:          5 * time.Second,
			StabilityWait:     5 * time.Second,
			ProcessingTimeout: time.Hour,
			HistoryDB:         ".llmcuts-watch.db",
			ProcessExisting:   true,
			MaxWorkers:        1,
		},
		Logging: *logger.DefaultConfig(),
	}
}
