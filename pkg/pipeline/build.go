package pipeline

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/config"
	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/llm"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/prompts"
	"github.com/eternnoir/llmcuts/pkg/retry"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// Components holds everything built from a Config
type Components struct {
	Cache       *cache.Manager
	Media       *media.ProcessorImpl
	Audio       *media.AudioCache
	Transcriber *transcriber.Service
	// LLM is nil when no API key is configured
	LLM      *llm.Client
	Prompts  *prompts.Loader
	Exporter *export.Exporter
	Hasher   *fingerprint.Hasher
	Pipeline *Pipeline
}

// Build constructs the full stack described by cfg
func Build(cfg *config.Config) (*Components, error) {
	log := logger.WithComponent("build")

	store, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	loader, err := prompts.NewLoader(cfg.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	processor := media.NewProcessor()
	c := &Components{
		Cache:    store,
		Media:    processor,
		Audio:    media.NewAudioCache(filepath.Join(cfg.Cache.Dir, "audio"), processor),
		Prompts:  loader,
		Exporter: export.New(),
		Hasher:   fingerprint.NewHasher(),
	}

	var client *openai.Client
	if cfg.OpenAI.APIKey != "" {
		client = NewOpenAIClient(cfg.OpenAI)
	}

	policy := RetryPolicy(cfg.OpenAI)
	backendName, err := transcriber.ResolveBackend(cfg.Transcribe.Backend, client != nil)
	if err != nil {
		return nil, err
	}
	c.Transcriber = buildTranscriber(backendName, client, cfg, policy)

	if client != nil {
		models := llm.ModelChain(cfg.LLM.ReasoningModel, cfg.LLM.DefaultModel, cfg.LLM.FallbackModels, cfg.LLM.PreferReasoningModels)
		c.LLM = llm.NewClient(client,
			llm.WithModels(models...),
			llm.WithMaxCompletionTokens(cfg.LLM.MaxCompletionTokens),
			llm.WithReasoningEffort(cfg.LLM.ReasoningEffort),
			llm.WithTemperature(cfg.LLM.Temperature),
			llm.WithRetryPolicy(policy),
			llm.WithDebugDir(cfg.LLM.DebugDir),
		)
	} else {
		log.Warn().Msg("No OpenAI API key configured, topic and cut analysis are unavailable")
	}

	var completer llm.Completer
	if c.LLM != nil {
		completer = c.LLM
	}
	c.Pipeline = New(store, processor, c.Audio, c.Transcriber, completer, loader,
		WithSettings(SettingsFromConfig(cfg)),
		WithHasher(c.Hasher),
	)

	log.Debug().
		Str("cache_dir", store.Dir()).
		Str("transcriber", c.Transcriber.BackendName()).
		Bool("llm", c.LLM != nil).
		Msg("Components built")
	return c, nil
}

func buildTranscriber(backendName string, client *openai.Client, cfg *config.Config, policy retry.Policy) *transcriber.Service {
	tc := cfg.Transcribe
	chunking := transcriber.WithChunking(
		time.Duration(tc.ChunkMinutes)*time.Minute,
		time.Duration(tc.OverlapSeconds)*time.Second,
	)
	tempDir := filepath.Join(cfg.Cache.Dir, "chunks")

	if backendName == "api" {
		backend := transcriber.NewOpenAIBackend(client,
			transcriber.WithModels(tc.Models...),
			transcriber.WithRetryPolicy(policy),
		)
		return transcriber.NewService(backend,
			transcriber.WithUploadLimit(int64(tc.MaxUploadMB)*1024*1024),
			chunking,
			transcriber.WithWorkers(tc.Workers),
			transcriber.WithTempDir(tempDir),
		)
	}

	backend := transcriber.NewLocalBackend(tc.LocalCommand,
		transcriber.WithLocalModel(tc.LocalModel),
		transcriber.WithDevice(tc.LocalDevice),
		transcriber.WithWorkDir(filepath.Join(cfg.Cache.Dir, "whisper")),
	)
	return transcriber.NewService(backend,
		transcriber.WithUploadLimit(0),
		chunking,
		transcriber.WithTempDir(tempDir),
	)
}

// NewOpenAIClient creates a go-openai client with the configured base URL
// and request timeout
func NewOpenAIClient(oc config.OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(oc.APIKey)
	if oc.BaseURL != "" {
		clientCfg.BaseURL = oc.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: oc.Timeout}
	return openai.NewClientWithConfig(clientCfg)
}

// RetryPolicy maps retry settings onto a retry.Policy
func RetryPolicy(oc config.OpenAIConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if oc.Retries > 0 {
		p.MaxAttempts = oc.Retries
	}
	if oc.RetryBackoff > 0 {
		p.BaseDelay = oc.RetryBackoff
	}
	return p
}

// SettingsFromConfig extracts the pipeline settings
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MinCutDuration: cfg.Cuts.MinDuration,
		MaxCuts:        cfg.Cuts.MaxCuts,
		Keywords:       cfg.Cuts.Keywords,
		Language:       cfg.Transcribe.Language,
		KeepAudio:      cfg.Cache.KeepAudio,
	}
}
