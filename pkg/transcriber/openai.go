package transcriber

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/retry"
)

// AudioClient is the subset of *openai.Client the API backend calls.
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIBackend transcribes through the hosted Whisper endpoint
type OpenAIBackend struct {
	client AudioClient
	models []string
	policy retry.Policy
}

// OpenAIOption configures an OpenAIBackend
type OpenAIOption func(*OpenAIBackend)

// WithModels sets the model fallback order
func WithModels(models ...string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if len(models) > 0 {
			b.models = dedupe(models)
		}
	}
}

// WithRetryPolicy overrides per-model retry behavior
func WithRetryPolicy(p retry.Policy) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.policy = p
	}
}

// NewOpenAIBackend creates an API backend around client
func NewOpenAIBackend(client AudioClient, opts ...OpenAIOption) *OpenAIBackend {
	b := &OpenAIBackend{
		client: client,
		models: []string{openai.Whisper1},
		policy: retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend identifier
func (b *OpenAIBackend) Name() string {
	return "api"
}

// Transcribe sends audioPath to each model in turn until one succeeds
func (b *OpenAIBackend) Transcribe(ctx context.Context, audioPath string, opts Options) (*Transcript, error) {
	log := logger.Component(ctx, "whisper-api").WithField("file", filepath.Base(audioPath))

	var lastErr error
	for _, model := range b.models {
		req := openai.AudioRequest{
			Model:                  model,
			FilePath:               audioPath,
			Prompt:                 opts.Prompt,
			Language:               opts.Language,
			Format:                 openai.AudioResponseFormatVerboseJSON,
			TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment},
		}

		var resp openai.AudioResponse
		err := retry.Do(ctx, b.policy, func(ctx context.Context) error {
			var callErr error
			resp, callErr = b.client.CreateTranscription(ctx, req)
			return callErr
		}, func(attempt int, delay time.Duration, err error) {
			log.Warn().Err(err).Str("model", model).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying transcription")
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("model", model).Msg("Transcription model failed, trying next")
			lastErr = err
			continue
		}

		t := fromAudioResponse(resp)
		t.Model = model
		t.Backend = b.Name()
		log.Debug().Str("model", model).Int("segments", len(t.Segments)).Msg("Transcribed")
		return t, nil
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllModelsFailed, lastErr)
}

func fromAudioResponse(resp openai.AudioResponse) *Transcript {
	t := &Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		t.Segments = append(t.Segments, Segment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return t
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
