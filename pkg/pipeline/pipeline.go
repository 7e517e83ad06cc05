// Package pipeline runs a video through audio extraction, transcription,
// topic analysis and cut generation, reusing cached records at each step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/llm"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/prompts"
	"github.com/eternnoir/llmcuts/pkg/timecode"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// ErrNoCompleter is returned when analysis is needed but no LLM is configured.
var ErrNoCompleter = errors.New("no LLM configured (set an OpenAI API key)")

// Settings tune cut post-processing and transcription
type Settings struct {
	MinCutDuration float64
	MaxCuts        int
	Keywords       []string
	Language       string
	// Keep the extracted WAV after a successful run
	KeepAudio bool
}

// Pipeline wires the stages together
type Pipeline struct {
	cache     *cache.Manager
	validator VideoValidator
	audio     AudioSource
	tr        Transcriber
	completer llm.Completer
	prompts   *prompts.Loader
	hasher    *fingerprint.Hasher
	settings  Settings
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSettings replaces the default settings
func WithSettings(s Settings) Option {
	return func(p *Pipeline) {
		p.settings = s
	}
}

// WithHasher shares a hasher so repeated runs skip rehashing
func WithHasher(h *fingerprint.Hasher) Option {
	return func(p *Pipeline) {
		if h != nil {
			p.hasher = h
		}
	}
}

// New creates a pipeline. completer may be nil when only cached results
// are expected.
func New(c *cache.Manager, validator VideoValidator, audio AudioSource, tr Transcriber, completer llm.Completer, loader *prompts.Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:     c,
		validator: validator,
		audio:     audio,
		tr:        tr,
		completer: completer,
		prompts:   loader,
		hasher:    fingerprint.NewHasher(),
		settings: Settings{
			MinCutDuration: 30,
			MaxCuts:        50,
			KeepAudio:      true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type run struct {
	*Pipeline
	id       string
	path     string
	identity *fingerprint.Identity
	info     *media.VideoInfo
	opts     Options
	log      *logger.Logger
}

func (r *run) report(phase Phase, percent float64, message string) {
	if message == "" {
		message = phase.Label()
	}
	r.log.Debug().Str("phase", string(phase)).Float64("percent", percent).Msg(message)
	if r.opts.Progress != nil {
		r.opts.Progress(Progress{Phase: phase, Percent: percent, Message: message})
	}
}

func (p *Pipeline) start(ctx context.Context, videoPath string, opts Options) (*run, context.Context, error) {
	r := &run{
		Pipeline: p,
		id:       uuid.NewString(),
		path:     videoPath,
		opts:     opts,
	}
	r.log = logger.Component(ctx, "pipeline").
		WithField("run_id", r.id).
		WithField("file", filepath.Base(videoPath))

	identity, err := p.hasher.Identify(videoPath)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to identify video: %w", err)
	}
	r.identity = identity
	r.log = r.log.WithField("hash", fingerprint.Short(identity.Hash))
	return r, logger.WithLogger(ctx, r.log), nil
}

// Run processes one video and returns its cuts
func (p *Pipeline) Run(ctx context.Context, videoPath string, opts Options) (*Result, error) {
	startTime := time.Now()
	r, ctx, err := p.start(ctx, videoPath, opts)
	if err != nil {
		return nil, err
	}
	identity := r.identity
	r.log.Info().Int64("size", identity.Size).Msg("Starting analysis")

	if !opts.Force && !opts.SkipTopicsCache {
		if res, ok := r.cachedCuts(); ok {
			r.report(PhaseComplete, 100, "Loaded cuts from cache")
			return res, nil
		}
	}

	transcript, err := r.transcription(ctx)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topics, topicsModel, err := r.topics(ctx, transcript)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final, cutsModel, err := r.cuts(ctx, transcript, topics)
	if err != nil {
		return nil, err
	}

	if !p.settings.KeepAudio {
		if err := p.audio.Remove(identity.Hash); err != nil {
			r.log.Warn().Err(err).Msg("Failed to remove extracted audio")
		}
	}

	model := cutsModel
	if model == "" {
		model = topicsModel
	}
	res := &Result{
		RunID:      r.id,
		Hash:       identity.Hash,
		VideoPath:  identity.Path,
		Final:      final,
		Transcript: transcript,
		Topics:     topics,
		Model:      model,
		Stats:      cuts.Summarize(final.Cuts, r.info.Duration),
	}
	r.report(PhaseComplete, 100, "")
	r.log.Info().
		Int("cuts", len(final.Cuts)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Analysis complete")
	return res, nil
}

// RunAsync runs the job on its own goroutine. The channel receives exactly
// one outcome and is then closed.
func (p *Pipeline) RunAsync(ctx context.Context, videoPath string, opts Options) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := p.Run(ctx, videoPath, opts)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// Transcribe runs only the audio and transcription phases. The result
// carries the transcript and has no cuts.
func (p *Pipeline) Transcribe(ctx context.Context, videoPath string, opts Options) (*Result, error) {
	r, ctx, err := p.start(ctx, videoPath, opts)
	if err != nil {
		return nil, err
	}
	transcript, err := r.transcription(ctx)
	if err != nil {
		return nil, err
	}
	r.report(PhaseComplete, 100, "")
	return &Result{
		RunID:      r.id,
		Hash:       r.identity.Hash,
		VideoPath:  r.identity.Path,
		Transcript: transcript,
		Model:      transcript.Model,
	}, nil
}

// SaveCuts validates a hand-written cut list against the video and stores it
// as the video's cuts record, replacing any generated one
func (p *Pipeline) SaveCuts(ctx context.Context, videoPath string, list []cuts.Cut) (*Result, error) {
	r, ctx, err := p.start(ctx, videoPath, Options{})
	if err != nil {
		return nil, err
	}
	info, err := p.validator.ValidateFile(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to validate video: %w", err)
	}
	valid, err := cuts.Validate(list, info.Duration, cuts.Options{MaxCuts: p.settings.MaxCuts})
	if err != nil {
		return nil, err
	}
	final := cuts.BuildFinal(valid, info)
	if err := p.cache.Save(cache.KindCuts, r.identity.Hash, videoPath, cache.CutsPayload{
		CutsData:       final,
		ProcessingInfo: r.processingInfo("manual", ""),
	}); err != nil {
		return nil, fmt.Errorf("failed to save cuts: %w", err)
	}
	r.log.Info().Int("cuts", len(valid)).Msg("Saved manual cuts")
	return &Result{
		RunID:     r.id,
		Hash:      r.identity.Hash,
		VideoPath: r.identity.Path,
		Final:     final,
		Stats:     cuts.Summarize(final.Cuts, info.Duration),
	}, nil
}

func (r *run) cachedCuts() (*Result, bool) {
	var payload cache.CutsPayload
	if _, err := r.cache.Load(cache.KindCuts, r.identity.Hash, &payload); err != nil || payload.CutsData == nil {
		return nil, false
	}
	duration, _ := timecode.Parse(payload.CutsData.VideoInfo.Duration)
	r.log.Info().Int("cuts", len(payload.CutsData.Cuts)).Msg("Using cached cuts")
	return &Result{
		RunID:     r.id,
		Hash:      r.identity.Hash,
		VideoPath: r.identity.Path,
		Final:     payload.CutsData,
		Model:     payload.ProcessingInfo.Model,
		FromCache: true,
		Stats:     cuts.Summarize(payload.CutsData.Cuts, duration),
	}, true
}

func (r *run) transcription(ctx context.Context) (*transcriber.Transcript, error) {
	hash := r.identity.Hash
	if !r.opts.Force {
		var payload cache.TranscriptionPayload
		if _, err := r.cache.Load(cache.KindTranscription, hash, &payload); err == nil && payload.Transcription != nil {
			r.info = payload.VideoInfo
			if r.info == nil {
				info, err := r.validator.ValidateFile(ctx, r.path)
				if err != nil {
					return nil, fmt.Errorf("failed to validate video: %w", err)
				}
				r.info = info
			}
			r.log.Info().Int("segments", len(payload.Transcription.Segments)).Msg("Using cached transcription")
			r.report(PhaseGeneratingTranscription, 70, "Loaded transcription from cache")
			return payload.Transcription, nil
		}
	}

	r.report(PhaseExtractingAudio, 0, "")
	info, err := r.validator.ValidateFile(ctx, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to validate video: %w", err)
	}
	r.info = info

	audioPath, err := r.audio.Ensure(ctx, hash, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract audio: %w", err)
	}
	r.report(PhaseExtractingAudio, 30, "Audio ready")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.report(PhaseGeneratingTranscription, 30, "")
	transcript, err := r.tr.Transcribe(ctx, audioPath, info.Duration, transcriber.Options{Language: r.settings.Language}, func(fraction float64, message string) {
		r.report(PhaseGeneratingTranscription, 30+40*fraction, message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe: %w", err)
	}

	if err := r.cache.Save(cache.KindTranscription, hash, r.path, cache.TranscriptionPayload{
		Transcription: transcript,
		VideoInfo:     info,
	}); err != nil {
		r.log.Warn().Err(err).Msg("Failed to cache transcription")
	}
	r.report(PhaseGeneratingTranscription, 70, "Transcription complete")
	return transcript, nil
}

func (r *run) topics(ctx context.Context, transcript *transcriber.Transcript) (*cuts.TopicsResult, string, error) {
	hash := r.identity.Hash
	if !r.opts.Force && !r.opts.SkipTopicsCache {
		var payload cache.TopicsPayload
		if _, err := r.cache.Load(cache.KindTopics, hash, &payload); err == nil && payload.Topics != nil {
			r.log.Info().Int("topics", len(payload.Topics.Topics)).Msg("Using cached topics")
			r.report(PhaseAnalyzingWithAI, 80, "Loaded topics from cache")
			return payload.Topics, payload.ProcessingInfo.Model, nil
		}
	}
	if r.completer == nil {
		return nil, "", ErrNoCompleter
	}

	r.report(PhaseAnalyzingWithAI, 70, "Identifying topics...")
	var topics cuts.TopicsResult
	resp, err := r.completer.Complete(ctx, llm.Request{
		System: prompts.SystemPrompt,
		Prompt: r.prompts.BuildTopicsPrompt(transcript, r.info),
		JSON:   true,
		Decode: llm.DecodeInto(&topics),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to analyze topics: %w", err)
	}
	r.log.Info().Str("model", resp.Model).Int("topics", len(topics.Topics)).Msg("Topics identified")

	if err := r.cache.Save(cache.KindTopics, hash, r.path, cache.TopicsPayload{
		Topics:         &topics,
		ProcessingInfo: r.processingInfo("topics_analysis", resp.Model),
	}); err != nil {
		r.log.Warn().Err(err).Msg("Failed to cache topics")
	}
	r.report(PhaseAnalyzingWithAI, 80, "Topics identified")
	return &topics, resp.Model, nil
}

func (r *run) cuts(ctx context.Context, transcript *transcriber.Transcript, topics *cuts.TopicsResult) (*cuts.Final, string, error) {
	if r.completer == nil {
		return nil, "", ErrNoCompleter
	}

	r.report(PhaseAnalyzingWithAI, 80, "Generating cuts...")
	var result cuts.CutsResult
	resp, err := r.completer.Complete(ctx, llm.Request{
		System: prompts.SystemPrompt,
		Prompt: r.prompts.BuildCutsPrompt(topics, transcript, r.info),
		JSON:   true,
		Decode: llm.DecodeInto(&result),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate cuts: %w", err)
	}
	r.report(PhaseAnalyzingWithAI, 95, "Cuts generated")

	r.report(PhaseFinalizing, 95, "")
	valid, err := cuts.Validate(result.Cuts, r.info.Duration, cuts.Options{MaxCuts: r.settings.MaxCuts})
	if err != nil {
		return nil, "", err
	}
	merged := cuts.MergeShort(valid, r.settings.MinCutDuration, r.settings.Keywords)
	r.log.Info().
		Str("model", resp.Model).
		Int("raw", len(result.Cuts)).
		Int("valid", len(valid)).
		Int("final", len(merged)).
		Msg("Cuts validated")

	final := cuts.BuildFinal(merged, r.info)
	if err := r.cache.Save(cache.KindCuts, r.identity.Hash, r.path, cache.CutsPayload{
		CutsData:       final,
		ProcessingInfo: r.processingInfo("cuts_generation", resp.Model),
	}); err != nil {
		r.log.Warn().Err(err).Msg("Failed to cache cuts")
	}
	return final, resp.Model, nil
}

func (r *run) processingInfo(phase, model string) cache.ProcessingInfo {
	return cache.ProcessingInfo{
		Phase:     phase,
		Model:     model,
		RunID:     r.id,
		Timestamp: time.Now().UTC(),
	}
}
