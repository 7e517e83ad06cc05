package pipeline

import (
	"context"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// Phase names a pipeline stage
type Phase string

const (
	PhaseExtractingAudio         Phase = "extracting_audio"
	PhaseGeneratingTranscription Phase = "generating_transcription"
	PhaseAnalyzingWithAI         Phase = "analyzing_with_ai"
	PhaseFinalizing              Phase = "finalizing"
	PhaseComplete                Phase = "complete"
)

// Label is the human-readable status for a phase
func (p Phase) Label() string {
	switch p {
	case PhaseExtractingAudio:
		return "Extracting Audio..."
	case PhaseGeneratingTranscription:
		return "Generating Transcription..."
	case PhaseAnalyzingWithAI:
		return "Analyzing with AI..."
	case PhaseFinalizing:
		return "Finalizing Results..."
	case PhaseComplete:
		return "Complete!"
	}
	return string(p)
}

// Progress is one status update. Percent is 0-100.
type Progress struct {
	Phase   Phase   `json:"phase"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// ProgressFunc receives progress updates on the pipeline's goroutine
type ProgressFunc func(Progress)

// Options control a single run
type Options struct {
	// Force ignores every cached record
	Force bool
	// SkipTopicsCache regenerates topics and cuts but reuses the transcription
	SkipTopicsCache bool
	Progress        ProgressFunc
}

// Result is the outcome of a successful run
type Result struct {
	RunID      string                  `json:"run_id"`
	Hash       string                  `json:"hash"`
	VideoPath  string                  `json:"video_path"`
	Final      *cuts.Final             `json:"final"`
	Transcript *transcriber.Transcript `json:"transcript,omitempty"`
	Topics     *cuts.TopicsResult      `json:"topics,omitempty"`
	Model      string                  `json:"model,omitempty"`
	FromCache  bool                    `json:"from_cache"`
	Stats      cuts.Stats              `json:"stats"`
}

// Outcome is delivered by RunAsync
type Outcome struct {
	Result *Result
	Err    error
}

// VideoValidator checks a file and returns its probe data
type VideoValidator interface {
	ValidateFile(ctx context.Context, path string) (*media.VideoInfo, error)
}

// AudioSource yields the WAV for a video, extracting it when needed
type AudioSource interface {
	Ensure(ctx context.Context, hash, videoPath string) (string, error)
	Remove(hash string) error
}

// Transcriber turns a WAV into a transcript
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, duration float64, opts transcriber.Options, progress transcriber.ProgressFunc) (*transcriber.Transcript, error)
}
