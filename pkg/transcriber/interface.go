package transcriber

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when a backend produced no text at all.
var ErrEmptyTranscript = errors.New("transcription is empty")

// ErrAllModelsFailed is returned when every configured model failed.
var ErrAllModelsFailed = errors.New("all transcription models failed")

// Segment is one time-aligned span of speech. Times are seconds from the
// start of the video.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the time-aligned text of a whole video
type Transcript struct {
	Text       string    `json:"text"`
	Language   string    `json:"language,omitempty"`
	Duration   float64   `json:"duration,omitempty"`
	Segments   []Segment `json:"segments"`
	Model      string    `json:"model,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
}

// Options carries per-request hints to a backend
type Options struct {
	Language string
	Prompt   string
	// Duration of the audio in seconds; the local backend sizes its model by it
	Duration float64
}

// Backend turns one audio file into a transcript
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Transcript, error)
}

// ProgressFunc reports transcription progress in [0,1]
type ProgressFunc func(fraction float64, message string)

// ChunkMerger stitches per-chunk transcripts back into one timeline
type ChunkMerger interface {
	Merge(chunks []ChunkResult) *Transcript
}
