package media

import (
	"context"
	"time"
)

// VideoInfo contains the probe metadata the pipeline and prompts need
type VideoInfo struct {
	Path       string  `json:"path"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"` // seconds
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	HasAudio   bool    `json:"has_audio"`
	Size       int64   `json:"size"`
	BitRate    int64   `json:"bit_rate,omitempty"`
}

// ChunkInfo represents one window of an audio file
type ChunkInfo struct {
	Index    int
	Start    time.Duration
	End      time.Duration
	Duration time.Duration
	FilePath string // chunk file on disk, empty until created
}

// Prober reads container metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
}

// Extractor produces the mono 16 kHz WAV the transcribers consume.
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
}

// Chunker splits audio into overlapping windows
type Chunker interface {
	// CalculateChunks determines chunk boundaries with overlap
	CalculateChunks(duration, chunkDuration, overlapDuration time.Duration) []*ChunkInfo

	// CreateChunk writes one window of inputPath to outputPath
	CreateChunk(ctx context.Context, inputPath string, start, duration time.Duration, outputPath string) error

	// ChunkAudio plans and writes every window into dir
	ChunkAudio(ctx context.Context, inputPath string, duration time.Duration, opts ChunkOptions) ([]*ChunkInfo, error)

	// CleanupChunks removes chunk files
	CleanupChunks(chunks []*ChunkInfo) error
}

// ChunkOptions controls ChunkAudio
type ChunkOptions struct {
	ChunkDuration   time.Duration
	OverlapDuration time.Duration
	Dir             string
}

// Tool bundles the ffmpeg operations a pipeline needs.
type Tool interface {
	Prober
	Extractor
}
