package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// ChunkerImpl implements the Chunker interface
type ChunkerImpl struct {
	run func(ctx context.Context, stream *ffmpeg.Stream) error
}

// NewChunker creates a new audio chunker
func NewChunker() *ChunkerImpl {
	return &ChunkerImpl{run: Run}
}

// ChunkAudio splits a WAV into overlapping chunk files under opts.Dir
func (c *ChunkerImpl) ChunkAudio(ctx context.Context, inputPath string, duration time.Duration, opts ChunkOptions) ([]*ChunkInfo, error) {
	chunks := c.CalculateChunks(duration, opts.ChunkDuration, opts.OverlapDuration)

	dir := opts.Dir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "llmcuts_chunks_*")
		if err != nil {
			return nil, fmt.Errorf("failed to create chunk directory: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	for i, chunk := range chunks {
		path := filepath.Join(dir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := c.CreateChunk(ctx, inputPath, chunk.Start, chunk.Duration, path); err != nil {
			_ = c.CleanupChunks(chunks[:i])
			return nil, fmt.Errorf("failed to create chunk %d: %w", i, err)
		}
		chunk.FilePath = path
	}

	return chunks, nil
}

// CreateChunk creates a single chunk from the audio file
func (c *ChunkerImpl) CreateChunk(ctx context.Context, inputPath string, start, duration time.Duration, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := c.run(ctx, ChunkStream(inputPath, start, duration, outputPath)); err != nil {
		return fmt.Errorf("ffmpeg chunk extraction failed: %w", err)
	}
	return nil
}

// ChunkStream builds the ffmpeg invocation for one chunk.
func ChunkStream(inputPath string, start, duration time.Duration, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath, ffmpeg.KwArgs{
		"ss": timecode.FormatPrecise(start.Seconds()),
		"t":  timecode.FormatPrecise(duration.Seconds()),
	}).Output(outputPath, ffmpeg.KwArgs{
		"acodec": "pcm_s16le",
		"ar":     strconv.Itoa(SampleRate),
		"ac":     strconv.Itoa(Channels),
	})
}

// CleanupChunks removes chunk files and their directory when empty
func (c *ChunkerImpl) CleanupChunks(chunks []*ChunkInfo) error {
	var lastErr error
	for _, chunk := range chunks {
		if chunk.FilePath == "" {
			continue
		}
		if err := os.Remove(chunk.FilePath); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	if len(chunks) > 0 && chunks[0].FilePath != "" {
		_ = os.Remove(filepath.Dir(chunks[0].FilePath))
	}
	return lastErr
}

// CalculateChunks determines chunk boundaries with overlap
func (c *ChunkerImpl) CalculateChunks(duration, chunkDuration, overlapDuration time.Duration) []*ChunkInfo {
	if chunkDuration <= 0 || duration <= chunkDuration {
		return []*ChunkInfo{{Index: 0, Start: 0, End: duration, Duration: duration}}
	}

	step := chunkDuration - overlapDuration
	if step <= 0 {
		step = chunkDuration / 2
	}

	var chunks []*ChunkInfo
	for start := time.Duration(0); start < duration; start += step {
		end := start + chunkDuration
		if end > duration {
			end = duration
		}
		chunks = append(chunks, &ChunkInfo{
			Index:    len(chunks),
			Start:    start,
			End:      end,
			Duration: end - start,
		})
		if end >= duration {
			break
		}
	}
	return chunks
}
