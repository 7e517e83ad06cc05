package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
)

// ErrNoAPIKey is returned when the hosted backend is requested without a key.
var ErrNoAPIKey = errors.New("hosted transcription requires an API key")

// ResolveBackend maps the configured backend name to "api" or "local".
func ResolveBackend(kind string, hasAPIKey bool) (string, error) {
	switch strings.ToLower(kind) {
	case "", "auto":
		if hasAPIKey {
			return "api", nil
		}
		return "local", nil
	case "api":
		if !hasAPIKey {
			return "", ErrNoAPIKey
		}
		return "api", nil
	case "local":
		return "local", nil
	default:
		return "", fmt.Errorf("unknown transcription backend %q", kind)
	}
}

// Service runs a backend over an audio file, chunking uploads that exceed
// the backend's size limit.
type Service struct {
	backend        Backend
	chunker        media.Chunker
	merger         ChunkMerger
	maxUploadBytes int64
	chunkDuration  time.Duration
	overlap        time.Duration
	workers        int
	tempDir        string
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithUploadLimit enables chunking above limit bytes; 0 disables it
func WithUploadLimit(limit int64) ServiceOption {
	return func(s *Service) { s.maxUploadBytes = limit }
}

// WithChunking sets window and overlap sizes for chunked uploads
func WithChunking(chunk, overlap time.Duration) ServiceOption {
	return func(s *Service) {
		if chunk > 0 {
			s.chunkDuration = chunk
		}
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithWorkers bounds concurrent chunk uploads
func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithChunker replaces the ffmpeg chunker
func WithChunker(c media.Chunker) ServiceOption {
	return func(s *Service) { s.chunker = c }
}

// WithTempDir sets where chunk files are written
func WithTempDir(dir string) ServiceOption {
	return func(s *Service) { s.tempDir = dir }
}

// NewService creates a transcription service around backend
func NewService(backend Backend, opts ...ServiceOption) *Service {
	s := &Service{
		backend:       backend,
		chunker:       media.NewChunker(),
		merger:        NewChunkMerger(),
		chunkDuration: 10 * time.Minute,
		overlap:       5 * time.Second,
		workers:       3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName reports which backend the service drives
func (s *Service) BackendName() string {
	return s.backend.Name()
}

// Transcribe produces a transcript for audioPath. duration is the audio
// length in seconds and is used for chunk planning and model sizing.
func (s *Service) Transcribe(ctx context.Context, audioPath string, duration float64, opts Options, progress ProgressFunc) (*Transcript, error) {
	log := logger.Component(ctx, "transcriber").
		WithField("file", filepath.Base(audioPath)).
		WithField("backend", s.backend.Name())
	started := time.Now()

	if progress == nil {
		progress = func(float64, string) {}
	}
	opts.Duration = duration

	stat, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio: %w", err)
	}

	var result *Transcript
	if s.maxUploadBytes > 0 && stat.Size() > s.maxUploadBytes && duration > 0 {
		log.Info().
			Int64("bytes", stat.Size()).
			Int64("limit", s.maxUploadBytes).
			Msg("Audio exceeds upload limit, transcribing in chunks")
		result, err = s.transcribeChunked(ctx, audioPath, duration, opts, progress)
	} else {
		progress(0, "Transcribing audio")
		result, err = s.backend.Transcribe(ctx, audioPath, opts)
		if err == nil {
			result.ChunkCount = 1
		}
	}
	if err != nil {
		return nil, err
	}

	normalize(result, duration)
	if result.Text == "" {
		return nil, ErrEmptyTranscript
	}

	progress(1, "Transcription complete")
	log.Info().
		Int("segments", len(result.Segments)).
		Int("chars", len(result.Text)).
		Str("model", result.Model).
		Dur("elapsed", time.Since(started)).
		Msg("Transcription finished")
	return result, nil
}

func (s *Service) transcribeChunked(ctx context.Context, audioPath string, duration float64, opts Options, progress ProgressFunc) (*Transcript, error) {
	log := logger.Component(ctx, "chunk-processor").WithField("file", filepath.Base(audioPath))

	dir, err := os.MkdirTemp(s.tempDir, "llmcuts_chunks_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	defer os.RemoveAll(dir)

	chunks, err := s.chunker.ChunkAudio(ctx, audioPath, time.Duration(duration*float64(time.Second)), media.ChunkOptions{
		ChunkDuration:   s.chunkDuration,
		OverlapDuration: s.overlap,
		Dir:             dir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunks: %w", err)
	}
	defer func() { _ = s.chunker.CleanupChunks(chunks) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ChunkResult, len(chunks))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed int
	)
	sem := make(chan struct{}, s.workers)

	for i, chunk := range chunks {
		wg.Add(1)
		go func(index int, chunk *media.ChunkInfo) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			chunkOpts := opts
			chunkOpts.Duration = chunk.Duration.Seconds()
			t, err := s.backend.Transcribe(ctx, chunk.FilePath, chunkOpts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("chunk %d: %w", index, err)
					cancel()
				}
				log.Error().Err(err).Int("chunk_index", index).Msg("Chunk transcription failed")
				return
			}
			results[index] = ChunkResult{Chunk: chunk, Transcript: t}
			completed++
			progress(float64(completed)/float64(len(chunks)), fmt.Sprintf("Transcribed chunk %d/%d", completed, len(chunks)))
		}(i, chunk)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.merger.Merge(results), nil
}

// normalize fills text from segments, drops empty segments and clamps
// times into [0, duration].
func normalize(t *Transcript, duration float64) {
	segs := t.Segments[:0]
	for _, seg := range t.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if duration > 0 && seg.End > duration {
			seg.End = duration
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		segs = append(segs, seg)
	}
	t.Segments = segs

	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" && len(t.Segments) > 0 {
		parts := make([]string, len(t.Segments))
		for i, seg := range t.Segments {
			parts[i] = seg.Text
		}
		t.Text = strings.Join(parts, " ")
	}
	if duration > 0 {
		t.Duration = duration
	}
}
