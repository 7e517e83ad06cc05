package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// TestExtractAndChunk runs against real ffmpeg and a sample video.
func TestExtractAndChunk(t *testing.T) {
	testFile := "../../testdata/sample.mp4"
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skip("Skipping integration test: testdata/sample.mp4 not found")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("Skipping integration test: ffmpeg not installed")
	}

	ctx := context.Background()
	dir := t.TempDir()
	p := NewProcessor()

	info, err := p.ValidateFile(ctx, testFile)
	if err != nil {
		t.Fatalf("ValidateFile() error = %v", err)
	}
	if info.Duration <= 0 {
		t.Fatalf("Duration should be positive, got %v", info.Duration)
	}
	t.Logf("Video info: duration=%.2fs resolution=%s fps=%.2f", info.Duration, info.Resolution, info.FPS)

	cache := NewAudioCache(filepath.Join(dir, "audio"), p)
	wav, err := cache.Ensure(ctx, "sample", testFile)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	chunker := NewChunker()
	dur := time.Duration(info.Duration * float64(time.Second))
	chunks, err := chunker.ChunkAudio(ctx, wav, dur, ChunkOptions{
		ChunkDuration:   dur/2 + time.Second,
		OverlapDuration: time.Second,
		Dir:             filepath.Join(dir, "chunks"),
	})
	if err != nil {
		t.Fatalf("ChunkAudio() error = %v", err)
	}
	defer chunker.CleanupChunks(chunks)

	for _, c := range chunks {
		st, err := os.Stat(c.FilePath)
		if err != nil || st.Size() <= wavHeaderSize {
			t.Errorf("chunk %d invalid: %v", c.Index, err)
		}
	}
}
