package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/logger"
)

// wavHeaderSize is the canonical RIFF header length; anything not larger
// holds no samples.
const wavHeaderSize = 44

// AudioCache keeps extracted WAV tracks under dir/<hash>.wav so a video is
// decoded once no matter how often it is analyzed.
type AudioCache struct {
	dir       string
	extractor Extractor

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewAudioCache creates a cache rooted at dir.
func NewAudioCache(dir string, extractor Extractor) *AudioCache {
	return &AudioCache{
		dir:       dir,
		extractor: extractor,
		inflight:  make(map[string]*sync.Mutex),
	}
}

// Path returns where the WAV for hash lives, whether or not it exists.
func (c *AudioCache) Path(hash string) string {
	return filepath.Join(c.dir, hash+".wav")
}

// Get returns the cached WAV path for hash when a usable file exists.
func (c *AudioCache) Get(hash string) (string, bool) {
	path := c.Path(hash)
	info, err := os.Stat(path)
	if err != nil || info.Size() <= wavHeaderSize {
		return "", false
	}
	return path, true
}

// Ensure returns the cached WAV for hash, extracting it from videoPath on a
// miss. Concurrent calls for the same hash extract once.
func (c *AudioCache) Ensure(ctx context.Context, hash, videoPath string) (string, error) {
	lock := c.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	log := logger.Component(ctx, "audio-cache").WithField("hash", fingerprint.Short(hash))

	if path, ok := c.Get(hash); ok {
		log.Debug().Str("path", path).Msg("Audio cache hit")
		return path, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio cache directory: %w", err)
	}

	final := c.Path(hash)
	// kept outside the *.wav globs used by Clear and Size
	tmp := final + ".partial"
	defer os.Remove(tmp)

	log.Info().Str("video", filepath.Base(videoPath)).Msg("Extracting audio")
	if err := c.extractor.ExtractAudio(ctx, videoPath, tmp); err != nil {
		return "", err
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return "", fmt.Errorf("extracted audio missing: %w", err)
	}
	if info.Size() <= wavHeaderSize {
		return "", fmt.Errorf("%w: extracted audio is empty", ErrNoAudio)
	}

	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to store extracted audio: %w", err)
	}
	return final, nil
}

// Remove deletes the cached WAV for hash.
func (c *AudioCache) Remove(hash string) error {
	if err := os.Remove(c.Path(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cached audio: %w", err)
	}
	return nil
}

// Clear deletes every cached WAV and returns how many were removed.
func (c *AudioCache) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.wav"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", m, err)
		}
		removed++
	}
	return removed, nil
}

// Size returns the number of cached tracks and their total bytes.
func (c *AudioCache) Size() (int, int64) {
	matches, _ := filepath.Glob(filepath.Join(c.dir, "*.wav"))
	var total int64
	n := 0
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			total += info.Size()
			n++
		}
	}
	return n, total
}

func (c *AudioCache) lockFor(hash string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.inflight[hash]
	if !ok {
		l = &sync.Mutex{}
		c.inflight[hash] = l
	}
	return l
}
