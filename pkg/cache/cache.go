// Package cache stores transcription, topics and cuts records on disk,
// keyed by the content hash of the source video.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/eternnoir/llmcuts/pkg/logger"
)

// Version is written into every record; other versions read as misses.
const Version = "1.0"

// ErrNotFound is returned for missing or stale records.
var ErrNotFound = errors.New("cache record not found")

// Kind names a record type
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindTopics        Kind = "topics"
	KindCuts          Kind = "cuts"
)

// Kinds lists every record type in pipeline order
var Kinds = []Kind{KindTranscription, KindTopics, KindCuts}

func (k Kind) dir() string {
	switch k {
	case KindTranscription:
		return "transcriptions"
	case KindTopics:
		return "topics"
	case KindCuts:
		return "cuts"
	}
	return ""
}

// Record is the on-disk envelope around a payload
type Record struct {
	Hash         string          `json:"hash"`
	VideoPath    string          `json:"video_path"`
	CreatedAt    time.Time       `json:"created_at"`
	CacheVersion string          `json:"cache_version"`
	Payload      json.RawMessage `json:"payload"`
}

// Manager owns a cache directory
type Manager struct {
	dir  string
	lock *flock.Flock
	// serializes in-process writers; the file lock covers other processes
	mu sync.Mutex
}

// Open prepares dir and its per-kind subdirectories
func Open(dir string) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	for _, k := range Kinds {
		if err := os.MkdirAll(filepath.Join(dir, k.dir()), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	return &Manager{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// Dir returns the cache root
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns where a record of kind for hash lives
func (m *Manager) Path(kind Kind, hash string) string {
	return filepath.Join(m.dir, kind.dir(), hash+".json")
}

// Has reports whether a current-version record exists
func (m *Manager) Has(kind Kind, hash string) bool {
	_, err := m.read(kind, hash)
	return err == nil
}

// Load decodes the payload of a record into v
func (m *Manager) Load(kind Kind, hash string, v any) (*Record, error) {
	rec, err := m.read(kind, hash)
	if err != nil {
		return nil, err
	}
	if v != nil {
		if err := json.Unmarshal(rec.Payload, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
	}
	return rec, nil
}

func (m *Manager) read(kind Kind, hash string) (*Record, error) {
	if kind.dir() == "" || !validHash(hash) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, hash)
	}
	data, err := os.ReadFile(m.Path(kind, hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.WithComponent("cache").Warn().Err(err).Str("kind", string(kind)).Str("hash", hash).Msg("Corrupt cache record, ignoring")
		return nil, fmt.Errorf("%w: corrupt record %s/%s", ErrNotFound, kind, hash)
	}
	if rec.CacheVersion != Version {
		logger.WithComponent("cache").Info().
			Str("kind", string(kind)).
			Str("version", rec.CacheVersion).
			Msg("Cache record has a different version, treating as miss")
		return nil, fmt.Errorf("%w: version %q", ErrNotFound, rec.CacheVersion)
	}
	return &rec, nil
}

// Save writes v as the payload of a kind record and indexes it
func (m *Manager) Save(kind Kind, hash, videoPath string, v any) error {
	if kind.dir() == "" {
		return fmt.Errorf("unknown cache kind %q", kind)
	}
	if !validHash(hash) {
		return fmt.Errorf("invalid cache key %q", hash)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	if abs, err := filepath.Abs(videoPath); err == nil {
		videoPath = abs
	}
	rec := Record{
		Hash:         hash,
		VideoPath:    videoPath,
		CreatedAt:    time.Now().UTC(),
		CacheVersion: Version,
		Payload:      payload,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	return m.withLock(func() error {
		if err := writeAtomic(m.Path(kind, hash), data); err != nil {
			return err
		}
		if err := m.indexPut(hash, videoPath, kind, rec.CreatedAt); err != nil {
			return err
		}
		logger.WithComponent("cache").Debug().
			Str("kind", string(kind)).
			Str("hash", hash).
			Int("bytes", len(data)).
			Msg("Cache record saved")
		return nil
	})
}

// Clear removes every record for one video and returns how many files went
func (m *Manager) Clear(hash string) (int, error) {
	if !validHash(hash) {
		return 0, fmt.Errorf("invalid cache key %q", hash)
	}
	removed := 0
	err := m.withLock(func() error {
		for _, k := range Kinds {
			err := os.Remove(m.Path(k, hash))
			switch {
			case err == nil:
				removed++
			case !errors.Is(err, os.ErrNotExist):
				return fmt.Errorf("failed to remove cache record: %w", err)
			}
		}
		return m.indexDelete(hash)
	})
	return removed, err
}

// ClearAll empties every kind directory and the index
func (m *Manager) ClearAll() (int, error) {
	removed := 0
	err := m.withLock(func() error {
		for _, k := range Kinds {
			files, err := filepath.Glob(filepath.Join(m.dir, k.dir(), "*.json"))
			if err != nil {
				return err
			}
			for _, f := range files {
				if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to remove cache record: %w", err)
				}
				removed++
			}
		}
		return m.indexReset()
	})
	return removed, err
}

// Stats summarizes the cache contents
type Stats struct {
	Videos  int          `json:"videos"`
	Records map[Kind]int `json:"records"`
	Bytes   int64        `json:"bytes"`
}

// Stats counts records and bytes per kind from the files on disk
func (m *Manager) Stats() (*Stats, error) {
	st := &Stats{Records: make(map[Kind]int, len(Kinds))}
	videos := make(map[string]bool)
	for _, k := range Kinds {
		entries, err := os.ReadDir(filepath.Join(m.dir, k.dir()))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to list cache: %w", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			st.Records[k]++
			st.Bytes += info.Size()
			videos[strings.TrimSuffix(name, ".json")] = true
		}
	}
	st.Videos = len(videos)
	return st, nil
}

func (m *Manager) withLock(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	locked, err := m.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock cache directory: %w", err)
	}
	if !locked {
		return errors.New("failed to lock cache directory: timed out")
	}
	defer func() { _ = m.lock.Unlock() }()

	return fn()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync cache record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move cache record into place: %w", err)
	}
	return nil
}

// validHash rejects anything that could escape the cache directory
func validHash(h string) bool {
	if h == "" || len(h) > 128 {
		return false
	}
	for _, r := range h {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
