// Package fingerprint derives the content identity used as the cache key for
// a video. Two copies of the same file at different paths share a hash.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// HashSize is the digest length in bytes.
const HashSize = 32

// Identity describes a file by content hash plus the stat data used to
// memoize the hash within a process.
type Identity struct {
	Hash    string    `json:"hash"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// HashReader returns the hex blake3 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New(HashSize, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex blake3 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return HashReader(f)
}

type memoKey struct {
	path    string
	size    int64
	modTime int64
}

// Hasher memoizes hashes by (path, size, mtime). Safe for concurrent use.
type Hasher struct {
	mu   sync.Mutex
	memo map[memoKey]string
}

// NewHasher creates an empty hasher.
func NewHasher() *Hasher {
	return &Hasher{memo: make(map[memoKey]string)}
}

// Identify stats and hashes path. A file unchanged since the last call is
// not read again.
func (h *Hasher) Identify(path string) (*Identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("not a file: %s", path)
	}

	key := memoKey{path: abs, size: info.Size(), modTime: info.ModTime().UnixNano()}

	h.mu.Lock()
	hash, ok := h.memo[key]
	h.mu.Unlock()

	if !ok {
		hash, err = HashFile(abs)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.memo[key] = hash
		h.mu.Unlock()
	}

	return &Identity{
		Hash:    hash,
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

var defaultHasher = NewHasher()

// Identify uses the package-level hasher.
func Identify(path string) (*Identity, error) {
	return defaultHasher.Identify(path)
}

// Short returns the first 12 characters of a hash for log lines.
func Short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
