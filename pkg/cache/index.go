package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	indexFile    = "index.db"
	bucketVideos = "videos"
)

// Entry is the index row for one video
type Entry struct {
	Hash      string             `json:"hash"`
	VideoPath string             `json:"video_path"`
	Kinds     map[Kind]time.Time `json:"kinds"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Has reports whether the entry lists kind
func (e *Entry) Has(kind Kind) bool {
	_, ok := e.Kinds[kind]
	return ok
}

// openIndex is called with the directory lock held. The database is kept
// open only for the duration of one operation so several processes can
// share a cache directory.
func (m *Manager) openIndex() (*bolt.DB, error) {
	db, err := bolt.Open(filepath.Join(m.dir, indexFile), 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketVideos)); err != nil {
			return fmt.Errorf("failed to create videos bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (m *Manager) indexPut(hash, videoPath string, kind Kind, at time.Time) error {
	db, err := m.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketVideos))

		entry := Entry{Hash: hash, Kinds: make(map[Kind]time.Time)}
		if existing := bucket.Get([]byte(hash)); existing != nil {
			if err := json.Unmarshal(existing, &entry); err != nil || entry.Kinds == nil {
				entry = Entry{Hash: hash, Kinds: make(map[Kind]time.Time)}
			}
		}
		entry.VideoPath = videoPath
		entry.Kinds[kind] = at
		entry.UpdatedAt = at

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal index entry: %w", err)
		}
		if err := bucket.Put([]byte(hash), data); err != nil {
			return fmt.Errorf("failed to store index entry: %w", err)
		}
		return nil
	})
}

func (m *Manager) indexDelete(hash string) error {
	db, err := m.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketVideos)).Delete([]byte(hash))
	})
}

func (m *Manager) indexReset() error {
	db, err := m.openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketVideos)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketVideos))
		return err
	})
}

// Entries lists indexed videos, most recently updated first. Kinds whose
// file has since disappeared are dropped from the result.
func (m *Manager) Entries() ([]Entry, error) {
	var entries []Entry
	err := m.withLock(func() error {
		db, err := m.openIndex()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.View(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(bucketVideos)).ForEach(func(k, v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil {
					return fmt.Errorf("failed to unmarshal index entry: %w", err)
				}
				entries = append(entries, e)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		for k := range e.Kinds {
			if _, err := os.Stat(m.Path(k, e.Hash)); err != nil {
				delete(e.Kinds, k)
			}
		}
		if len(e.Kinds) > 0 {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Lookup returns the index entry whose hash starts with prefix. A prefix
// matching several videos is an error.
func (m *Manager) Lookup(prefix string) (*Entry, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	var found *Entry
	for i := range entries {
		if len(prefix) <= len(entries[i].Hash) && entries[i].Hash[:len(prefix)] == prefix {
			if found != nil {
				return nil, fmt.Errorf("cache key prefix %q is ambiguous", prefix)
			}
			found = &entries[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return found, nil
}
