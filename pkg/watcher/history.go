package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketProcessed = []byte("processed")
	bucketFailed    = []byte("failed")
)

// boltHistory stores ProcessedInfo and FailedInfo as JSON, keyed by the
// video's content hash
type boltHistory struct {
	db *bolt.DB
}

// NewProcessingHistory opens (or creates) the history database at dbPath
func NewProcessingHistory(dbPath string) (ProcessingHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProcessed, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltHistory{db: db}, nil
}

func (h *boltHistory) IsProcessed(hash string) (bool, error) {
	var found bool
	err := h.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketProcessed).Get([]byte(hash)) != nil
		return nil
	})
	return found, err
}

// RecordProcessed stores info and clears any earlier failure for hash
func (h *boltHistory) RecordProcessed(hash string, info *ProcessedInfo) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketProcessed), hash, info); err != nil {
			return err
		}
		return tx.Bucket(bucketFailed).Delete([]byte(hash))
	})
}

func (h *boltHistory) RecordFailed(hash string, info *FailedInfo) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFailed)
		var prev FailedInfo
		if ok, err := getJSON(b, hash, &prev); err == nil && ok {
			info.RetryCount = prev.RetryCount + 1
		}
		return putJSON(b, hash, info)
	})
}

func (h *boltHistory) GetProcessedInfo(hash string) (*ProcessedInfo, error) {
	var info ProcessedInfo
	ok, err := h.get(bucketProcessed, hash, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

func (h *boltHistory) GetFailedInfo(hash string) (*FailedInfo, error) {
	var info FailedInfo
	ok, err := h.get(bucketFailed, hash, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

func (h *boltHistory) Close() error {
	return h.db.Close()
}

func (h *boltHistory) get(bucket []byte, hash string, v any) (bool, error) {
	var ok bool
	err := h.db.View(func(tx *bolt.Tx) error {
		var err error
		ok, err = getJSON(tx.Bucket(bucket), hash, v)
		return err
	})
	return ok, err
}

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode history record %s: %w", key, err)
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}
	if err := b.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to store history record: %w", err)
	}
	return nil
}
