package watcher

import (
	"path/filepath"
	"testing"
	"time"
)

func openHistory(t *testing.T, path string) ProcessingHistory {
	t.Helper()
	h, err := NewProcessingHistory(path)
	if err != nil {
		t.Fatalf("NewProcessingHistory() error = %v", err)
	}
	return h
}

func TestHistoryProcessed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "watch.db")
	h := openHistory(t, dbPath)

	if ok, err := h.IsProcessed("abc"); err != nil || ok {
		t.Fatalf("IsProcessed() = %v, %v, want false", ok, err)
	}
	info := &ProcessedInfo{FileHash: "abc", FilePath: "/v/a.mp4", CutCount: 4, Outputs: []string{"x.mp4"}, ProcessedAt: time.Now()}
	if err := h.RecordProcessed("abc", info); err != nil {
		t.Fatalf("RecordProcessed() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	// Survives a reopen.
	h = openHistory(t, dbPath)
	defer h.Close()
	if ok, _ := h.IsProcessed("abc"); !ok {
		t.Error("IsProcessed() = false after reopen")
	}
	got, err := h.GetProcessedInfo("abc")
	if err != nil || got == nil {
		t.Fatalf("GetProcessedInfo() = %v, %v", got, err)
	}
	if got.CutCount != 4 || len(got.Outputs) != 1 || got.FilePath != "/v/a.mp4" {
		t.Errorf("GetProcessedInfo() = %+v", got)
	}
	if missing, err := h.GetProcessedInfo("nope"); err != nil || missing != nil {
		t.Errorf("GetProcessedInfo(nope) = %v, %v, want nil", missing, err)
	}
}

func TestHistoryFailed(t *testing.T) {
	h := openHistory(t, filepath.Join(t.TempDir(), "watch.db"))
	defer h.Close()

	for i := 0; i < 3; i++ {
		if err := h.RecordFailed("abc", &FailedInfo{FileHash: "abc", Error: "boom"}); err != nil {
			t.Fatalf("RecordFailed() error = %v", err)
		}
	}
	got, err := h.GetFailedInfo("abc")
	if err != nil || got == nil {
		t.Fatalf("GetFailedInfo() = %v, %v", got, err)
	}
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}

	if err := h.RecordProcessed("abc", &ProcessedInfo{FileHash: "abc"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.GetFailedInfo("abc"); got != nil {
		t.Errorf("GetFailedInfo() after success = %+v, want nil", got)
	}
}
