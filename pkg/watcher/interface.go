// Package watcher analyzes videos as they appear in a folder.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/eternnoir/llmcuts/pkg/config"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

// FileWatcher watches a directory and feeds new videos to the pipeline
type FileWatcher interface {
	// Start begins watching. It returns once the watch is set up.
	Start(ctx context.Context) error

	// Stop waits for in-flight videos and releases the history database
	Stop() error

	SetProgressCallback(callback ProgressCallback)

	// GetStats returns a snapshot of the counters
	GetStats() *WatchStats

	// WaitForInitialProcessing completes once videos found at startup are done
	WaitForInitialProcessing() *sync.WaitGroup
}

// ProcessingTracker guards a path against concurrent processing
type ProcessingTracker interface {
	TryLock(path string) bool
	Unlock(path string)
	IsLocked(path string) bool
	// CleanupStale drops locks held longer than timeout
	CleanupStale(timeout time.Duration) int
	GetLocked() []string
}

// ProcessingHistory persists outcomes keyed by content hash
type ProcessingHistory interface {
	IsProcessed(hash string) (bool, error)
	RecordProcessed(hash string, info *ProcessedInfo) error
	// RecordFailed stores a failure, counting earlier attempts in RetryCount
	RecordFailed(hash string, info *FailedInfo) error
	GetProcessedInfo(hash string) (*ProcessedInfo, error)
	GetFailedInfo(hash string) (*FailedInfo, error)
	Close() error
}

// FileProcessor handles one video
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) error
	// CanProcess reports whether path matches and has stopped growing
	CanProcess(path string) bool
}

// Runner runs the analysis pipeline for one video
type Runner interface {
	Run(ctx context.Context, videoPath string, opts pipeline.Options) (*pipeline.Result, error)
}

// ClipExporter writes the clips for a finished analysis
type ClipExporter interface {
	ExportBatch(ctx context.Context, videoPath string, list []cuts.Cut, outDir string, q export.Quality, progress export.ProgressFunc) (*export.BatchResult, error)
}

// EventType classifies a progress event
type EventType string

const (
	EventFound      EventType = "found"
	EventProcessing EventType = "processing"
	EventProgress   EventType = "progress"
	EventExporting  EventType = "exporting"
	EventCompleted  EventType = "completed"
	EventFailed     EventType = "failed"
	EventSkipped    EventType = "skipped"
)

// ProgressCallback is called to report progress
type ProgressCallback func(event *ProgressEvent)

// ProgressEvent is one status update for a file
type ProgressEvent struct {
	Type     EventType
	FilePath string
	Message  string
	// Pipeline percent for EventProgress
	Percent float64
	Error   error
	// Settled means the path needs no further attempts until it changes
	Settled bool
	// Set on EventCompleted
	Clips     int
	Size      int64
	Timestamp time.Time
}

// ProcessedInfo describes a video that was analyzed successfully
type ProcessedInfo struct {
	FileHash    string        `json:"hash"`
	FilePath    string        `json:"filepath"`
	RunID       string        `json:"run_id"`
	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
	FileSize    int64         `json:"file_size"`
	CutCount    int           `json:"cut_count"`
	Outputs     []string      `json:"outputs,omitempty"`
}

// FailedInfo describes the last failed attempt for a video
type FailedInfo struct {
	FileHash   string    `json:"hash"`
	FilePath   string    `json:"filepath"`
	FailedAt   time.Time `json:"failed_at"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
}

// WatchStats counts outcomes since Start
type WatchStats struct {
	StartTime      time.Time
	ProcessedCount int
	FailedCount    int
	SkippedCount   int
	InProgress     int
	ClipCount      int
	TotalSize      int64
}

// MaxRetries bounds how often a failed video is attempted again when
// RetryFailed is set
const MaxRetries = 3

// WatchConfig contains configuration for the file watcher
type WatchConfig struct {
	WatchDir string

	// Case-insensitive base name globs, e.g. "*.mp4"
	Patterns  []string
	Recursive bool

	// Rescan period that catches files fsnotify missed
	Interval time.Duration

	// Size and mtime must hold still this long before a file is picked up
	StabilityWait time.Duration

	ProcessingTimeout time.Duration

	// Export clips after analysis into ExportDir/<video name>
	Export    bool
	ExportDir string
	Quality   export.Quality

	// Processed videos are moved here when set
	MoveToDir string

	HistoryDB string

	ProcessExisting bool
	RetryFailed     bool
	MaxWorkers      int

	// Re-run every step, transcription included, even when cached
	Force bool
}

// DefaultWatchConfig returns default configuration
func DefaultWatchConfig() *WatchConfig {
	return FromConfig(config.DefaultConfig(), "")
}

// FromConfig builds a WatchConfig for dir from the loaded configuration
func FromConfig(cfg *config.Config, dir string) *WatchConfig {
	w := cfg.Watch
	wc := &WatchConfig{
		WatchDir:          dir,
		Patterns:          append([]string(nil), w.Patterns...),
		Recursive:         w.Recursive,
		Interval:          w.Interval,
		StabilityWait:     w.StabilityWait,
		ProcessingTimeout: w.ProcessingTimeout,
		Export:            w.Export,
		ExportDir:         cfg.Export.OutputDir,
		Quality:           export.Quality(cfg.Export.Quality),
		MoveToDir:         w.MoveToDir,
		HistoryDB:         w.HistoryDB,
		ProcessExisting:   w.ProcessExisting,
		RetryFailed:       w.RetryFailed,
		MaxWorkers:        w.MaxWorkers,
	}
	if wc.MaxWorkers < 1 {
		wc.MaxWorkers = 1
	}
	if wc.Interval <= 0 {
		wc.Interval = 5 * time.Second
	}
	if wc.ProcessingTimeout <= 0 {
		wc.ProcessingTimeout = time.Hour
	}
	return wc
}
