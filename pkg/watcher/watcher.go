package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/logger"
)

const (
	debounceWindow  = 5 * time.Second
	cleanupInterval = 5 * time.Minute
)

// fileSig identifies one version of a file on disk
type fileSig struct {
	size    int64
	modTime time.Time
}

func sigOf(info os.FileInfo) fileSig {
	return fileSig{size: info.Size(), modTime: info.ModTime()}
}

type fileWatcher struct {
	config    *WatchConfig
	tracker   ProcessingTracker
	history   ProcessingHistory
	processor *fileProcessor
	fsw       *fsnotify.Watcher
	progress  ProgressCallback
	excluded  []string
	workers   int

	statsMu sync.RWMutex
	stats   WatchStats

	// queued paths wait in the channel; settled paths are done until they change
	stateMu sync.Mutex
	queued  map[string]bool
	settled map[string]fileSig
	recent  map[string]time.Time

	initial    sync.WaitGroup
	initialMu  sync.Mutex
	initialSet map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
	queue    chan string
	loopWG   sync.WaitGroup
	checksWG sync.WaitGroup
	workerWG sync.WaitGroup
}

// NewFileWatcher creates a watcher that analyzes videos with runner and,
// when config.Export is set, writes clips with exporter
func NewFileWatcher(config *WatchConfig, runner Runner, exporter ClipExporter, hasher *fingerprint.Hasher) (FileWatcher, error) {
	return newFileWatcher(config, runner, exporter, hasher)
}

func newFileWatcher(config *WatchConfig, runner Runner, exporter ClipExporter, hasher *fingerprint.Hasher) (*fileWatcher, error) {
	if config.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %s", config.Interval)
	}
	if config.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("processing timeout must be positive, got %s", config.ProcessingTimeout)
	}
	if info, err := os.Stat(config.WatchDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("watch directory %s is not a directory", config.WatchDir)
	}
	workers := config.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	history, err := NewProcessingHistory(config.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing history: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	tracker := NewProcessingTracker()
	fw := &fileWatcher{
		config:     config,
		tracker:    tracker,
		history:    history,
		fsw:        fsw,
		queued:     make(map[string]bool),
		settled:    make(map[string]fileSig),
		recent:     make(map[string]time.Time),
		initialSet: make(map[string]bool),
		stopCh:     make(chan struct{}),
		queue:      make(chan string, workers*2),
		workers:    workers,
		stats:      WatchStats{StartTime: time.Now()},
	}
	for _, dir := range []string{config.MoveToDir, config.ExportDir} {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			fw.excluded = append(fw.excluded, abs)
		}
	}

	fw.processor = NewFileProcessor(config, runner, exporter, hasher, tracker, history)
	fw.processor.SetProgressCallback(fw.handleProgressEvent)
	return fw, nil
}

// Start begins watching the configured directory
func (fw *fileWatcher) Start(ctx context.Context) error {
	log := logger.Component(ctx, "watcher")

	if err := fw.addWatchDir(fw.config.WatchDir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	for i := 0; i < fw.workers; i++ {
		fw.workerWG.Add(1)
		go fw.processWorker(ctx)
	}

	fw.loopWG.Add(1)
	go fw.cleanupRoutine()

	if err := fw.cleanupStaleMarkers(); err != nil {
		log.Warn().Err(err).Msg("Failed to clean up stale processing markers")
	}

	if fw.config.ProcessExisting {
		log.Info().Msg("Processing existing videos")
		if err := fw.processExistingFiles(); err != nil {
			log.Warn().Err(err).Msg("Failed to queue some existing videos")
		}
	}

	fw.loopWG.Add(1)
	go fw.watchLoop(ctx)

	log.Info().
		Str("directory", fw.config.WatchDir).
		Bool("recursive", fw.config.Recursive).
		Strs("patterns", fw.config.Patterns).
		Int("workers", fw.workers).
		Bool("export", fw.config.Export).
		Msg("File watcher started")
	return nil
}

// Stop shuts the watch down, lets workers finish their current video and
// closes the history database
func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		log := logger.WithComponent("watcher")
		log.Info().Msg("Stopping file watcher")

		close(fw.stopCh)
		if cerr := fw.fsw.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error closing watcher")
		}

		// Nothing sends on the queue once the loops and checks are done.
		fw.loopWG.Wait()
		fw.checksWG.Wait()
		close(fw.queue)
		fw.workerWG.Wait()

		if cerr := fw.history.Close(); cerr != nil {
			err = fmt.Errorf("failed to close history database: %w", cerr)
		}
		log.Info().Msg("File watcher stopped")
	})
	return err
}

// SetProgressCallback sets a callback for progress updates. Call it before
// Start.
func (fw *fileWatcher) SetProgressCallback(callback ProgressCallback) {
	fw.progress = callback
}

func (fw *fileWatcher) GetStats() *WatchStats {
	fw.statsMu.RLock()
	stats := fw.stats
	fw.statsMu.RUnlock()
	stats.InProgress = len(fw.tracker.GetLocked())
	return &stats
}

func (fw *fileWatcher) WaitForInitialProcessing() *sync.WaitGroup {
	return &fw.initial
}

func (fw *fileWatcher) addWatchDir(dir string) error {
	if err := fw.fsw.Add(dir); err != nil {
		return err
	}
	if !fw.config.Recursive {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == dir {
			return nil
		}
		if fw.isExcluded(path) {
			return filepath.SkipDir
		}
		return fw.fsw.Add(path)
	})
}

// walkFiles visits regular files under the watch directory, honoring
// Recursive and the excluded output directories
func (fw *fileWatcher) walkFiles(fn func(path string, info os.FileInfo) error) error {
	root := fw.config.WatchDir
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!fw.config.Recursive || fw.isExcluded(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		return fn(path, info)
	})
}

func (fw *fileWatcher) processExistingFiles() error {
	var found []string
	err := fw.walkFiles(func(path string, info os.FileInfo) error {
		if fw.isCandidate(path, info) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range fw.processor.filterStable(found) {
		fw.initialMu.Lock()
		fw.initialSet[path] = true
		fw.initial.Add(1)
		fw.initialMu.Unlock()

		if !fw.markQueued(path) {
			fw.finishInitial(path)
			continue
		}
		select {
		case fw.queue <- path:
			fw.reportFound(path)
		case <-fw.stopCh:
			fw.unmarkQueued(path)
			fw.finishInitial(path)
			return fmt.Errorf("watcher stopped")
		}
	}
	return nil
}

func (fw *fileWatcher) watchLoop(ctx context.Context) {
	defer fw.loopWG.Done()
	log := logger.Component(ctx, "watcher")

	ticker := time.NewTicker(fw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			fw.handleFileEvent(event)
		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			fw.periodicScan()
		}
	}
}

func (fw *fileWatcher) handleFileEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if strings.HasSuffix(path, markerSuffix) || fw.isExcluded(path) {
		return
	}
	log := logger.WithComponent("watcher").WithField("file", path)

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && fw.config.Recursive {
			if err := fw.addWatchDir(path); err != nil {
				log.Warn().Err(err).Msg("Failed to watch new directory")
			}
		}
		return
	}

	if fw.isDuplicateEvent(path) {
		log.Debug().Msg("Duplicate event ignored")
		return
	}
	if !fw.isCandidate(path, info) {
		return
	}

	// The stability wait runs off the loop so events keep flowing.
	fw.checksWG.Add(1)
	go func() {
		defer fw.checksWG.Done()
		if fw.processor.CanProcess(path) {
			fw.queueFile(path)
		}
	}()
}

// periodicScan catches files fsnotify missed and failures due for a retry
func (fw *fileWatcher) periodicScan() {
	var found []string
	_ = fw.walkFiles(func(path string, info os.FileInfo) error {
		if fw.isCandidate(path, info) {
			found = append(found, path)
		}
		return nil
	})
	if len(found) == 0 {
		return
	}
	for _, path := range fw.processor.filterStable(found) {
		fw.queueFile(path)
	}
}

// isCandidate filters out non-videos, paths already queued or in flight,
// and settled files that have not changed since
func (fw *fileWatcher) isCandidate(path string, info os.FileInfo) bool {
	if !fw.processor.matches(path) || fw.tracker.IsLocked(path) {
		return false
	}
	fw.stateMu.Lock()
	defer fw.stateMu.Unlock()
	if fw.queued[path] {
		return false
	}
	if sig, ok := fw.settled[path]; ok && sig == sigOf(info) {
		return false
	}
	return true
}

func (fw *fileWatcher) isExcluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range fw.excluded {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (fw *fileWatcher) markQueued(path string) bool {
	fw.stateMu.Lock()
	defer fw.stateMu.Unlock()
	if fw.queued[path] {
		return false
	}
	fw.queued[path] = true
	return true
}

func (fw *fileWatcher) unmarkQueued(path string) {
	fw.stateMu.Lock()
	delete(fw.queued, path)
	fw.stateMu.Unlock()
}

// queueFile hands path to the workers. A full queue drops the path; the
// next scan offers it again.
func (fw *fileWatcher) queueFile(path string) {
	if !fw.markQueued(path) {
		return
	}
	select {
	case <-fw.stopCh:
		fw.unmarkQueued(path)
	case fw.queue <- path:
		fw.reportFound(path)
	default:
		fw.unmarkQueued(path)
		logger.WithComponent("watcher").
			Warn().
			Str("file", path).
			Msg("Worker queue is full, deferring file")
	}
}

func (fw *fileWatcher) reportFound(path string) {
	fw.reportProgress(&ProgressEvent{
		Type:      EventFound,
		FilePath:  path,
		Message:   "Video queued for analysis",
		Timestamp: time.Now(),
	})
}

// processWorker drains the queue. After Stop it only releases the
// remaining entries.
func (fw *fileWatcher) processWorker(ctx context.Context) {
	defer fw.workerWG.Done()
	log := logger.Component(ctx, "worker")

	for path := range fw.queue {
		if ctx.Err() == nil && !fw.stopping() {
			log.Debug().Str("file", path).Msg("Processing video")
			if err := fw.processor.ProcessFile(ctx, path); err != nil {
				log.Error().Err(err).Str("file", path).Msg("Failed to process video")
			}
		}
		fw.unmarkQueued(path)
		fw.finishInitial(path)
	}
}

func (fw *fileWatcher) stopping() bool {
	select {
	case <-fw.stopCh:
		return true
	default:
		return false
	}
}

func (fw *fileWatcher) finishInitial(path string) {
	fw.initialMu.Lock()
	defer fw.initialMu.Unlock()
	if fw.initialSet[path] {
		delete(fw.initialSet, path)
		fw.initial.Done()
	}
}

func (fw *fileWatcher) cleanupRoutine() {
	defer fw.loopWG.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fw.stopCh:
			return
		case <-ticker.C:
			if n := fw.tracker.CleanupStale(fw.config.ProcessingTimeout); n > 0 {
				logger.WithComponent("watcher").Info().Int("cleaned", n).Msg("Cleaned up stale locks")
			}
			fw.pruneState()
		}
	}
}

// handleProgressEvent updates stats and settled state, then forwards
func (fw *fileWatcher) handleProgressEvent(event *ProgressEvent) {
	fw.statsMu.Lock()
	switch event.Type {
	case EventCompleted:
		fw.stats.ProcessedCount++
		fw.stats.ClipCount += event.Clips
		fw.stats.TotalSize += event.Size
	case EventFailed:
		fw.stats.FailedCount++
	case EventSkipped:
		fw.stats.SkippedCount++
	}
	fw.statsMu.Unlock()

	if event.Settled {
		if info, err := os.Stat(event.FilePath); err == nil {
			fw.stateMu.Lock()
			fw.settled[event.FilePath] = sigOf(info)
			fw.stateMu.Unlock()
		}
	}

	fw.reportProgress(event)
}

// cleanupStaleMarkers removes .processing markers left by a crashed run
func (fw *fileWatcher) cleanupStaleMarkers() error {
	log := logger.WithComponent("watcher")
	cleaned := 0
	err := fw.walkFiles(func(path string, info os.FileInfo) error {
		if !strings.HasSuffix(path, markerSuffix) || time.Since(info.ModTime()) <= fw.config.ProcessingTimeout {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("marker_file", path).Msg("Failed to remove stale marker")
			return nil
		}
		cleaned++
		return nil
	})
	if cleaned > 0 {
		log.Info().Int("cleaned_markers", cleaned).Msg("Cleaned up stale processing markers")
	}
	return err
}

func (fw *fileWatcher) isDuplicateEvent(path string) bool {
	fw.stateMu.Lock()
	defer fw.stateMu.Unlock()
	now := time.Now()
	if last, ok := fw.recent[path]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	fw.recent[path] = now
	return false
}

// pruneState forgets old events and settled files that no longer exist
func (fw *fileWatcher) pruneState() {
	fw.stateMu.Lock()
	defer fw.stateMu.Unlock()
	cutoff := time.Now().Add(-6 * debounceWindow)
	for path, at := range fw.recent {
		if at.Before(cutoff) {
			delete(fw.recent, path)
		}
	}
	for path := range fw.settled {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(fw.settled, path)
		}
	}
}

func (fw *fileWatcher) reportProgress(event *ProgressEvent) {
	if fw.progress != nil {
		fw.progress(event)
	}
}
