package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

const markerSuffix = ".processing"

// fileProcessor runs the pipeline for one video and records the outcome
type fileProcessor struct {
	config   *WatchConfig
	runner   Runner
	exporter ClipExporter
	hasher   *fingerprint.Hasher
	tracker  ProcessingTracker
	history  ProcessingHistory
	progress ProgressCallback
	sleep    func(time.Duration)
}

// NewFileProcessor creates a processor. exporter may be nil when clips are
// never exported.
func NewFileProcessor(
	config *WatchConfig,
	runner Runner,
	exporter ClipExporter,
	hasher *fingerprint.Hasher,
	tracker ProcessingTracker,
	history ProcessingHistory,
) *fileProcessor {
	if hasher == nil {
		hasher = fingerprint.NewHasher()
	}
	return &fileProcessor{
		config:   config,
		runner:   runner,
		exporter: exporter,
		hasher:   hasher,
		tracker:  tracker,
		history:  history,
		sleep:    time.Sleep,
	}
}

// SetProgressCallback sets the progress callback
func (fp *fileProcessor) SetProgressCallback(callback ProgressCallback) {
	fp.progress = callback
}

// ProcessFile analyzes one video. Videos whose content hash is already in
// the processed history are skipped, as are earlier failures unless retries
// are enabled and remain.
func (fp *fileProcessor) ProcessFile(ctx context.Context, path string) error {
	log := logger.Component(ctx, "processor").WithField("file", filepath.Base(path))

	if !fp.matches(path) {
		fp.report(EventSkipped, path, "File cannot be processed", nil, false)
		return nil
	}
	if !fp.tracker.TryLock(path) {
		fp.report(EventSkipped, path, "File is already being processed", nil, false)
		return nil
	}
	defer fp.tracker.Unlock(path)

	marker := path + markerSuffix
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		log.Warn().Err(err).Msg("Failed to create processing marker")
	}
	defer func() { _ = os.Remove(marker) }()

	id, err := fp.hasher.Identify(path)
	if err != nil {
		fp.report(EventFailed, path, "Could not read video", err, false)
		return fmt.Errorf("failed to hash video: %w", err)
	}
	log = log.WithField("hash", fingerprint.Short(id.Hash))

	if skip, reason := fp.seenBefore(id.Hash); skip {
		log.Debug().Msg(reason)
		fp.report(EventSkipped, path, reason, nil, true)
		return nil
	}

	fp.report(EventProcessing, path, "Starting analysis", nil, false)
	log.Info().Msg("Starting analysis")
	started := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	if fp.config.ProcessingTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, fp.config.ProcessingTimeout)
	}
	defer cancel()

	result, outputs, err := fp.analyze(runCtx, path)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a verdict on the video.
			return ctx.Err()
		}
		return fp.fail(path, id, err)
	}

	info := &ProcessedInfo{
		FileHash:    id.Hash,
		FilePath:    path,
		RunID:       result.RunID,
		ProcessedAt: time.Now(),
		Duration:    time.Since(started),
		FileSize:    id.Size,
		CutCount:    result.Stats.Count,
		Outputs:     outputs,
	}
	if err := fp.history.RecordProcessed(id.Hash, info); err != nil {
		log.Warn().Err(err).Msg("Failed to record success in history")
	}

	if fp.config.MoveToDir != "" {
		dest, err := moveFile(path, fp.config.MoveToDir)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to move processed video")
		} else {
			log.Info().Str("dest", dest).Msg("Moved processed video")
		}
	}

	msg := fmt.Sprintf("%d cuts found in %s", result.Stats.Count, time.Since(started).Round(time.Second))
	if len(outputs) > 0 {
		msg += fmt.Sprintf(", %d clips exported", len(outputs))
	}
	fp.emit(&ProgressEvent{
		Type:      EventCompleted,
		FilePath:  path,
		Message:   msg,
		Clips:     len(outputs),
		Size:      id.Size,
		Settled:   true,
		Timestamp: time.Now(),
	})

	log.Info().
		Int("cuts", result.Stats.Count).
		Int("clips", len(outputs)).
		Bool("from_cache", result.FromCache).
		Dur("duration", time.Since(started)).
		Msg("Video processed successfully")
	return nil
}

func (fp *fileProcessor) analyze(ctx context.Context, path string) (*pipeline.Result, []string, error) {
	result, err := fp.runner.Run(ctx, path, pipeline.Options{
		Force: fp.config.Force,
		Progress: func(p pipeline.Progress) {
			fp.emit(&ProgressEvent{
				Type:      EventProgress,
				FilePath:  path,
				Message:   p.Phase.Label(),
				Percent:   p.Percent,
				Timestamp: time.Now(),
			})
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analysis failed: %w", err)
	}
	if !fp.config.Export || fp.exporter == nil || result.Final == nil || len(result.Final.Cuts) == 0 {
		return result, nil, nil
	}

	outDir := fp.exportDir(path)
	fp.report(EventExporting, path, fmt.Sprintf("Exporting %d clips to %s", len(result.Final.Cuts), outDir), nil, false)
	batch, err := fp.exporter.ExportBatch(ctx, path, result.Final.Cuts, outDir, fp.config.Quality, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("export failed: %w", err)
	}
	if len(batch.Outputs) == 0 && len(batch.Failed) > 0 {
		return nil, nil, fmt.Errorf("export failed: %w", batch.Failed[0].Err)
	}
	if len(batch.Failed) > 0 {
		logger.Component(ctx, "processor").Warn().
			Str("file", filepath.Base(path)).
			Int("failed", len(batch.Failed)).
			Msg("Some clips could not be exported")
	}
	return result, batch.Outputs, nil
}

// exportDir is ExportDir/<video name>, or a clips folder next to the video
func (fp *fileProcessor) exportDir(path string) string {
	base := filepath.Base(path)
	stem := export.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	root := fp.config.ExportDir
	if root == "" {
		root = filepath.Join(filepath.Dir(path), "clips")
	}
	return filepath.Join(root, stem)
}

// seenBefore consults the history for hash
func (fp *fileProcessor) seenBefore(hash string) (bool, string) {
	processed, err := fp.history.IsProcessed(hash)
	if err != nil {
		logger.WithComponent("processor").Warn().Err(err).Msg("Failed to check processing history")
		return false, ""
	}
	if processed {
		return true, "Video already processed"
	}

	failed, err := fp.history.GetFailedInfo(hash)
	if err != nil || failed == nil {
		return false, ""
	}
	if fp.canRetry(failed) {
		return false, ""
	}
	return true, fmt.Sprintf("Video failed before: %s", failed.Error)
}

func (fp *fileProcessor) canRetry(f *FailedInfo) bool {
	return fp.config.RetryFailed && f.RetryCount < MaxRetries
}

func (fp *fileProcessor) fail(path string, id *fingerprint.Identity, cause error) error {
	info := &FailedInfo{
		FileHash: id.Hash,
		FilePath: path,
		FailedAt: time.Now(),
		Error:    cause.Error(),
	}
	if err := fp.history.RecordFailed(id.Hash, info); err != nil {
		logger.WithComponent("processor").Warn().Err(err).Msg("Failed to record failure in history")
	}
	fp.report(EventFailed, path, "Analysis failed", cause, !fp.canRetry(info))
	return cause
}

// CanProcess reports whether path matches the patterns and has held still
// for StabilityWait
func (fp *fileProcessor) CanProcess(path string) bool {
	return fp.matches(path) && len(fp.filterStable([]string{path})) == 1
}

// matches checks for a non-empty regular file, the patterns and the
// processing marker
func (fp *fileProcessor) matches(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}
	if !matchPatterns(fp.config.Patterns, filepath.Base(path)) {
		return false
	}
	_, err = os.Stat(path + markerSuffix)
	return os.IsNotExist(err)
}

func matchPatterns(patterns []string, name string) bool {
	name = strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), name); ok {
			return true
		}
	}
	return false
}

// filterStable returns the paths whose size and mtime did not change over
// one StabilityWait
func (fp *fileProcessor) filterStable(paths []string) []string {
	before := make(map[string]os.FileInfo, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			before[p] = info
		}
	}
	if len(before) == 0 {
		return nil
	}
	if fp.config.StabilityWait > 0 {
		fp.sleep(fp.config.StabilityWait)
	}

	var stable []string
	for _, p := range paths {
		b, ok := before[p]
		if !ok {
			continue
		}
		a, err := os.Stat(p)
		if err == nil && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime()) {
			stable = append(stable, p)
		}
	}
	return stable
}

// moveFile moves path into dir and returns the new location. An existing
// file of the same name is never overwritten.
func moveFile(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create move-to directory: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		dest = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext))
	}

	err := os.Rename(path, dest)
	if err == nil {
		return dest, nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return dest, copyThenDelete(path, dest)
	}
	return "", fmt.Errorf("failed to move file: %w", err)
}

// copyThenDelete moves across filesystems
func copyThenDelete(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	mode := os.FileMode(0o644)
	if st, err := in.Stat(); err == nil {
		mode = st.Mode().Perm()
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to sync destination file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	_ = in.Close()

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to delete original file after copy: %w", err)
	}
	return nil
}

// report emits an event. settled marks the path as done until it changes.
func (fp *fileProcessor) report(t EventType, path, msg string, err error, settled bool) {
	fp.emit(&ProgressEvent{
		Type:      t,
		FilePath:  path,
		Message:   msg,
		Error:     err,
		Settled:   settled,
		Timestamp: time.Now(),
	})
}

func (fp *fileProcessor) emit(e *ProgressEvent) {
	if fp.progress != nil {
		fp.progress(e)
	}
}
