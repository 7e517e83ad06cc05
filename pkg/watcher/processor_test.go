package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []string
	ctxErr error
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, videoPath string, opts pipeline.Options) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, videoPath)
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	if opts.Progress != nil {
		opts.Progress(pipeline.Progress{Phase: pipeline.PhaseComplete, Percent: 100})
	}
	if f.err != nil {
		return nil, f.err
	}
	list := []cuts.Cut{
		{Start: "00:00:00", End: "00:00:40", Title: "Opening"},
		{Start: "00:00:40", End: "00:01:30", Title: "Demo"},
	}
	return &pipeline.Result{
		RunID: "run-1",
		Final: &cuts.Final{Cuts: list},
		Stats: cuts.Summarize(list, 90),
	}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeExporter struct {
	mu     sync.Mutex
	outDir string
	err    error
}

func (f *fakeExporter) ExportBatch(ctx context.Context, videoPath string, list []cuts.Cut, outDir string, q export.Quality, progress export.ProgressFunc) (*export.BatchResult, error) {
	f.mu.Lock()
	f.outDir = outDir
	f.mu.Unlock()
	if f.err != nil {
		return &export.BatchResult{Failed: []export.Failure{{Cut: list[0], Err: f.err}}}, nil
	}
	res := &export.BatchResult{}
	for _, c := range list {
		res.Outputs = append(res.Outputs, filepath.Join(outDir, c.Title+".mp4"))
	}
	return res, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []*ProgressEvent
}

func (l *eventLog) add(e *ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) last() *ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	return l.events[len(l.events)-1]
}

func (l *eventLog) has(t EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

type processorHarness struct {
	dir     string
	config  *WatchConfig
	runner  *fakeRunner
	history ProcessingHistory
	events  *eventLog
	fp      *fileProcessor
}

func newProcessorHarness(t *testing.T, configure func(*WatchConfig)) *processorHarness {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultWatchConfig()
	cfg.WatchDir = dir
	cfg.StabilityWait = 0
	cfg.HistoryDB = filepath.Join(t.TempDir(), "watch.db")
	if configure != nil {
		configure(cfg)
	}

	history, err := NewProcessingHistory(cfg.HistoryDB)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = history.Close() })

	h := &processorHarness{
		dir:     dir,
		config:  cfg,
		runner:  &fakeRunner{},
		history: history,
		events:  &eventLog{},
	}
	h.fp = NewFileProcessor(cfg, h.runner, &fakeExporter{}, nil, NewProcessingTracker(), history)
	h.fp.SetProgressCallback(h.events.add)
	return h
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessFile(t *testing.T) {
	exportDir := t.TempDir()
	h := newProcessorHarness(t, func(c *WatchConfig) {
		c.Export = true
		c.ExportDir = exportDir
	})
	exporter := &fakeExporter{}
	h.fp.exporter = exporter
	video := writeFile(t, filepath.Join(h.dir, "Talk: One.mp4"), "video bytes")

	if err := h.fp.ProcessFile(context.Background(), video); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if h.runner.count() != 1 {
		t.Fatalf("runner calls = %d, want 1", h.runner.count())
	}
	if want := filepath.Join(exportDir, "Talk_ One"); exporter.outDir != want {
		t.Errorf("export dir = %q, want %q", exporter.outDir, want)
	}

	last := h.events.last()
	if last.Type != EventCompleted || !last.Settled || last.Clips != 2 {
		t.Errorf("last event = %+v", last)
	}
	if !h.events.has(EventProgress) || !h.events.has(EventExporting) {
		t.Error("missing progress or exporting events")
	}
	if _, err := os.Stat(video + markerSuffix); !os.IsNotExist(err) {
		t.Error("processing marker was left behind")
	}
}

func TestProcessFileTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"unset timeout does not cancel the run", 0},
		{"negative timeout does not cancel the run", -time.Minute},
		{"positive timeout", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newProcessorHarness(t, func(c *WatchConfig) { c.ProcessingTimeout = tt.timeout })
			video := writeFile(t, filepath.Join(h.dir, "talk.mp4"), "video bytes")

			if err := h.fp.ProcessFile(context.Background(), video); err != nil {
				t.Fatalf("ProcessFile() error = %v", err)
			}
			if h.runner.ctxErr != nil {
				t.Errorf("Run() context error = %v, want nil", h.runner.ctxErr)
			}
			if last := h.events.last(); last.Type != EventCompleted {
				t.Errorf("last event = %+v, want completed", last)
			}
		})
	}
}

func TestProcessFileSkipsKnownContent(t *testing.T) {
	h := newProcessorHarness(t, nil)
	first := writeFile(t, filepath.Join(h.dir, "a.mp4"), "same content")
	copyPath := writeFile(t, filepath.Join(h.dir, "b.MP4"), "same content")

	for _, p := range []string{first, copyPath} {
		if err := h.fp.ProcessFile(context.Background(), p); err != nil {
			t.Fatalf("ProcessFile(%s) error = %v", p, err)
		}
	}
	if h.runner.count() != 1 {
		t.Errorf("runner calls = %d, want 1", h.runner.count())
	}
	last := h.events.last()
	if last.Type != EventSkipped || !last.Settled {
		t.Errorf("last event = %+v, want settled skip", last)
	}
}

func TestProcessFileFailures(t *testing.T) {
	tests := []struct {
		name        string
		retryFailed bool
		attempts    int
		wantRuns    int
	}{
		{"no retry", false, 3, 1},
		{"retry until limit", true, 6, MaxRetries + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newProcessorHarness(t, func(c *WatchConfig) { c.RetryFailed = tt.retryFailed })
			h.runner.err = errors.New("no audio")
			video := writeFile(t, filepath.Join(h.dir, "a.mp4"), "bytes")

			for i := 0; i < tt.attempts; i++ {
				_ = h.fp.ProcessFile(context.Background(), video)
			}
			if h.runner.count() != tt.wantRuns {
				t.Errorf("runner calls = %d, want %d", h.runner.count(), tt.wantRuns)
			}
			last := h.events.last()
			if !last.Settled {
				t.Errorf("last event = %+v, want settled", last)
			}
		})
	}
}

func TestProcessFileFailureEvent(t *testing.T) {
	h := newProcessorHarness(t, func(c *WatchConfig) { c.RetryFailed = true })
	h.runner.err = errors.New("no audio")
	video := writeFile(t, filepath.Join(h.dir, "a.mp4"), "bytes")

	err := h.fp.ProcessFile(context.Background(), video)
	if err == nil {
		t.Fatal("ProcessFile() expected error")
	}
	last := h.events.last()
	if last.Type != EventFailed || last.Settled || last.Error == nil {
		t.Errorf("last event = %+v, want unsettled failure", last)
	}

	id, _ := h.fp.hasher.Identify(video)
	info, _ := h.history.GetFailedInfo(id.Hash)
	if info == nil || info.Error == "" {
		t.Errorf("GetFailedInfo() = %+v", info)
	}
}

func TestProcessFileExportFailure(t *testing.T) {
	h := newProcessorHarness(t, func(c *WatchConfig) { c.Export = true })
	h.fp.exporter = &fakeExporter{err: errors.New("disk full")}
	video := writeFile(t, filepath.Join(h.dir, "a.mp4"), "bytes")

	if err := h.fp.ProcessFile(context.Background(), video); err == nil {
		t.Fatal("ProcessFile() expected error when every clip fails")
	}
	id, _ := h.fp.hasher.Identify(video)
	if ok, _ := h.history.IsProcessed(id.Hash); ok {
		t.Error("video recorded as processed")
	}
}

func TestProcessFileMoves(t *testing.T) {
	moveTo := filepath.Join(t.TempDir(), "done")
	h := newProcessorHarness(t, func(c *WatchConfig) { c.MoveToDir = moveTo })
	video := writeFile(t, filepath.Join(h.dir, "a.mp4"), "bytes")
	writeFile(t, filepath.Join(moveTo, "a.mp4"), "older")

	if err := h.fp.ProcessFile(context.Background(), video); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if _, err := os.Stat(video); !os.IsNotExist(err) {
		t.Error("video still in watch directory")
	}
	entries, _ := os.ReadDir(moveTo)
	if len(entries) != 2 {
		t.Errorf("move-to entries = %d, want 2", len(entries))
	}
}

func TestCanProcess(t *testing.T) {
	h := newProcessorHarness(t, nil)
	video := writeFile(t, filepath.Join(h.dir, "clip.MOV"), "bytes")
	notes := writeFile(t, filepath.Join(h.dir, "notes.txt"), "bytes")
	busy := writeFile(t, filepath.Join(h.dir, "busy.mp4"), "bytes")
	writeFile(t, busy+markerSuffix, "now")

	tests := []struct {
		path string
		want bool
	}{
		{video, true},
		{notes, false},
		{busy, false},
		{filepath.Join(h.dir, "gone.mp4"), false},
		{h.dir, false},
	}
	for _, tt := range tests {
		if got := h.fp.CanProcess(tt.path); got != tt.want {
			t.Errorf("CanProcess(%s) = %v, want %v", filepath.Base(tt.path), got, tt.want)
		}
	}
}

func TestFilterStable(t *testing.T) {
	h := newProcessorHarness(t, func(c *WatchConfig) { c.StabilityWait = time.Second })
	steady := writeFile(t, filepath.Join(h.dir, "steady.mp4"), "done")
	growing := writeFile(t, filepath.Join(h.dir, "growing.mp4"), "part")

	h.fp.sleep = func(d time.Duration) {
		if d != time.Second {
			t.Errorf("sleep(%v), want 1s", d)
		}
		f, err := os.OpenFile(growing, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = f.WriteString("more")
		_ = f.Close()
	}

	got := h.fp.filterStable([]string{steady, growing, filepath.Join(h.dir, "missing.mp4")})
	if len(got) != 1 || got[0] != steady {
		t.Errorf("filterStable() = %v, want [%s]", got, steady)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := DefaultWatchConfig()
	if cfg.MaxWorkers != 1 || cfg.HistoryDB != ".llmcuts-watch.db" || cfg.Quality != export.QualityOriginal {
		t.Errorf("DefaultWatchConfig() = %+v", cfg)
	}
	if !matchPatterns(cfg.Patterns, "LECTURE.MKV") {
		t.Error("default patterns do not match LECTURE.MKV")
	}
}
