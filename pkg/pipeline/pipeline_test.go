package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/llm"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/prompts"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

const topicsReply = `{"topics":[{"id":1,"title":"Opening","description":"How it starts"}],"summary":{"total_topics":1}}`

const cutsReply = "```json\n" + `{"cuts":[
  {"start":"00:04:00","end":"00:06:00","title":"Wrap","description":"Closing."},
  {"start":"00:00:00","end":"00:02:00","title":"Intro","description":"Opening."},
  {"start":"00:02:00","end":"00:02:10","title":"Aside","description":"A digression."},
  {"start":"00:09:00","end":"00:10:00","title":"Beyond","description":"Past the end."}
]}` + "\n```"

type fakeValidator struct {
	info *media.VideoInfo
	err  error
}

func (f *fakeValidator) ValidateFile(ctx context.Context, path string) (*media.VideoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.Path = path
	return &info, nil
}

type fakeAudio struct {
	mu      sync.Mutex
	dir     string
	ensured int
	removed []string
}

func (f *fakeAudio) Ensure(ctx context.Context, hash, videoPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	path := filepath.Join(f.dir, hash+".wav")
	return path, os.WriteFile(path, []byte("RIFF"), 0o644)
}

func (f *fakeAudio) Remove(hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, hash)
	return nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	err   error
	hook  func()
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, duration float64, opts transcriber.Options, progress transcriber.ProgressFunc) (*transcriber.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if progress != nil {
		progress(0.5, "halfway")
		progress(1, "done")
	}
	return &transcriber.Transcript{
		Text:     "hello world",
		Language: opts.Language,
		Duration: duration,
		Segments: []transcriber.Segment{{ID: 1, Start: 0, End: 5, Text: "hello world"}},
	}, nil
}

type fakeCompleter struct {
	mu       sync.Mutex
	requests []llm.Request
	replies  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return nil, llm.ErrAllModelsFailed
	}
	content := f.replies[0]
	f.replies = f.replies[1:]
	if req.JSON {
		var err error
		if content, err = llm.ExtractJSON(content); err != nil {
			return nil, err
		}
		if req.Decode != nil {
			if err := req.Decode(content); err != nil {
				return nil, fmt.Errorf("%w: %v", llm.ErrAllModelsFailed, err)
			}
		}
	}
	return &llm.Response{Content: content, Model: "gpt-4o"}, nil
}

type harness struct {
	video     string
	store     *cache.Manager
	validator *fakeValidator
	audio     *fakeAudio
	tr        *fakeTranscriber
	completer *fakeCompleter
	pipeline  *Pipeline
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(video, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	loader, err := prompts.NewLoader("")
	if err != nil {
		t.Fatal(err)
	}
	audioDir := filepath.Join(dir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		video:     video,
		store:     store,
		validator: &fakeValidator{info: &media.VideoInfo{Filename: "talk.mp4", Duration: 300, Resolution: "1920x1080", FPS: 30, HasAudio: true}},
		audio:     &fakeAudio{dir: audioDir},
		tr:        &fakeTranscriber{},
		completer: &fakeCompleter{replies: []string{topicsReply, cutsReply}},
	}
	h.pipeline = New(store, h.validator, h.audio, h.tr, h.completer, loader, WithSettings(settings))
	return h
}

func defaultSettings() Settings {
	return Settings{MinCutDuration: 30, MaxCuts: 10, Language: "en", KeepAudio: true}
}

func TestRunFullPipeline(t *testing.T) {
	settings := defaultSettings()
	settings.KeepAudio = false
	h := newHarness(t, settings)

	var updates []Progress
	res, err := h.pipeline.Run(context.Background(), h.video, Options{
		Progress: func(p Progress) { updates = append(updates, p) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.FromCache || res.RunID == "" || len(res.Hash) != 64 || res.Model != "gpt-4o" {
		t.Errorf("Run() result = %+v", res)
	}
	got := res.Final.Cuts
	if len(got) != 2 {
		t.Fatalf("cuts = %+v, want 2", got)
	}
	if got[0].Title != "Intro" || got[0].Start != "00:00:00" || got[0].End != "00:02:00" {
		t.Errorf("cut 1 = %+v", got[0])
	}
	if got[1].Title != "Aside + Wrap" || got[1].Start != "00:02:00" || got[1].End != "00:05:00" || got[1].ID != 2 {
		t.Errorf("cut 2 = %+v", got[1])
	}
	if res.Final.VideoInfo.Duration != "00:05:00" || res.Final.VideoInfo.TotalCuts != 2 {
		t.Errorf("video info = %+v", res.Final.VideoInfo)
	}
	if res.Stats.Count != 2 || res.Stats.CoveragePercent != 100 {
		t.Errorf("stats = %+v", res.Stats)
	}

	// prompts carry the transcript and the topics
	if len(h.completer.requests) != 2 {
		t.Fatalf("completer requests = %d, want 2", len(h.completer.requests))
	}
	if !strings.Contains(h.completer.requests[0].Prompt, "hello world") || !h.completer.requests[0].JSON {
		t.Error("topics prompt missing transcript")
	}
	if !strings.Contains(h.completer.requests[1].Prompt, "Opening") {
		t.Error("cuts prompt missing topics")
	}

	for _, k := range cache.Kinds {
		if !h.store.Has(k, res.Hash) {
			t.Errorf("cache missing %s record", k)
		}
	}
	if len(h.audio.removed) != 1 || h.audio.removed[0] != res.Hash {
		t.Errorf("audio removed = %v", h.audio.removed)
	}

	// phases in order, percent never decreases, ends at 100
	if len(updates) == 0 {
		t.Fatal("no progress reported")
	}
	last := 0.0
	for _, u := range updates {
		if u.Percent < last {
			t.Errorf("progress went backwards: %+v after %v", u, last)
		}
		last = u.Percent
	}
	final := updates[len(updates)-1]
	if final.Phase != PhaseComplete || final.Percent != 100 {
		t.Errorf("final progress = %+v", final)
	}
	seen := map[Phase]bool{}
	for _, u := range updates {
		seen[u.Phase] = true
	}
	for _, p := range []Phase{PhaseExtractingAudio, PhaseGeneratingTranscription, PhaseAnalyzingWithAI, PhaseFinalizing} {
		if !seen[p] {
			t.Errorf("phase %s not reported", p)
		}
	}
}

func TestRunUsesCachedCuts(t *testing.T) {
	h := newHarness(t, defaultSettings())
	first, err := h.pipeline.Run(context.Background(), h.video, Options{})
	if err != nil {
		t.Fatal(err)
	}

	var updates []Progress
	second, err := h.pipeline.Run(context.Background(), h.video, Options{
		Progress: func(p Progress) { updates = append(updates, p) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !second.FromCache || second.Hash != first.Hash || len(second.Final.Cuts) != 2 {
		t.Errorf("second run = %+v", second)
	}
	if second.Stats.Count != 2 {
		t.Errorf("cached stats = %+v", second.Stats)
	}
	if h.tr.calls != 1 || len(h.completer.requests) != 2 || h.audio.ensured != 1 {
		t.Errorf("calls transcribe=%d complete=%d ensure=%d, want 1/2/1", h.tr.calls, len(h.completer.requests), h.audio.ensured)
	}
	if len(updates) != 1 || updates[0].Phase != PhaseComplete {
		t.Errorf("cached progress = %+v", updates)
	}
	if len(h.audio.removed) != 0 {
		t.Errorf("audio removed with KeepAudio set: %v", h.audio.removed)
	}
}

func TestRunReusesTranscriptionAndTopics(t *testing.T) {
	h := newHarness(t, defaultSettings())
	res, err := h.pipeline.Run(context.Background(), h.video, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(h.store.Path(cache.KindCuts, res.Hash)); err != nil {
		t.Fatal(err)
	}

	// cached transcription and topics: only the cuts request goes out
	h.completer.replies = []string{cutsReply}
	if _, err := h.pipeline.Run(context.Background(), h.video, Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.tr.calls != 1 || len(h.completer.requests) != 3 {
		t.Errorf("calls transcribe=%d complete=%d, want 1/3", h.tr.calls, len(h.completer.requests))
	}

	// SkipTopicsCache regenerates topics and cuts even with cuts cached,
	// but keeps the transcription
	h.completer.replies = []string{topicsReply, cutsReply}
	again, err := h.pipeline.Run(context.Background(), h.video, Options{SkipTopicsCache: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if again.FromCache {
		t.Errorf("Run() FromCache = %v, want false", again.FromCache)
	}
	if h.tr.calls != 1 || len(h.completer.requests) != 5 {
		t.Errorf("calls transcribe=%d complete=%d, want 1/5", h.tr.calls, len(h.completer.requests))
	}
}

func TestRunCacheOptions(t *testing.T) {
	tests := []struct {
		name           string
		opts           Options
		wantFromCache  bool
		wantTranscribe int
		wantRequests   int
	}{
		{name: "defaults", opts: Options{}, wantFromCache: true, wantTranscribe: 1, wantRequests: 2},
		{name: "skip topics cache", opts: Options{SkipTopicsCache: true}, wantTranscribe: 1, wantRequests: 4},
		{name: "force", opts: Options{Force: true}, wantTranscribe: 2, wantRequests: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, defaultSettings())
			if _, err := h.pipeline.Run(context.Background(), h.video, Options{}); err != nil {
				t.Fatal(err)
			}
			h.completer.replies = []string{topicsReply, cutsReply}
			res, err := h.pipeline.Run(context.Background(), h.video, tt.opts)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.FromCache != tt.wantFromCache {
				t.Errorf("Run() FromCache = %v, want %v", res.FromCache, tt.wantFromCache)
			}
			if h.tr.calls != tt.wantTranscribe {
				t.Errorf("Transcribe() calls = %v, want %v", h.tr.calls, tt.wantTranscribe)
			}
			if len(h.completer.requests) != tt.wantRequests {
				t.Errorf("Complete() calls = %v, want %v", len(h.completer.requests), tt.wantRequests)
			}
		})
	}
}

func TestRunForce(t *testing.T) {
	h := newHarness(t, defaultSettings())
	if _, err := h.pipeline.Run(context.Background(), h.video, Options{}); err != nil {
		t.Fatal(err)
	}
	h.completer.replies = []string{topicsReply, cutsReply}
	res, err := h.pipeline.Run(context.Background(), h.video, Options{Force: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FromCache || h.tr.calls != 2 || len(h.completer.requests) != 4 {
		t.Errorf("forced run: fromCache=%v transcribe=%d complete=%d", res.FromCache, h.tr.calls, len(h.completer.requests))
	}
}

func TestRunWithoutCompleter(t *testing.T) {
	h := newHarness(t, defaultSettings())
	loader, _ := prompts.NewLoader("")
	p := New(h.store, h.validator, h.audio, h.tr, nil, loader)

	_, err := p.Run(context.Background(), h.video, Options{})
	if !errors.Is(err, ErrNoCompleter) {
		t.Fatalf("Run() error = %v, want ErrNoCompleter", err)
	}
	// the transcription is still cached for the next run
	entries, err := h.store.Entries()
	if err != nil || len(entries) != 1 || !entries[0].Has(cache.KindTranscription) {
		t.Errorf("Entries() = %+v, %v", entries, err)
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("no audio", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		h.validator.err = media.ErrNoAudio
		_, err := h.pipeline.Run(context.Background(), h.video, Options{})
		if !errors.Is(err, media.ErrNoAudio) {
			t.Errorf("Run() error = %v, want ErrNoAudio", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		_, err := h.pipeline.Run(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), Options{})
		if err == nil {
			t.Error("Run() expected error")
		}
	})

	t.Run("transcription failure", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		h.tr.err = transcriber.ErrAllModelsFailed
		_, err := h.pipeline.Run(context.Background(), h.video, Options{})
		if !errors.Is(err, transcriber.ErrAllModelsFailed) {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("all models failed", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		h.completer.replies = nil
		_, err := h.pipeline.Run(context.Background(), h.video, Options{})
		if !errors.Is(err, llm.ErrAllModelsFailed) {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("cuts reply with wrong field types", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		h.completer.replies = []string{topicsReply, `{"cuts":[{"id":"1","start":"00:00:00","end":"00:02:00","title":"Intro"}]}`}
		_, err := h.pipeline.Run(context.Background(), h.video, Options{})
		if !errors.Is(err, llm.ErrAllModelsFailed) {
			t.Errorf("Run() error = %v, want ErrAllModelsFailed", err)
		}
		entries, _ := h.store.Entries()
		if len(entries) != 1 || entries[0].Has(cache.KindCuts) {
			t.Errorf("Entries() = %+v, want no cached cuts", entries)
		}
	})

	t.Run("no valid cuts", func(t *testing.T) {
		h := newHarness(t, defaultSettings())
		h.completer.replies = []string{topicsReply, `{"cuts":[{"start":"00:20:00","end":"00:21:00","title":"Late"}]}`}
		res, err := h.pipeline.Run(context.Background(), h.video, Options{})
		if !errors.Is(err, cuts.ErrNoValidCuts) {
			t.Errorf("Run() error = %v, want ErrNoValidCuts", err)
		}
		if res != nil {
			t.Errorf("Run() result = %+v, want nil", res)
		}
	})
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, defaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	h.tr.hook = cancel

	_, err := h.pipeline.Run(ctx, h.video, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(h.completer.requests) != 0 {
		t.Errorf("completer called %d times after cancel", len(h.completer.requests))
	}
}

func TestRunAsync(t *testing.T) {
	h := newHarness(t, defaultSettings())
	outcome, ok := <-h.pipeline.RunAsync(context.Background(), h.video, Options{})
	if !ok {
		t.Fatal("RunAsync() channel closed without an outcome")
	}
	if outcome.Err != nil || outcome.Result == nil || len(outcome.Result.Final.Cuts) != 2 {
		t.Errorf("RunAsync() outcome = %+v", outcome)
	}
}

func TestPhaseLabel(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseExtractingAudio, "Extracting Audio..."},
		{PhaseComplete, "Complete!"},
		{Phase("other"), "other"},
	}
	for _, tt := range tests {
		if got := tt.phase.Label(); got != tt.want {
			t.Errorf("Label(%s) = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestTranscribeOnly(t *testing.T) {
	h := newHarness(t, defaultSettings())

	res, err := h.pipeline.Transcribe(context.Background(), h.video, Options{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Transcript == nil || res.Transcript.Text != "hello world" || res.Final != nil {
		t.Errorf("Transcribe() = %+v", res)
	}
	if len(h.completer.requests) != 0 {
		t.Errorf("completer called %d times, want 0", len(h.completer.requests))
	}

	// Second call is served from the cache.
	if _, err := h.pipeline.Transcribe(context.Background(), h.video, Options{}); err != nil {
		t.Fatal(err)
	}
	if h.tr.calls != 1 || h.audio.ensured != 1 {
		t.Errorf("transcriber calls = %d, audio extractions = %d, want 1 each", h.tr.calls, h.audio.ensured)
	}
}

func TestSaveCuts(t *testing.T) {
	h := newHarness(t, defaultSettings())
	manual := []cuts.Cut{
		{Start: "00:03:00", End: "00:07:00", Title: "Late"},
		{Start: "00:00:10", End: "00:01:00", Title: "Early"},
	}

	res, err := h.pipeline.SaveCuts(context.Background(), h.video, manual)
	if err != nil {
		t.Fatalf("SaveCuts() error = %v", err)
	}
	got := res.Final.Cuts
	if len(got) != 2 || got[0].Title != "Early" || got[1].End != "00:05:00" {
		t.Errorf("SaveCuts() cuts = %+v", got)
	}

	// A later Run returns the saved list without calling the LLM.
	run, err := h.pipeline.Run(context.Background(), h.video, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !run.FromCache || len(run.Final.Cuts) != 2 || len(h.completer.requests) != 0 {
		t.Errorf("Run() after SaveCuts = %+v", run)
	}

	if _, err := h.pipeline.SaveCuts(context.Background(), h.video, []cuts.Cut{{Start: "00:06:00", End: "00:07:00", Title: "Past"}}); !errors.Is(err, cuts.ErrNoValidCuts) {
		t.Errorf("SaveCuts() error = %v, want ErrNoValidCuts", err)
	}
}
